package mesh

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomrun/loom/pkg/models"
)

// MemoryBus connects in-process transports for tests and single-machine
// setups: every endpoint sees every frame, exactly like a broadcast
// network segment.
type MemoryBus struct {
	mu        sync.Mutex
	endpoints map[string]*MemoryTransport
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{endpoints: make(map[string]*MemoryTransport)}
}

// Endpoint creates a transport attached to the bus for the given peer id.
func (b *MemoryBus) Endpoint(peerID string) *MemoryTransport {
	t := &MemoryTransport{bus: b, peerID: peerID}
	b.mu.Lock()
	b.endpoints[peerID] = t
	b.mu.Unlock()
	return t
}

func (b *MemoryBus) deliver(fromPeer string, msg *models.MeshMessage) {
	b.mu.Lock()
	targets := make([]*MemoryTransport, 0, len(b.endpoints))
	for id, t := range b.endpoints {
		if id == fromPeer {
			continue
		}
		targets = append(targets, t)
	}
	b.mu.Unlock()

	for _, t := range targets {
		t.receive(msg)
	}
}

func (b *MemoryBus) deliverTo(peerID string, msg *models.MeshMessage) error {
	b.mu.Lock()
	t, ok := b.endpoints[peerID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer %s not on bus", peerID)
	}
	t.receive(msg)
	return nil
}

// MemoryTransport is one endpoint on a MemoryBus.
type MemoryTransport struct {
	bus    *MemoryBus
	peerID string

	mu        sync.Mutex
	onMessage func(*models.MeshMessage)
	started   bool
}

// Start registers the receive callback.
func (t *MemoryTransport) Start(_ context.Context, onMessage func(*models.MeshMessage)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = onMessage
	t.started = true
	return nil
}

// Send delivers to one peer on the bus.
func (t *MemoryTransport) Send(_ context.Context, peerID string, msg *models.MeshMessage) error {
	cp := *msg
	return t.bus.deliverTo(peerID, &cp)
}

// Broadcast delivers to every other peer on the bus.
func (t *MemoryTransport) Broadcast(_ context.Context, msg *models.MeshMessage) error {
	cp := *msg
	t.bus.deliver(t.peerID, &cp)
	return nil
}

// Stop detaches the endpoint from the bus.
func (t *MemoryTransport) Stop() error {
	t.mu.Lock()
	t.onMessage = nil
	t.started = false
	t.mu.Unlock()

	t.bus.mu.Lock()
	delete(t.bus.endpoints, t.peerID)
	t.bus.mu.Unlock()
	return nil
}

func (t *MemoryTransport) receive(msg *models.MeshMessage) {
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}
