// Package mesh connects sibling runtimes into a peer-to-peer network for
// task delegation and memory gossip. A Node owns the peer table and the
// transport; the Handler reacts to messages that need the runtime.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/pkg/models"
)

// inboundQueueSize bounds the channel of runtime-relevant messages. When
// the runtime falls behind, new frames are dropped rather than blocking
// the transport's read loop.
const inboundQueueSize = 256

// peerExpiry is how long a peer survives in the table without a heartbeat.
const peerExpiry = 3 * time.Minute

// heartbeatInterval is how often the node re-announces itself.
const heartbeatInterval = 30 * time.Second

// Transport moves frames between peers. Implementations must be safe for
// concurrent use.
type Transport interface {
	// Start begins listening/dialing and delivers every received frame
	// to onMessage from the transport's own goroutines.
	Start(ctx context.Context, onMessage func(*models.MeshMessage)) error

	// Send delivers a frame to one peer.
	Send(ctx context.Context, peerID string, msg *models.MeshMessage) error

	// Broadcast delivers a frame to every connected peer.
	Broadcast(ctx context.Context, msg *models.MeshMessage) error

	// Stop closes all links.
	Stop() error
}

// Node is this runtime's presence on the mesh: identity, capability
// advertisement, peer table, and the send/broadcast surface.
type Node struct {
	selfID       string
	hostname     string
	os           string
	capabilities []string
	logger       *slog.Logger

	mu      sync.Mutex
	peers   map[string]*models.Peer
	running bool

	transport Transport
	inbound   chan models.MeshMessage
	stop      context.CancelFunc
}

// NewNode creates a node with a fresh peer id.
func NewNode(transport Transport, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	hostname, _ := os.Hostname()
	return &Node{
		selfID:    uuid.NewString(),
		hostname:  hostname,
		os:        runtime.GOOS,
		logger:    logger,
		peers:     make(map[string]*models.Peer),
		transport: transport,
	}
}

// NewNodeWithTransport creates a node whose transport is built from the
// node's own peer id. Transports that embed the sender id in frames (the
// websocket transport) need the id before they can be constructed.
func NewNodeWithTransport(factory func(selfID string) Transport, logger *slog.Logger) *Node {
	n := NewNode(nil, logger)
	n.transport = factory(n.selfID)
	return n
}

// Announce re-broadcasts this node's profile. Useful after new links come
// up, so both sides learn each other without waiting for a heartbeat.
func (n *Node) Announce(ctx context.Context) {
	n.announce(ctx, models.MeshHeartbeat)
}

// SelfID returns this node's peer id.
func (n *Node) SelfID() string { return n.selfID }

// Capabilities returns the advertised capability list.
func (n *Node) Capabilities() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.capabilities...)
}

// Running reports whether Start succeeded and Stop has not been called.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Profile returns this node's own peer record.
func (n *Node) Profile() models.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return models.Peer{
		PeerID:       n.selfID,
		Hostname:     n.hostname,
		OS:           n.os,
		Capabilities: append([]string(nil), n.capabilities...),
		LastSeen:     time.Now().UTC(),
	}
}

// Start announces this peer and begins receiving. The returned channel
// carries the messages the runtime must handle (task assignment, task
// results, sync deltas, direct messages); peer housekeeping is consumed
// by the node itself.
func (n *Node) Start(ctx context.Context, capabilities []string) (<-chan models.MeshMessage, error) {
	if n.transport == nil {
		return nil, fmt.Errorf("mesh transport is required")
	}

	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil, fmt.Errorf("mesh node already started")
	}
	n.capabilities = append([]string(nil), capabilities...)
	n.inbound = make(chan models.MeshMessage, inboundQueueSize)
	runCtx, cancel := context.WithCancel(ctx)
	n.stop = cancel
	n.running = true
	inbound := n.inbound
	n.mu.Unlock()

	if err := n.transport.Start(runCtx, n.receive); err != nil {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("start mesh transport: %w", err)
	}

	n.announce(runCtx, models.MeshHello)

	go n.heartbeatLoop(runCtx)

	return inbound, nil
}

// Stop says goodbye and closes the transport.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	stop := n.stop
	inbound := n.inbound
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	n.announce(ctx, models.MeshGoodbye)
	cancel()

	if stop != nil {
		stop()
	}
	_ = n.transport.Stop()
	close(inbound)
}

// receive runs on transport goroutines: filter, bookkeep, enqueue.
func (n *Node) receive(msg *models.MeshMessage) {
	if msg == nil || msg.FromPeer == n.selfID || !msg.ForPeer(n.selfID) {
		return
	}
	if n.handleHousekeeping(msg) {
		return
	}

	n.mu.Lock()
	inbound := n.inbound
	running := n.running
	n.mu.Unlock()
	if !running {
		return
	}
	select {
	case inbound <- *msg:
	default:
		n.logger.Warn("mesh inbound queue full, dropping message",
			"type", string(msg.Type), "from", msg.FromPeer)
	}
}

// handleHousekeeping updates the peer table for hello/heartbeat/goodbye
// frames and reports whether the message was consumed.
func (n *Node) handleHousekeeping(msg *models.MeshMessage) bool {
	switch msg.Type {
	case models.MeshHello, models.MeshHeartbeat:
		peer := msg.Hello
		if peer == nil {
			peer = &models.Peer{PeerID: msg.FromPeer}
		}
		n.mu.Lock()
		existing, ok := n.peers[msg.FromPeer]
		if ok {
			existing.LastSeen = time.Now().UTC()
			if peer.Hostname != "" {
				existing.Hostname = peer.Hostname
			}
			if peer.OS != "" {
				existing.OS = peer.OS
			}
			if len(peer.Capabilities) > 0 {
				existing.Capabilities = append([]string(nil), peer.Capabilities...)
			}
		} else {
			cp := *peer
			cp.PeerID = msg.FromPeer
			cp.LastSeen = time.Now().UTC()
			n.peers[msg.FromPeer] = &cp
		}
		n.mu.Unlock()
		return true
	case models.MeshGoodbye:
		n.mu.Lock()
		delete(n.peers, msg.FromPeer)
		n.mu.Unlock()
		return true
	default:
		return false
	}
}

// Peers returns the live peer table, expired entries pruned, sorted by
// hostname for stable prompt rendering.
func (n *Node) Peers() []models.Peer {
	cutoff := time.Now().Add(-peerExpiry)
	n.mu.Lock()
	out := make([]models.Peer, 0, len(n.peers))
	for id, p := range n.peers {
		if p.LastSeen.Before(cutoff) {
			delete(n.peers, id)
			continue
		}
		out = append(out, *p)
	}
	n.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}

// FindByCapability returns the most recently seen peer advertising the
// capability, or nil when no peer qualifies.
func (n *Node) FindByCapability(capability string) *models.Peer {
	var best *models.Peer
	for _, p := range n.Peers() {
		for _, c := range p.Capabilities {
			if c != capability {
				continue
			}
			cp := p
			if best == nil || cp.LastSeen.After(best.LastSeen) {
				best = &cp
			}
		}
	}
	return best
}

// SendTo delivers a frame to one peer, stamping the from/to fields.
func (n *Node) SendTo(ctx context.Context, peerID string, msg *models.MeshMessage) error {
	msg.FromPeer = n.selfID
	msg.ToPeer = peerID
	return n.transport.Send(ctx, peerID, msg)
}

// Broadcast delivers a frame to every connected peer.
func (n *Node) Broadcast(ctx context.Context, msg *models.MeshMessage) error {
	msg.FromPeer = n.selfID
	msg.ToPeer = ""
	return n.transport.Broadcast(ctx, msg)
}

// GossipFact broadcasts a semantic fact as a sync delta.
func (n *Node) GossipFact(ctx context.Context, fact *models.Fact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return err
	}
	return n.Broadcast(ctx, &models.MeshMessage{
		Type:      models.MeshSyncDelta,
		SyncDelta: &models.MeshDelta{DeltaType: models.MeshDeltaFact, Data: data},
	})
}

// GossipEpisode broadcasts an episode as a sync delta.
func (n *Node) GossipEpisode(ctx context.Context, ep *models.Episode) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return err
	}
	return n.Broadcast(ctx, &models.MeshMessage{
		Type:      models.MeshSyncDelta,
		SyncDelta: &models.MeshDelta{DeltaType: models.MeshDeltaEpisode, Data: data},
	})
}

func (n *Node) announce(ctx context.Context, typ models.MeshMessageType) {
	profile := n.Profile()
	msg := &models.MeshMessage{Type: typ, Hello: &profile}
	if err := n.Broadcast(ctx, msg); err != nil {
		n.logger.Debug("mesh announce failed", "type", string(typ), "error", err)
	}
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.announce(ctx, models.MeshHeartbeat)
		}
	}
}
