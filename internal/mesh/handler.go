package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/internal/memory/episodic"
	"github.com/loomrun/loom/internal/memory/semantic"
	"github.com/loomrun/loom/pkg/models"
)

// ErrDelegateTimeout is returned when a delegated task's result does not
// arrive within the caller's timeout.
var ErrDelegateTimeout = errors.New("mesh delegation timed out")

// ErrNoPeer is returned when delegation cannot find a qualifying peer.
var ErrNoPeer = errors.New("no mesh peer qualifies")

// TaskRunner executes a delegated task description through the turn
// engine in a fresh session and returns the final text.
type TaskRunner func(ctx context.Context, description string) (string, error)

// Handler reacts to runtime-relevant mesh messages: executing assigned
// tasks, settling delegation waiters, and applying gossip to memory.
type Handler struct {
	node     *Node
	runner   TaskRunner
	semantic *semantic.Store
	episodic *episodic.Store
	planner  *goals.Planner
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]chan models.MeshTaskOutcome
}

// NewHandler wires a handler to its collaborators. Any of semantic,
// episodic, and planner may be nil; the matching messages are then
// logged and dropped.
func NewHandler(node *Node, runner TaskRunner, sem *semantic.Store, epi *episodic.Store, planner *goals.Planner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		node:     node,
		runner:   runner,
		semantic: sem,
		episodic: epi,
		planner:  planner,
		logger:   logger,
		pending:  make(map[string]chan models.MeshTaskOutcome),
	}
}

// Run consumes the node's inbound channel until it closes or ctx ends.
func (h *Handler) Run(ctx context.Context, inbound <-chan models.MeshMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			h.handle(ctx, &msg)
		}
	}
}

func (h *Handler) handle(ctx context.Context, msg *models.MeshMessage) {
	switch msg.Type {
	case models.MeshTaskAssign:
		if msg.Task == nil {
			return
		}
		// Task execution awaits the LLM; it must not block the message
		// loop or hold any lock.
		go h.runAssigned(ctx, msg.FromPeer, *msg.Task)
	case models.MeshTaskResult:
		if msg.Result == nil {
			return
		}
		h.settleResult(*msg.Result)
	case models.MeshDirectMessage:
		if msg.Direct != nil {
			h.logger.Info("mesh direct message", "from", msg.FromPeer, "content", msg.Direct.Content)
		}
	case models.MeshSyncDelta:
		if msg.SyncDelta != nil {
			h.applyDelta(msg.FromPeer, msg.SyncDelta)
		}
	}
}

func (h *Handler) runAssigned(ctx context.Context, fromPeer string, task models.MeshTask) {
	h.logger.Info("mesh task assigned", "task_id", task.TaskID, "from", fromPeer)

	success := true
	result := ""
	if h.runner == nil {
		success = false
		result = "Error: this peer cannot execute tasks"
	} else if text, err := h.runner(ctx, task.Description); err != nil {
		success = false
		result = "Error: " + err.Error()
	} else {
		result = text
	}

	outcome := &models.MeshTaskOutcome{
		TaskID:  task.TaskID,
		PeerID:  h.node.SelfID(),
		Success: success,
		Result:  result,
	}
	if err := h.node.SendTo(ctx, fromPeer, &models.MeshMessage{Type: models.MeshTaskResult, Result: outcome}); err != nil {
		h.logger.Warn("failed to send mesh task result", "task_id", task.TaskID, "to", fromPeer, "error", err)
	}
}

// settleResult fulfills the waiter for a task id exactly once; a result
// nobody awaits settles the delegated goal step instead, and a duplicate
// is discarded.
func (h *Handler) settleResult(outcome models.MeshTaskOutcome) {
	h.mu.Lock()
	ch, ok := h.pending[outcome.TaskID]
	if ok {
		delete(h.pending, outcome.TaskID)
	}
	h.mu.Unlock()

	if ok {
		ch <- outcome
		return
	}

	if h.planner == nil {
		return
	}
	if outcome.Success {
		h.planner.CompleteDelegated(outcome.TaskID, outcome.Result)
	} else {
		h.planner.FailDelegated(outcome.TaskID, outcome.Result)
	}
}

func (h *Handler) applyDelta(fromPeer string, delta *models.MeshDelta) {
	switch delta.DeltaType {
	case models.MeshDeltaFact:
		if h.semantic == nil {
			return
		}
		var fact models.Fact
		if err := json.Unmarshal(delta.Data, &fact); err != nil || fact.Category == "" || fact.Key == "" {
			h.logger.Warn("malformed fact sync delta", "from", fromPeer)
			return
		}
		if fact.Confidence == 0 {
			fact.Confidence = 0.8
		}
		fact.ID = ""
		fact.Source = "mesh:" + fromPeer
		h.semantic.Upsert(fact)
		h.logger.Info("synced fact from mesh peer", "category", fact.Category, "key", fact.Key, "from", fromPeer)
	case models.MeshDeltaEpisode:
		if h.episodic == nil {
			return
		}
		var ep models.Episode
		if err := json.Unmarshal(delta.Data, &ep); err != nil || ep.Summary == "" {
			h.logger.Warn("malformed episode sync delta", "from", fromPeer)
			return
		}
		ep.ID = ""
		h.episodic.Record(ep)
	default:
		h.logger.Debug("unknown sync delta type", "type", string(delta.DeltaType), "from", fromPeer)
	}
}

// Delegate sends a task to a peer and awaits the matching result. The
// target is either an explicit peer id or, when peerID is empty, the
// best peer advertising the capability. A timeout of zero waits
// indefinitely (bounded only by ctx).
func (h *Handler) Delegate(ctx context.Context, peerID, capability, description string, timeout time.Duration) (*models.MeshTaskOutcome, error) {
	if peerID == "" {
		peer := h.node.FindByCapability(capability)
		if peer == nil {
			return nil, fmt.Errorf("%w: no peer with capability %q", ErrNoPeer, capability)
		}
		peerID = peer.PeerID
	}

	taskID := uuid.NewString()
	ch := make(chan models.MeshTaskOutcome, 1)
	h.mu.Lock()
	h.pending[taskID] = ch
	h.mu.Unlock()

	cleanup := func() {
		h.mu.Lock()
		delete(h.pending, taskID)
		h.mu.Unlock()
	}

	err := h.node.SendTo(ctx, peerID, &models.MeshMessage{
		Type: models.MeshTaskAssign,
		Task: &models.MeshTask{TaskID: taskID, Description: description},
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("send task assignment: %w", err)
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case outcome := <-ch:
		return &outcome, nil
	case <-timeoutC:
		cleanup()
		return nil, ErrDelegateTimeout
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// PendingCount reports how many delegations await results.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}
