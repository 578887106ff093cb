package controlplane

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/goals"
	"github.com/loomrun/loom/internal/mesh"
	"github.com/loomrun/loom/internal/recall"
	"github.com/loomrun/loom/internal/sessions"
	"github.com/loomrun/loom/pkg/models"
)

// notificationBuffer bounds each subscriber's queue; slow subscribers
// drop notifications rather than block publishers.
const notificationBuffer = 64

// NotificationKind discriminates runtime notifications.
type NotificationKind string

const (
	// NotifyCronResult carries a scheduled task's outcome.
	NotifyCronResult NotificationKind = "cron_result"
	// NotifyInfo carries free-form runtime information.
	NotifyInfo NotificationKind = "info"
)

// Notification is one entry on the process-wide broadcast.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title,omitempty"`
	Body      string           `json:"body"`
	SessionID string           `json:"session_id,omitempty"`
	Time      time.Time        `json:"time"`
}

// Handle is the control surface over a running runtime: chat entry,
// approval resolution, read-only queries, and the notification broadcast.
type Handle struct {
	Runtime  *agent.Runtime
	Sessions sessions.Store
	Composer *recall.Composer
	Gate     *agent.ApprovalGate
	Planner  *goals.Planner
	Mesh     *mesh.Node
	Budget   *agent.Budget

	StartedAt time.Time

	mu          sync.Mutex
	subscribers map[int]chan Notification
	nextSub     int
}

// NewHandle creates a control handle. Optional fields may stay nil; the
// matching queries then return empty results.
func NewHandle(runtime *agent.Runtime, store sessions.Store) *Handle {
	return &Handle{
		Runtime:     runtime,
		Sessions:    store,
		StartedAt:   time.Now(),
		subscribers: make(map[int]chan Notification),
	}
}

// resolveSession returns the session for an explicit id, or creates a
// fresh API session when the id is empty.
func (h *Handle) resolveSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID != "" {
		if session, err := h.Sessions.Get(ctx, sessionID); err == nil && session != nil {
			return session, nil
		}
		// Caller-supplied id not yet known: create it under that id.
		session := &models.Session{
			ID:        sessionID,
			Channel:   models.ChannelTypeAPI,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if err := h.Sessions.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return session, nil
	}
	key := sessions.SessionKey("", models.ChannelTypeAPI, uuid.NewString())
	return h.Sessions.GetOrCreate(ctx, key, "", models.ChannelTypeAPI, "")
}

// ChatStream processes text through the turn engine and returns the raw
// chunk stream plus the session id.
func (h *Handle) ChatStream(ctx context.Context, text, sessionID string) (<-chan *agent.ResponseChunk, string, error) {
	session, err := h.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	// Auto-label fresh sessions with the opening message.
	if session.Title == "" && strings.TrimSpace(text) != "" {
		title := strings.TrimSpace(text)
		if len(title) > 60 {
			title = title[:60]
		}
		session.Title = title
		session.UpdatedAt = time.Now()
		_ = h.Sessions.Update(ctx, session)
	}

	if h.Composer != nil {
		ctx = agent.WithSystemPrompt(ctx, h.Composer.Compose(ctx, text))
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	chunks, err := h.Runtime.Process(ctx, session, msg)
	if err != nil {
		return nil, "", err
	}
	return chunks, session.ID, nil
}

// Chat processes text and collects the final response text.
func (h *Handle) Chat(ctx context.Context, text, sessionID string) (string, string, error) {
	chunks, sid, err := h.ChatStream(ctx, text, sessionID)
	if err != nil {
		return "", "", err
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return b.String(), sid, chunk.Error
		}
		b.WriteString(chunk.Text)
	}
	return b.String(), sid, nil
}

// Approve resolves a pending approval. An empty id applies only when
// exactly one request is pending.
func (h *Handle) Approve(id string) error {
	if h.Gate == nil {
		return fmt.Errorf("no approval gate configured")
	}
	return h.Gate.Resolve(id, true, "operator")
}

// Deny resolves a pending approval negatively.
func (h *Handle) Deny(id string) error {
	if h.Gate == nil {
		return fmt.Errorf("no approval gate configured")
	}
	return h.Gate.Resolve(id, false, "operator")
}

// Query serves read-only views: status, sessions, goals, peers, approvals.
func (h *Handle) Query(ctx context.Context, kind string) (any, error) {
	switch kind {
	case "status":
		status := map[string]any{
			"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		}
		if h.Budget != nil {
			status["budget"] = h.Budget.Snapshot()
		}
		if h.Mesh != nil {
			status["mesh_running"] = h.Mesh.Running()
			status["mesh_peers"] = len(h.Mesh.Peers())
		}
		if h.Gate != nil {
			status["pending_approvals"] = h.Gate.PendingIDs()
		}
		return status, nil
	case "sessions":
		return h.Sessions.List(ctx, "", sessions.ListOptions{Limit: 100})
	case "goals":
		if h.Planner == nil {
			return []models.Goal{}, nil
		}
		return h.Planner.All(), nil
	case "peers":
		if h.Mesh == nil {
			return []models.Peer{}, nil
		}
		return h.Mesh.Peers(), nil
	case "approvals":
		if h.Gate == nil {
			return []string{}, nil
		}
		return h.Gate.PendingIDs(), nil
	default:
		return nil, fmt.Errorf("unknown query kind: %s", kind)
	}
}

// Notify publishes to every subscriber, dropping for the slow ones.
func (h *Handle) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribe returns a notification channel and its cancel function.
func (h *Handle) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, notificationBuffer)
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subscribers[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
