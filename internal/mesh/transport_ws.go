package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loomrun/loom/internal/backoff"
	"github.com/loomrun/loom/pkg/models"
)

// wsWriteTimeout bounds a single frame write so one stuck link cannot
// wedge a broadcast.
const wsWriteTimeout = 10 * time.Second

// wsRedialInterval is how often a lost bootstrap link is retried.
const wsRedialInterval = 15 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Mesh links are operator-configured peer addresses, not browsers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebsocketTransport links peers over persistent websocket connections:
// it listens on a local address and dials the configured bootstrap
// peers. Frames are JSON-encoded MeshMessages; the first frame on every
// link is the sender's hello, which names the link's peer id.
type WebsocketTransport struct {
	listenAddr string
	bootstrap  []string
	selfID     string
	logger     *slog.Logger

	mu        sync.Mutex
	links     map[string]*wsLink // peer id → link
	onMessage func(*models.MeshMessage)
	server    *http.Server
	started   bool
}

type wsLink struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (l *wsLink) write(msg *models.MeshMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return l.conn.WriteJSON(msg)
}

// NewWebsocketTransport creates a transport that listens on listenAddr
// (empty disables listening) and dials each bootstrap address.
func NewWebsocketTransport(listenAddr string, bootstrap []string, selfID string, logger *slog.Logger) *WebsocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketTransport{
		listenAddr: listenAddr,
		bootstrap:  append([]string(nil), bootstrap...),
		selfID:     selfID,
		logger:     logger,
		links:      make(map[string]*wsLink),
	}
}

// Start begins listening and dialing.
func (t *WebsocketTransport) Start(ctx context.Context, onMessage func(*models.MeshMessage)) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.onMessage = onMessage
	t.started = true
	t.mu.Unlock()

	if t.listenAddr != "" {
		ln, err := net.Listen("tcp", t.listenAddr)
		if err != nil {
			return fmt.Errorf("mesh listen on %s: %w", t.listenAddr, err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/mesh", t.handleUpgrade)
		srv := &http.Server{Handler: mux}
		t.mu.Lock()
		t.server = srv
		t.mu.Unlock()
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				t.logger.Warn("mesh listener stopped", "error", err)
			}
		}()
	}

	for _, addr := range t.bootstrap {
		go t.dialLoop(ctx, addr)
	}
	return nil
}

func (t *WebsocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	t.serveLink(conn)
}

// dialLoop keeps one bootstrap link alive, redialing with exponential
// backoff after failures and resetting once a link is established.
func (t *WebsocketTransport) dialLoop(ctx context.Context, addr string) {
	target := addr
	if u, err := url.Parse(addr); err != nil || u.Scheme == "" {
		target = "ws://" + addr + "/mesh"
	}
	policy := backoff.ConservativePolicy()
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			t.logger.Debug("mesh dial failed", "addr", target, "error", err)
			attempt++
			if backoff.SleepWithBackoff(ctx, policy, attempt) != nil {
				return
			}
			continue
		}
		attempt = 0
		t.serveLink(conn)
		// Link dropped; redial unless shutting down.
		select {
		case <-ctx.Done():
			return
		case <-time.After(wsRedialInterval):
		}
	}
}

// serveLink reads frames until the connection drops. The first frame
// received names the link's peer so directed sends can route to it.
func (t *WebsocketTransport) serveLink(conn *websocket.Conn) {
	link := &wsLink{conn: conn}
	linkedPeer := ""
	defer func() {
		_ = conn.Close()
		if linkedPeer != "" {
			t.mu.Lock()
			if t.links[linkedPeer] == link {
				delete(t.links, linkedPeer)
			}
			t.mu.Unlock()
		}
	}()

	for {
		var msg models.MeshMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.FromPeer == "" || msg.FromPeer == t.selfID {
			continue
		}
		if linkedPeer == "" {
			linkedPeer = msg.FromPeer
			t.mu.Lock()
			t.links[linkedPeer] = link
			t.mu.Unlock()
		}
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(&msg)
		}
	}
}

// Send routes a frame to the link registered for peerID.
func (t *WebsocketTransport) Send(_ context.Context, peerID string, msg *models.MeshMessage) error {
	t.mu.Lock()
	link, ok := t.links[peerID]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("no mesh link to peer %s", peerID)
	}
	return link.write(msg)
}

// Broadcast writes the frame to every live link. Failed links are
// dropped; the first error is reported after all links are attempted.
func (t *WebsocketTransport) Broadcast(_ context.Context, msg *models.MeshMessage) error {
	t.mu.Lock()
	links := make(map[string]*wsLink, len(t.links))
	for id, l := range t.links {
		links[id] = l
	}
	t.mu.Unlock()

	var firstErr error
	for id, link := range links {
		if err := link.write(msg); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			t.mu.Lock()
			if t.links[id] == link {
				delete(t.links, id)
			}
			t.mu.Unlock()
		}
	}
	return firstErr
}

// Stop closes the listener and every link.
func (t *WebsocketTransport) Stop() error {
	t.mu.Lock()
	srv := t.server
	links := t.links
	t.links = make(map[string]*wsLink)
	t.started = false
	t.mu.Unlock()

	for _, link := range links {
		_ = link.conn.Close()
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
	return nil
}
