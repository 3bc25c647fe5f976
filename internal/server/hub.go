package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/foxseedlab/roundup/internal/push"
	"github.com/foxseedlab/roundup/internal/roundup"
)

// Hub owns the push sockets. Each accepted socket gets a fresh channel URI;
// table hooks address pushes to that URI. A per-channel limiter models the
// daily notification quota.
type Hub struct {
	quota    int
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*hubConn
}

type hubConn struct {
	ws      *websocket.Conn
	limiter *rate.Limiter

	writeMu sync.Mutex
}

func NewHub(dailyQuota int) *Hub {
	return &Hub{
		quota: dailyQuota,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[string]*hubConn),
	}
}

// ServeHTTP upgrades the request, hands the client its channel URI, and
// keeps the socket registered until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("push socket upgrade failed", "error", err)
		return
	}

	uri := uuid.NewString()
	conn := &hubConn{
		ws:      ws,
		limiter: rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(h.quota)), h.quota),
	}

	if err := conn.writeEnvelope(push.Envelope{Kind: push.KindChannel, URI: uri}); err != nil {
		slog.Warn("push handshake failed", "error", err)
		ws.Close()
		return
	}

	h.mu.Lock()
	h.conns[uri] = conn
	h.mu.Unlock()
	slog.Info("push channel opened", "channel", uri)

	// Clients never send application frames; reading only detects the drop.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.conns, uri)
	h.mu.Unlock()
	ws.Close()
	slog.Info("push channel closed", "channel", uri)
}

// Push delivers one notification to the channel behind uri.
func (h *Hub) Push(channelURI string, n roundup.Notification) error {
	h.mu.Lock()
	conn, ok := h.conns[channelURI]
	h.mu.Unlock()
	if !ok {
		return ErrChannelGone
	}

	if !conn.limiter.Allow() {
		// Tell the throttled recipient as well so it can surface the
		// condition locally.
		_ = conn.writeEnvelope(push.Envelope{Kind: push.KindError, Error: push.WireErrRateTooHigh})
		return ErrRateLimited
	}

	if err := conn.writeEnvelope(push.Envelope{Kind: push.KindNotification, Notification: &n}); err != nil {
		h.mu.Lock()
		delete(h.conns, channelURI)
		h.mu.Unlock()
		return ErrChannelGone
	}
	return nil
}

// Connected reports whether uri currently has a live socket.
func (h *Hub) Connected(channelURI string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[channelURI]
	return ok
}

// CloseAll tears down every registered socket, typically on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for uri, conn := range h.conns {
		conn.ws.Close()
		delete(h.conns, uri)
	}
}

func (c *hubConn) writeEnvelope(env push.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
