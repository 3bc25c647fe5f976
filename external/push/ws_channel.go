package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/foxseedlab/roundup/internal/push"
)

// WSChannel is the websocket implementation of push.Channel. The hub assigns
// a channel URI in the first frame; notifications arrive as envelopes after
// that.
type WSChannel struct {
	endpoint string

	mu        sync.Mutex
	conn      *websocket.Conn
	uri       string
	connected bool
	handlers  push.Handlers
}

func NewWSChannel(endpoint string) *WSChannel {
	return &WSChannel{endpoint: endpoint}
}

func (c *WSChannel) SetHandlers(h push.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.fire(func(h push.Handlers) {
			if h.OnError != nil {
				h.OnError(push.ErrorChannelOpenFailed, err)
			}
		})
		return fmt.Errorf("failed to open push channel: %w", err)
	}

	// The hub speaks first: one handshake frame with the assigned URI.
	var hello push.Envelope
	if err := conn.ReadJSON(&hello); err != nil || hello.Kind != push.KindChannel || hello.URI == "" {
		conn.Close()
		if err == nil {
			err = errors.New("push handshake missing channel uri")
		}
		c.fire(func(h push.Handlers) {
			if h.OnError != nil {
				h.OnError(push.ErrorChannelOpenFailed, err)
			}
		})
		return fmt.Errorf("push handshake failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.uri = hello.URI
	c.connected = true
	c.mu.Unlock()

	c.fire(func(h push.Handlers) {
		if h.OnOpen != nil {
			h.OnOpen(hello.URI)
		}
	})

	go c.readLoop(conn)
	return nil
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected && c.conn == conn
			if wasConnected {
				c.connected = false
				c.conn = nil
			}
			c.mu.Unlock()
			if wasConnected {
				c.fire(func(h push.Handlers) {
					if h.OnDisconnect != nil {
						h.OnDisconnect(err)
					}
				})
			}
			return
		}

		var env push.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.fire(func(h push.Handlers) {
				if h.OnError != nil {
					h.OnError(push.ErrorPayloadFormat, err)
				}
			})
			continue
		}

		switch env.Kind {
		case push.KindNotification:
			if env.Notification == nil {
				c.fire(func(h push.Handlers) {
					if h.OnError != nil {
						h.OnError(push.ErrorPayloadFormat, errors.New("notification envelope without payload"))
					}
				})
				continue
			}
			n := *env.Notification
			c.fire(func(h push.Handlers) {
				if h.OnNotification != nil {
					h.OnNotification(n)
				}
			})
		case push.KindError:
			kind := push.ErrorUnknown
			if env.Error == push.WireErrRateTooHigh {
				kind = push.ErrorNotificationRateTooHigh
			}
			c.fire(func(h push.Handlers) {
				if h.OnError != nil {
					h.OnError(kind, errors.New(env.Error))
				}
			})
		default:
			c.fire(func(h push.Handlers) {
				if h.OnError != nil {
					h.OnError(push.ErrorPayloadFormat, fmt.Errorf("unknown envelope kind %q", env.Kind))
				}
			})
		}
	}
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *WSChannel) URI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uri
}

func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *WSChannel) fire(f func(push.Handlers)) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()
	f(h)
}
