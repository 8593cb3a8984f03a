package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/auth"
)

// Client is a single WebSocket connection to the ticker endpoint.
type Client interface {
	// Connect establishes the WebSocket connection, authenticating with
	// the current access token.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes a control message (text frame) to the connection.
	Send(data []byte) error

	// Messages returns a channel of raw frames, binary and text alike.
	Messages() <-chan Message

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

type client struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	messages chan Message
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu          sync.RWMutex
	connected   bool
	lastFrameAt time.Time
	closed      bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg Config, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Message, cfg.SocketBuffer),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	endpoint, err := c.buildURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: handshake status %d", auth.ErrAuthRejected, resp.StatusCode)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastFrameAt = time.Now()
	c.mu.Unlock()

	conn.SetPongHandler(func(data string) error {
		c.mu.Lock()
		c.lastFrameAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.staleLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// buildURL attaches the API key and current access token as query
// parameters, the ticker endpoint's authentication scheme.
func (c *client) buildURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing ticker url: %w", err)
	}

	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	if c.cfg.Tokens != nil {
		q.Set("access_token", c.cfg.Tokens.Token())
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Send writes a control message to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan Message {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames from the WebSocket and sends them to the messages
// channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		frameType, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		c.mu.Lock()
		c.lastFrameAt = receivedAt
		c.mu.Unlock()

		msg := Message{
			Type:       frameType,
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// staleLoop watches for sockets that have gone silent. The broker pushes
// a heartbeat every few seconds, so a long silence means the connection
// is dead even if the TCP session lingers.
func (c *client) staleLoop() {
	interval := c.cfg.StaleTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("failed to send ping", "error", err)
				}
			}

			c.mu.RLock()
			lastFrame := c.lastFrameAt
			c.mu.RUnlock()

			if time.Since(lastFrame) > c.cfg.StaleTimeout {
				c.logger.Warn("no frames received, connection stale",
					"last_frame", lastFrame,
					"timeout", c.cfg.StaleTimeout,
				)
				select {
				case c.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
