package session

import (
	"errors"
	"time"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/auth"
)

// Errors
var (
	ErrNotConnected         = errors.New("not connected")
	ErrStaleConnection      = errors.New("connection stale (no frames)")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrSubscriptionRejected = errors.New("subscription rejected by broker")
)

// State is a session's position in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota // not started, or shut down
	StateConnecting
	StateSubscribed
	StateError // backing off after a failure; terminal on auth rejection
)

// String returns the state name used in logs and health reports.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Message is one raw frame off the socket with its receive timestamp.
type Message struct {
	Type       int // websocket.BinaryMessage or websocket.TextMessage
	Data       []byte
	ReceivedAt time.Time
}

// Config configures the session manager and its sockets.
type Config struct {
	URL              string            // ticker endpoint, e.g. wss://ws.kite.trade
	APIKey           string            // broker API key, sent as a query parameter
	Tokens           *auth.TokenSource // access token source, read fresh on every dial
	Mode             string            // feed mode requested after subscribing
	ReconnectBase    time.Duration     // first reconnect delay
	ReconnectMax     time.Duration     // backoff cap
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	StaleTimeout     time.Duration // max silence before a socket is declared dead
	SocketBuffer     int           // per-socket raw frame buffer
	TickBuffer       int           // merged tick channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://ws.kite.trade",
		Mode:             "full",
		ReconnectBase:    1 * time.Second,
		ReconnectMax:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		StaleTimeout:     30 * time.Second,
		SocketBuffer:     1000,
		TickBuffer:       10000,
	}
}

// Stats is a point-in-time snapshot of a session's counters.
type Stats struct {
	Connects       uint64 // successful connect+subscribe cycles
	TicksForwarded uint64
	TicksDropped   uint64 // merged channel was full
	BadFrames      uint64 // undecodable binary frames
}

// Status describes one session for health reporting.
type Status struct {
	ID          int    `json:"id"`
	State       string `json:"state"`
	Instruments int    `json:"instruments"`
	Stats       Stats  `json:"stats"`
}
