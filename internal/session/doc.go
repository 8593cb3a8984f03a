// Package session maintains the WebSocket sessions that carry market data.
//
// Each Session owns one socket and one fixed subscription set. It walks
// Disconnected -> Connecting -> Subscribed, moving to Error on any drop or
// broker rejection, re-dialing with exponential backoff and replaying its
// full subscription on every connect. A rejected handshake is fatal and
// leaves the session parked in Error for good.
//
// The Manager runs the sessions and merges their decoded ticks onto a
// single bounded channel. Sends to that channel never block the socket
// read path; overflow ticks are counted and dropped.
package session
