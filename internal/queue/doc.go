// Package queue publishes ticks onto the Redis Stream that decouples the
// connector from the receivers.
//
// The stream is capped with MAXLEN so a stalled receiver costs bounded
// memory; Redis evicts the oldest entries first. Publishing spends at most
// a configured timeout per round trip. When Redis is slow or down the
// publisher drops ticks and counts them instead of stalling the socket
// pipeline behind it.
package queue
