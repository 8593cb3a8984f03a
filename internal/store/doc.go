// Package store persists ticks along two paths.
//
// The fast path lands every tick in Redis within one pipeline round trip:
// a per-symbol time-ordered set for the day, a latest-value hash, the
// day's symbol roster and, for full-mode ticks, a depth snapshot set. All
// fast-path keys expire after a configured TTL; Redis serves the live
// intraday views, not history.
//
// The durable path buffers ticks in memory and flushes them to Postgres
// in batches, on an interval or when the buffer fills. A failed commit
// keeps the batch buffered so a database outage delays persistence
// instead of losing ticks.
package store
