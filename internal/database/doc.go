// Package database provides connection management for the pipeline's stores.
//
// The receiver keeps two connections:
//   - Redis: latest-tick hashes, per-day series and the raw tick stream
//   - PostgreSQL: the durable tick ledger
//
// The connector only needs Redis.
package database
