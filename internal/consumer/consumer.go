package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/queue"
)

// Config configures a Consumer.
type Config struct {
	Stream        string
	Group         string
	Name          string        // consumer name within the group, generated if empty
	BatchCount    int64         // max entries per read
	BlockTimeout  time.Duration // how long a read blocks waiting for entries
	ClaimMinIdle  time.Duration // claim pending entries idle longer than this
	ClaimInterval time.Duration // how often to run a claim pass
	RetryBackoff  time.Duration // pause after a failed read
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Stream:        "ticks:raw",
		Group:         "tick_processors",
		BatchCount:    100,
		BlockTimeout:  time.Second,
		ClaimMinIdle:  30 * time.Second,
		ClaimInterval: 30 * time.Second,
		RetryBackoff:  time.Second,
	}
}

// Recorder stores decoded ticks. A failed Record leaves the entry pending
// for a later claim.
type Recorder interface {
	Record(ctx context.Context, tick model.Tick) error
}

// Stats is a snapshot of the consumer's counters.
type Stats struct {
	Processed   uint64 `json:"processed"`    // stored and acknowledged
	Corrupt     uint64 `json:"corrupt"`      // undecodable, acknowledged and dropped
	StoreErrors uint64 `json:"store_errors"` // left pending for reclaim
	Claimed     uint64 `json:"claimed"`      // reprocessed after going stale
}

// Consumer reads tick entries from the stream as part of a consumer group.
type Consumer struct {
	rdb    *redis.Client
	rec    Recorder
	cfg    Config
	logger *slog.Logger

	processed   atomic.Uint64
	corrupt     atomic.Uint64
	storeErrors atomic.Uint64
	claimed     atomic.Uint64
}

// New creates a Consumer. An empty Name is replaced with a generated one
// so multiple receiver processes never collide within the group.
func New(rdb *redis.Client, rec Recorder, cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "receiver-" + uuid.NewString()[:8]
	}

	return &Consumer{
		rdb:    rdb,
		rec:    rec,
		cfg:    cfg,
		logger: logger.With("consumer", cfg.Name),
	}
}

// Name returns the consumer's name within the group.
func (c *Consumer) Name() string {
	return c.cfg.Name
}

// Stats returns a snapshot of the consumer's counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Processed:   c.processed.Load(),
		Corrupt:     c.corrupt.Load(),
		StoreErrors: c.storeErrors.Load(),
		Claimed:     c.claimed.Load(),
	}
}

// EnsureGroup creates the consumer group if it does not exist, starting
// from the beginning of the stream so a fresh group drains the backlog.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating group %q: %w", c.cfg.Group, err)
	}
	return nil
}

// Run drives the read and claim loops until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	// Pick up entries orphaned before this process started.
	if n, err := c.ClaimStale(ctx); err != nil {
		c.logger.Warn("initial claim failed", "error", err)
	} else if n > 0 {
		c.logger.Info("reclaimed orphaned entries", "count", n)
	}

	claimTicker := time.NewTicker(c.cfg.ClaimInterval)
	defer claimTicker.Stop()

	c.logger.Info("consumer started", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-claimTicker.C:
			if n, err := c.ClaimStale(ctx); err != nil {
				c.logger.Warn("claim pass failed", "error", err)
			} else if n > 0 {
				c.logger.Info("reclaimed stale entries", "count", n)
			}
		default:
		}

		n, err := c.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("reading stream failed", "error", err)
			if !c.pause(ctx, c.cfg.RetryBackoff) {
				return ctx.Err()
			}
			continue
		}
		if n == 0 {
			if !c.pause(ctx, 10*time.Millisecond) {
				return ctx.Err()
			}
		}
	}
}

// ProcessBatch reads one batch of new entries and processes each. Returns
// the number of entries handled; zero with a nil error means the read
// timed out with nothing new.
func (c *Consumer) ProcessBatch(ctx context.Context) (int, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchCount,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handleEntry(ctx, msg)
			handled++
		}
	}
	return handled, nil
}

// ClaimStale claims entries pending longer than ClaimMinIdle, from any
// consumer in the group, and reprocesses them exactly like fresh
// deliveries. Returns the number of entries claimed.
func (c *Consumer) ClaimStale(ctx context.Context) (int, error) {
	total := 0
	start := "0-0"

	for {
		msgs, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			MinIdle:  c.cfg.ClaimMinIdle,
			Start:    start,
			Count:    c.cfg.BatchCount,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				return total, nil
			}
			return total, err
		}

		for _, msg := range msgs {
			c.handleEntry(ctx, msg)
		}
		total += len(msgs)
		c.claimed.Add(uint64(len(msgs)))

		if next == "0-0" || len(msgs) == 0 {
			return total, nil
		}
		start = next
	}
}

// handleEntry decodes and stores one entry. Corrupt entries are acked and
// dropped; store failures leave the entry pending so a claim pass retries
// it later.
func (c *Consumer) handleEntry(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values[queue.FieldData].(string)
	if !ok {
		c.corrupt.Add(1)
		c.logger.Warn("entry missing data field, dropping", "id", msg.ID)
		c.ack(ctx, msg.ID)
		return
	}

	var tick model.Tick
	if err := json.Unmarshal([]byte(raw), &tick); err != nil {
		c.corrupt.Add(1)
		c.logger.Warn("undecodable entry, dropping", "id", msg.ID, "error", err)
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.rec.Record(ctx, tick); err != nil {
		c.storeErrors.Add(1)
		c.logger.Warn("store rejected tick, leaving entry pending", "id", msg.ID, "error", err)
		return
	}

	c.processed.Add(1)
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Warn("ack failed", "id", id, "error", err)
	}
}

func (c *Consumer) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
