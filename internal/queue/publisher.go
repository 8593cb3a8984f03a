package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// FieldData is the stream entry field holding the JSON-encoded tick.
const FieldData = "data"

// Config configures a Publisher.
type Config struct {
	Stream         string        // stream key
	MaxLen         int64         // stream length cap, oldest entries evicted
	ExactTrim      bool          // trim to exactly MaxLen instead of approximately
	PublishTimeout time.Duration // deadline for one publish round trip
	BatchSize      int           // max ticks per pipeline
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Stream:         "ticks:raw",
		MaxLen:         100000,
		PublishTimeout: 2 * time.Second,
		BatchSize:      100,
	}
}

// Stats is a snapshot of the publisher's counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// Publisher appends ticks to the stream. Safe for concurrent use.
type Publisher struct {
	rdb    *redis.Client
	cfg    Config
	logger *slog.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewPublisher creates a Publisher on an existing Redis client.
func NewPublisher(rdb *redis.Client, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
	}
}

// Publish appends one tick to the stream. It spends at most the configured
// timeout and reports whether the tick was accepted; a timed-out or failed
// append is dropped and counted, never retried.
func (p *Publisher) Publish(ctx context.Context, tick model.Tick) bool {
	payload, err := json.Marshal(tick)
	if err != nil {
		p.countDrop(1, err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	if err := p.rdb.XAdd(ctx, p.addArgs(payload)).Err(); err != nil {
		p.countDrop(1, err)
		return false
	}

	p.published.Add(1)
	return true
}

// Run drains ticks from in and appends them until in closes or the context
// is cancelled. Ticks already waiting in the channel are coalesced into a
// single pipeline round trip.
func (p *Publisher) Run(ctx context.Context, in <-chan model.Tick) error {
	batch := make([]model.Tick, 0, p.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case tick, ok := <-in:
			if !ok {
				return nil
			}

			batch = append(batch[:0], tick)
		drain:
			for len(batch) < p.cfg.BatchSize {
				select {
				case t, ok := <-in:
					if !ok {
						p.flush(ctx, batch)
						return nil
					}
					batch = append(batch, t)
				default:
					break drain
				}
			}

			p.flush(ctx, batch)
		}
	}
}

// Stats returns a snapshot of the publisher's counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// flush appends a batch in one pipeline. A failed pipeline drops the whole
// batch; the stream is a lossy buffer, not a ledger.
func (p *Publisher) flush(ctx context.Context, batch []model.Tick) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	pipe := p.rdb.Pipeline()
	valid := 0
	for _, tick := range batch {
		payload, err := json.Marshal(tick)
		if err != nil {
			p.countDrop(1, err)
			continue
		}
		pipe.XAdd(ctx, p.addArgs(payload))
		valid++
	}
	if valid == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		p.countDrop(uint64(valid), err)
		return
	}

	p.published.Add(uint64(valid))
}

func (p *Publisher) addArgs(payload []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: p.cfg.Stream,
		MaxLen: p.cfg.MaxLen,
		Approx: !p.cfg.ExactTrim,
		Values: map[string]interface{}{FieldData: payload},
	}
}

func (p *Publisher) countDrop(n uint64, err error) {
	total := p.dropped.Add(n)
	if total == n || total%1000 < n {
		p.logger.Warn("dropping ticks, stream unavailable",
			"count", n,
			"dropped_total", total,
			"error", err,
		)
	}
}
