package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// ErrCommitFailed reports a batch that could not be committed to Postgres.
// The batch stays buffered and is retried on the next flush.
var ErrCommitFailed = errors.New("commit failed")

// Config configures a Store.
type Config struct {
	KeyTTL         time.Duration  // fast-path key expiry
	DepthEnabled   bool           // store depth snapshots for full-mode ticks
	FlushInterval  time.Duration  // max time between Postgres flushes
	FlushBatchSize int            // flush early once this many rows are buffered
	BufferCap      int            // hard cap on buffered rows
	Location       *time.Location // trading-date timezone, defaults to IST
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyTTL:         24 * time.Hour,
		DepthEnabled:   true,
		FlushInterval:  5 * time.Minute,
		FlushBatchSize: 1000,
		BufferCap:      50000,
	}
}

// Stats is a snapshot of the store's counters.
type Stats struct {
	FastWrites  uint64 `json:"fast_writes"`
	FastErrors  uint64 `json:"fast_errors"`
	Flushed     uint64 `json:"flushed"`
	FlushErrors uint64 `json:"flush_errors"`
	Overflow    uint64 `json:"overflow"` // buffered rows evicted unflushed
	BufferLen   int    `json:"buffer_len"`
}

// batchSink commits tick batches to long-term storage.
type batchSink interface {
	Commit(ctx context.Context, rows []model.Tick) error
}

// Store persists ticks to Redis immediately and to Postgres in batches.
type Store struct {
	cfg    Config
	rdb    *redis.Client
	sink   batchSink
	logger *slog.Logger

	bufMu  sync.Mutex
	buffer []model.Tick

	statsMu sync.Mutex
	stats   Stats

	flushCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Store writing its durable batches to db.
func New(rdb *redis.Client, db *pgxpool.Pool, cfg Config, logger *slog.Logger) *Store {
	if cfg.Location == nil {
		cfg.Location = model.IST()
	}
	return newWithSink(rdb, &pgSink{db: db, loc: cfg.Location}, cfg, logger)
}

func newWithSink(rdb *redis.Client, sink batchSink, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = model.IST()
	}

	return &Store{
		cfg:     cfg,
		rdb:     rdb,
		sink:    sink,
		logger:  logger,
		buffer:  make([]model.Tick, 0, cfg.FlushBatchSize),
		flushCh: make(chan struct{}, 1),
	}
}

// Start launches the flush loop.
func (s *Store) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("store started",
		"flush_interval", s.cfg.FlushInterval,
		"flush_batch_size", s.cfg.FlushBatchSize,
	)
	return nil
}

// Stop drains the flush loop and commits whatever is still buffered.
func (s *Store) Stop(ctx context.Context) error {
	s.logger.Info("stopping store")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("store stop timed out")
	}

	if err := s.Flush(ctx); err != nil {
		s.logger.Error("final flush failed", "error", err, "buffered", s.BufferLen())
		return err
	}

	s.logger.Info("store stopped")
	return nil
}

// Record persists one tick: the Redis fast path in a single pipeline, then
// the in-memory buffer for the next Postgres flush. A fast-path failure
// returns an error without buffering, so the caller can leave the source
// entry unacknowledged and retry later.
func (s *Store) Record(ctx context.Context, tick model.Tick) error {
	symbol := tick.TradingSymbol
	if symbol == "" {
		symbol = strconv.FormatUint(uint64(tick.InstrumentToken), 10)
	}

	ts := tick.Timestamp()
	date := ts.In(s.cfg.Location).Format("2006-01-02")

	payload, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("encoding tick: %w", err)
	}

	tickKey := "ticks:" + symbol + ":" + date
	latestKey := "latest:" + symbol
	symbolsKey := "symbols:" + date

	latest := map[string]interface{}{
		"token":               tick.InstrumentToken,
		"price":               tick.LastPrice,
		"volume":              tick.Volume,
		"oi":                  tick.OI,
		"change":              tick.NetChange,
		"mode":                tick.Mode,
		"timestamp":           ts.Unix(),
		"total_buy_quantity":  tick.TotalBuyQuantity,
		"total_sell_quantity": tick.TotalSellQuantity,
	}
	if tick.Depth != nil {
		if len(tick.Depth.Buy) > 0 {
			latest["bid"] = tick.Depth.Buy[0].Price
		}
		if len(tick.Depth.Sell) > 0 {
			latest["ask"] = tick.Depth.Sell[0].Price
		}
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, tickKey, redis.Z{Score: float64(ts.Unix()), Member: payload})
	pipe.HSet(ctx, latestKey, latest)
	pipe.SAdd(ctx, symbolsKey, symbol)
	pipe.Expire(ctx, tickKey, s.cfg.KeyTTL)
	pipe.Expire(ctx, latestKey, s.cfg.KeyTTL)
	pipe.Expire(ctx, symbolsKey, s.cfg.KeyTTL)

	if s.cfg.DepthEnabled && tick.Depth != nil {
		depth, err := json.Marshal(tick.Depth)
		if err == nil {
			depthKey := "depth:" + symbol + ":" + date
			pipe.ZAdd(ctx, depthKey, redis.Z{Score: float64(ts.Unix()), Member: depth})
			pipe.Expire(ctx, depthKey, s.cfg.KeyTTL)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.statsMu.Lock()
		s.stats.FastErrors++
		s.statsMu.Unlock()
		return fmt.Errorf("fast path write: %w", err)
	}

	s.statsMu.Lock()
	s.stats.FastWrites++
	s.statsMu.Unlock()

	s.enqueue(tick)
	return nil
}

// enqueue appends a tick to the flush buffer, evicting the oldest rows if
// the cap is hit, and nudges the flush loop once a full batch is waiting.
func (s *Store) enqueue(tick model.Tick) {
	s.bufMu.Lock()
	s.buffer = append(s.buffer, tick)
	var evicted int
	if over := len(s.buffer) - s.cfg.BufferCap; over > 0 {
		s.buffer = append(s.buffer[:0], s.buffer[over:]...)
		evicted = over
	}
	full := len(s.buffer) >= s.cfg.FlushBatchSize
	s.bufMu.Unlock()

	if evicted > 0 {
		s.statsMu.Lock()
		s.stats.Overflow += uint64(evicted)
		s.statsMu.Unlock()
		s.logger.Warn("buffer cap hit, evicting unflushed rows", "evicted", evicted)
	}

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// Flush commits the buffered rows to Postgres in one transaction. On
// failure the rows are put back at the front of the buffer.
func (s *Store) Flush(ctx context.Context) error {
	s.bufMu.Lock()
	if len(s.buffer) == 0 {
		s.bufMu.Unlock()
		return nil
	}
	batch := s.buffer
	s.buffer = make([]model.Tick, 0, s.cfg.FlushBatchSize)
	s.bufMu.Unlock()

	start := time.Now()

	if err := s.sink.Commit(ctx, batch); err != nil {
		s.bufMu.Lock()
		s.buffer = append(batch, s.buffer...)
		var evicted int
		if over := len(s.buffer) - s.cfg.BufferCap; over > 0 {
			s.buffer = append(s.buffer[:0], s.buffer[over:]...)
			evicted = over
		}
		s.bufMu.Unlock()

		s.statsMu.Lock()
		s.stats.FlushErrors++
		s.stats.Overflow += uint64(evicted)
		s.statsMu.Unlock()

		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	s.statsMu.Lock()
	s.stats.Flushed += uint64(len(batch))
	s.statsMu.Unlock()

	s.logger.Debug("flushed ticks",
		"count", len(batch),
		"duration", time.Since(start),
	)
	return nil
}

// BufferLen returns the number of rows waiting for the next flush.
func (s *Store) BufferLen() int {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	return len(s.buffer)
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	s.statsMu.Lock()
	stats := s.stats
	s.statsMu.Unlock()
	stats.BufferLen = s.BufferLen()
	return stats
}

// flushLoop flushes on the configured interval and whenever Record signals
// a full batch.
func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.flushCh:
		}

		if err := s.Flush(s.ctx); err != nil {
			s.logger.Error("flush failed, batch retained",
				"error", err,
				"buffered", s.BufferLen(),
			)
		}
	}
}
