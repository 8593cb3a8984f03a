package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/queue"
)

type fakeRecorder struct {
	mu    sync.Mutex
	ticks []model.Tick
	failN int
}

func (f *fakeRecorder) Record(_ context.Context, tick model.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("store unavailable")
	}
	f.ticks = append(f.ticks, tick)
	return nil
}

func (f *fakeRecorder) recorded() []model.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Tick, len(f.ticks))
	copy(out, f.ticks)
	return out
}

func testConsumer(t *testing.T, rec Recorder, mutate func(*Config)) (*Consumer, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := DefaultConfig()
	cfg.Name = "test-consumer"
	cfg.BlockTimeout = -1 // non-blocking reads keep the tests synchronous
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rdb, rec, cfg, logger), rdb
}

func seedTick(t *testing.T, rdb *redis.Client, stream string, token uint32) {
	t.Helper()

	tick := model.Tick{
		InstrumentToken: token,
		TradingSymbol:   "NIFTY24AUGFUT",
		Mode:            model.ModeFull,
		LastPrice:       1234.55,
		ReceivedAt:      time.Date(2024, 8, 21, 10, 15, 0, 0, time.UTC),
	}
	data, err := json.Marshal(tick)
	if err != nil {
		t.Fatalf("marshal tick: %v", err)
	}
	if err := rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{queue.FieldData: string(data)},
	}).Err(); err != nil {
		t.Fatalf("seed stream: %v", err)
	}
}

func pendingCount(t *testing.T, rdb *redis.Client, stream, group string) int64 {
	t.Helper()

	p, err := rdb.XPending(context.Background(), stream, group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	return p.Count
}

func TestConsumer_ProcessBatchStoresAndAcks(t *testing.T) {
	rec := &fakeRecorder{}
	c, rdb := testConsumer(t, rec, nil)
	ctx := context.Background()

	for _, token := range []uint32{101, 102, 103} {
		seedTick(t, rdb, c.cfg.Stream, token)
	}
	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	n, err := c.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("handled %d entries, want 3", n)
	}

	got := rec.recorded()
	if len(got) != 3 {
		t.Fatalf("recorded %d ticks, want 3", len(got))
	}
	for i, want := range []uint32{101, 102, 103} {
		if got[i].InstrumentToken != want {
			t.Errorf("tick %d: token = %d, want %d", i, got[i].InstrumentToken, want)
		}
	}

	if n := pendingCount(t, rdb, c.cfg.Stream, c.cfg.Group); n != 0 {
		t.Errorf("pending count = %d, want 0 after ack", n)
	}
	if stats := c.Stats(); stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3", stats.Processed)
	}
}

func TestConsumer_CorruptEntryAckedAndDropped(t *testing.T) {
	rec := &fakeRecorder{}
	c, rdb := testConsumer(t, rec, nil)
	ctx := context.Background()

	if err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: map[string]interface{}{queue.FieldData: "{not json"},
	}).Err(); err != nil {
		t.Fatalf("seed stream: %v", err)
	}
	if err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: map[string]interface{}{"payload": "wrong field"},
	}).Err(); err != nil {
		t.Fatalf("seed stream: %v", err)
	}
	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	n, err := c.ProcessBatch(ctx)
	if err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("handled %d entries, want 2", n)
	}

	if got := rec.recorded(); len(got) != 0 {
		t.Errorf("recorded %d ticks, want 0", len(got))
	}
	if n := pendingCount(t, rdb, c.cfg.Stream, c.cfg.Group); n != 0 {
		t.Errorf("pending count = %d, want 0 after dropping corrupt entries", n)
	}
	if stats := c.Stats(); stats.Corrupt != 2 {
		t.Errorf("Corrupt = %d, want 2", stats.Corrupt)
	}
}

func TestConsumer_StoreFailureLeavesPending(t *testing.T) {
	rec := &fakeRecorder{failN: 1}
	c, rdb := testConsumer(t, rec, func(cfg *Config) {
		cfg.ClaimMinIdle = 0
	})
	ctx := context.Background()

	seedTick(t, rdb, c.cfg.Stream, 408065)
	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}

	if _, err := c.ProcessBatch(ctx); err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}
	if got := rec.recorded(); len(got) != 0 {
		t.Fatalf("recorded %d ticks, want 0 after store failure", len(got))
	}
	if n := pendingCount(t, rdb, c.cfg.Stream, c.cfg.Group); n != 1 {
		t.Fatalf("pending count = %d, want 1 after store failure", n)
	}

	claimed, err := c.ClaimStale(ctx)
	if err != nil {
		t.Fatalf("ClaimStale failed: %v", err)
	}
	if claimed != 1 {
		t.Fatalf("claimed %d entries, want 1", claimed)
	}

	got := rec.recorded()
	if len(got) != 1 || got[0].InstrumentToken != 408065 {
		t.Fatalf("recorded ticks after claim = %+v, want one tick for 408065", got)
	}
	if n := pendingCount(t, rdb, c.cfg.Stream, c.cfg.Group); n != 0 {
		t.Errorf("pending count = %d, want 0 after reclaim", n)
	}

	stats := c.Stats()
	if stats.StoreErrors != 1 {
		t.Errorf("StoreErrors = %d, want 1", stats.StoreErrors)
	}
	if stats.Claimed != 1 {
		t.Errorf("Claimed = %d, want 1", stats.Claimed)
	}
	if stats.Processed != 1 {
		t.Errorf("Processed = %d, want 1", stats.Processed)
	}
}

func TestConsumer_ClaimStaleSkipsFreshEntries(t *testing.T) {
	rec := &fakeRecorder{failN: 1}
	c, rdb := testConsumer(t, rec, func(cfg *Config) {
		cfg.ClaimMinIdle = time.Hour
	})
	ctx := context.Background()

	seedTick(t, rdb, c.cfg.Stream, 408065)
	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	if _, err := c.ProcessBatch(ctx); err != nil {
		t.Fatalf("ProcessBatch failed: %v", err)
	}

	claimed, err := c.ClaimStale(ctx)
	if err != nil {
		t.Fatalf("ClaimStale failed: %v", err)
	}
	if claimed != 0 {
		t.Errorf("claimed %d entries, want 0 for a fresh pending entry", claimed)
	}
	if n := pendingCount(t, rdb, c.cfg.Stream, c.cfg.Group); n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}
}

func TestConsumer_EnsureGroupIdempotent(t *testing.T) {
	c, _ := testConsumer(t, &fakeRecorder{}, nil)
	ctx := context.Background()

	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("first EnsureGroup failed: %v", err)
	}
	if err := c.EnsureGroup(ctx); err != nil {
		t.Fatalf("second EnsureGroup failed: %v", err)
	}
}

func TestConsumer_GeneratedName(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := New(rdb, &fakeRecorder{}, Config{}, nil)
	if c.Name() == "" {
		t.Error("generated consumer name is empty")
	}
}

func TestConsumer_RunStopsOnContext(t *testing.T) {
	c, _ := testConsumer(t, &fakeRecorder{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
