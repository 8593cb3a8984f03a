package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

func testClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testTick(token uint32, price float64) model.Tick {
	return model.Tick{
		InstrumentToken: token,
		TradingSymbol:   "NIFTY24AUGFUT",
		Mode:            model.ModeLTP,
		Tradable:        true,
		LastPrice:       price,
		ReceivedAt:      time.Date(2024, 8, 20, 10, 15, 0, 0, model.IST()),
	}
}

func decodeEntry(t *testing.T, msg redis.XMessage) model.Tick {
	t.Helper()
	raw, ok := msg.Values[FieldData].(string)
	if !ok {
		t.Fatalf("entry %s has no %q field: %v", msg.ID, FieldData, msg.Values)
	}
	var tick model.Tick
	if err := json.Unmarshal([]byte(raw), &tick); err != nil {
		t.Fatalf("decoding entry %s: %v", msg.ID, err)
	}
	return tick
}

func TestPublisher_Publish(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	pub := NewPublisher(rdb, cfg, nil)

	if !pub.Publish(ctx, testTick(408065, 1234.55)) {
		t.Fatal("Publish returned false")
	}

	entries, err := rdb.XRange(ctx, cfg.Stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stream has %d entries, want 1", len(entries))
	}

	tick := decodeEntry(t, entries[0])
	if tick.InstrumentToken != 408065 {
		t.Errorf("InstrumentToken = %d, want 408065", tick.InstrumentToken)
	}
	if tick.TradingSymbol != "NIFTY24AUGFUT" {
		t.Errorf("TradingSymbol = %q, want %q", tick.TradingSymbol, "NIFTY24AUGFUT")
	}
	if tick.LastPrice != 1234.55 {
		t.Errorf("LastPrice = %v, want 1234.55", tick.LastPrice)
	}

	if stats := pub.Stats(); stats.Published != 1 || stats.Dropped != 0 {
		t.Errorf("Stats = %+v, want 1 published, 0 dropped", stats)
	}
}

func TestPublisher_TrimKeepsNewest(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.MaxLen = 5
	cfg.ExactTrim = true
	pub := NewPublisher(rdb, cfg, nil)

	for i := uint32(1); i <= 10; i++ {
		if !pub.Publish(ctx, testTick(i, float64(i))) {
			t.Fatalf("Publish %d returned false", i)
		}
	}

	entries, err := rdb.XRange(ctx, cfg.Stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange failed: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("stream has %d entries, want 5", len(entries))
	}

	for i, entry := range entries {
		want := uint32(6 + i)
		if tick := decodeEntry(t, entry); tick.InstrumentToken != want {
			t.Errorf("entry %d token = %d, want %d (oldest evicted first)", i, tick.InstrumentToken, want)
		}
	}
}

func TestPublisher_DropWhenUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer rdb.Close()

	cfg := DefaultConfig()
	cfg.PublishTimeout = 100 * time.Millisecond
	pub := NewPublisher(rdb, cfg, nil)

	start := time.Now()
	ok := pub.Publish(context.Background(), testTick(408065, 1234.55))
	elapsed := time.Since(start)

	if ok {
		t.Error("Publish succeeded against an unreachable address")
	}
	if elapsed > 2*time.Second {
		t.Errorf("Publish blocked %v, want bounded by timeout", elapsed)
	}
	if stats := pub.Stats(); stats.Dropped != 1 || stats.Published != 0 {
		t.Errorf("Stats = %+v, want 1 dropped, 0 published", stats)
	}
}

func TestPublisher_RunDrainsChannel(t *testing.T) {
	_, rdb := testClient(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	pub := NewPublisher(rdb, cfg, nil)

	in := make(chan model.Tick, 10)
	for i := uint32(1); i <= 10; i++ {
		in <- testTick(i, float64(i))
	}
	close(in)

	if err := pub.Run(ctx, in); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	length, err := rdb.XLen(ctx, cfg.Stream).Result()
	if err != nil {
		t.Fatalf("XLen failed: %v", err)
	}
	if length != 10 {
		t.Errorf("stream length = %d, want 10", length)
	}
	if stats := pub.Stats(); stats.Published != 10 {
		t.Errorf("Published = %d, want 10", stats.Published)
	}
}

func TestPublisher_RunStopsOnContext(t *testing.T) {
	_, rdb := testClient(t)

	pub := NewPublisher(rdb, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan model.Tick)
	if err := pub.Run(ctx, in); err != context.Canceled {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}
