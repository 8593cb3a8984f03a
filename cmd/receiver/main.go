package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/config"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/consumer"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/database"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/store"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadReceiver(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting receiver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance", cfg.Instance.ID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to stores",
		"postgres", fmt.Sprintf("%s:%d/%s", cfg.Database.Postgres.Host, cfg.Database.Postgres.Port, cfg.Database.Postgres.Name),
		"redis", cfg.Redis.Addr,
	)
	pools, err := database.NewPools(ctx, cfg.Database, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer pools.Close()

	if err := store.EnsureSchema(ctx, pools.Postgres); err != nil {
		logger.Error("ensuring schema failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stores connected, schema ensured")

	stCfg, err := storeConfig(cfg)
	if err != nil {
		logger.Error("bad store config", "error", err)
		os.Exit(1)
	}
	st := store.New(pools.Redis, pools.Postgres, stCfg, logger)
	if err := st.Start(ctx); err != nil {
		logger.Error("starting store failed", "error", err)
		os.Exit(1)
	}

	cons := consumer.New(pools.Redis, st, consumerConfig(cfg), logger)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthHandler(pools, cons, st, cfg.Store.FlushBatchSize),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	go statsLoop(ctx, cons, st, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cons.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
	}

	logger.Info("shutting down")

	// Stop drains the pending buffer into Postgres before returning.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := st.Stop(stopCtx); err != nil {
		logger.Error("final flush failed, buffered rows lost", "error", err, "buffered", st.BufferLen())
	}
	stopCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	healthServer.Shutdown(shutdownCtx)
	shutdownCancel()

	cs, ss := cons.Stats(), st.Stats()
	logger.Info("receiver stopped",
		"processed", cs.Processed,
		"corrupt", cs.Corrupt,
		"claimed", cs.Claimed,
		"flushed", ss.Flushed,
		"flush_errors", ss.FlushErrors,
	)
}

func storeConfig(cfg *config.Config) (store.Config, error) {
	sc := store.DefaultConfig()
	sc.KeyTTL = cfg.Store.KeyTTL
	sc.DepthEnabled = *cfg.Store.DepthEnabled
	sc.FlushInterval = cfg.Store.FlushInterval
	sc.FlushBatchSize = cfg.Store.FlushBatchSize
	sc.BufferCap = cfg.Store.BufferCap

	if cfg.Store.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Store.Timezone)
		if err != nil {
			return sc, fmt.Errorf("load store timezone %q: %w", cfg.Store.Timezone, err)
		}
		sc.Location = loc
	}
	return sc, nil
}

func consumerConfig(cfg *config.Config) consumer.Config {
	cc := consumer.DefaultConfig()
	cc.Stream = cfg.Queue.Stream
	cc.Group = cfg.Consumer.Group
	cc.Name = cfg.Consumer.Name
	if cc.Name == "" && cfg.Instance.ID != "" {
		cc.Name = cfg.Instance.ID + "-" + uuid.NewString()[:8]
	}
	cc.BatchCount = int64(cfg.Consumer.BatchCount)
	cc.BlockTimeout = cfg.Consumer.BlockTimeout
	cc.ClaimMinIdle = cfg.Consumer.ClaimMinIdle
	cc.ClaimInterval = cfg.Consumer.ClaimInterval
	cc.RetryBackoff = cfg.Consumer.RetryBackoff
	return cc
}

// statsLoop logs counters every minute.
func statsLoop(ctx context.Context, cons *consumer.Consumer, st *store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs, ss := cons.Stats(), st.Stats()
			logger.Info("receiver stats",
				"processed", cs.Processed,
				"corrupt", cs.Corrupt,
				"store_errors", cs.StoreErrors,
				"claimed", cs.Claimed,
				"fast_writes", ss.FastWrites,
				"fast_errors", ss.FastErrors,
				"flushed", ss.Flushed,
				"flush_errors", ss.FlushErrors,
				"buffered", ss.BufferLen,
			)
		}
	}
}

// healthHandler serves the receiver's health and counters. The store is
// degraded once the pending buffer runs past a flush batch, which means
// flushes are failing or falling behind.
func healthHandler(pools *database.Pools, cons *consumer.Consumer, st *store.Store, flushBatch int) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status   string         `json:"status"`
			Stores   string         `json:"stores"`
			Consumer consumer.Stats `json:"consumer"`
			Store    store.Stats    `json:"store"`
		}{
			Status:   "healthy",
			Stores:   "connected",
			Consumer: cons.Stats(),
			Store:    st.Stats(),
		}

		if err := pools.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Stores = err.Error()
		} else if flushBatch > 0 && health.Store.BufferLen > flushBatch {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
