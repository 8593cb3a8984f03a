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

	"golang.org/x/sync/errgroup"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/auth"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/config"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/database"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/instrument"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/notify"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/queue"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/session"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/version"
)

const loginAttempts = 3

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadConnector(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting connector",
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

	notifier := notify.New(cfg.Telegram, logger)

	token, err := login(ctx, cfg, logger)
	if err != nil {
		logger.Error("login failed", "error", err)
		notifier.Failure(ctx, fmt.Sprintf("login failed: %v", err))
		os.Exit(1)
	}
	tokens := auth.NewTokenSource(token)

	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("redis connected", "addr", cfg.Redis.Addr)

	sets, total, err := buildSubscriptions(ctx, cfg, tokens, logger)
	if err != nil {
		logger.Error("building subscriptions failed", "error", err)
		if errors.Is(err, instrument.ErrCapacityExceeded) {
			notifier.Failure(ctx, fmt.Sprintf("subscription capacity exceeded: %v", err))
		}
		os.Exit(1)
	}
	logger.Info("universe partitioned", "instruments", total, "sessions", len(sets))

	mgr := session.NewManager(sessionConfig(cfg, tokens), sets, logger)
	if err := mgr.Start(ctx); err != nil {
		logger.Error("starting sessions failed", "error", err)
		os.Exit(1)
	}

	pub := queue.NewPublisher(rdb, queueConfig(cfg), logger)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthHandler(mgr, pub),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	notifier.Startup(ctx, cfg.Instruments.Underlyings, total)

	// The publisher gets its own context so it can drain the tick channel
	// after the sessions stop.
	pubCtx, pubCancel := context.WithCancel(context.Background())
	defer pubCancel()

	var g errgroup.Group
	g.Go(func() error { return pub.Run(pubCtx, mgr.Ticks()) })

	go statsLoop(ctx, mgr, pub, notifier, logger)
	go marketCloseWatch(ctx, cfg.Market, logger, cancel)

	fatalErr := watchSessions(ctx, mgr, notifier, logger)
	cancel()

	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Sessions.StopTimeout)
	if err := mgr.Stop(stopCtx); err != nil {
		logger.Warn("session shutdown incomplete", "error", err)
	}
	stopCancel()

	// Sessions are gone; give the publisher a moment to flush what is left,
	// then force it out.
	pubDone := make(chan error, 1)
	go func() { pubDone <- g.Wait() }()
	select {
	case err := <-pubDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("publisher exited with error", "error", err)
		}
	case <-time.After(5 * time.Second):
		pubCancel()
		<-pubDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	healthServer.Shutdown(shutdownCtx)
	shutdownCancel()

	stats := pub.Stats()
	notifier.SessionEnd(context.Background(), stats.Published, total)
	logger.Info("connector stopped",
		"published", stats.Published,
		"dropped", stats.Dropped,
	)

	if fatalErr != nil {
		os.Exit(1)
	}
}

// login runs the scripted login flow, retrying transient failures.
func login(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	client := auth.NewClient(auth.Credentials{
		APIKey:     cfg.Broker.APIKey,
		APISecret:  cfg.Broker.APISecret,
		UserID:     cfg.Broker.UserID,
		Password:   cfg.Broker.Password,
		TOTPSecret: cfg.Broker.TOTPSecret,
	},
		auth.WithLoginURL(cfg.Broker.LoginURL),
		auth.WithAPIURL(cfg.Broker.APIURL),
		auth.WithTimeout(cfg.Broker.Timeout),
		auth.WithLogger(logger),
	)

	// A rejected TOTP can succeed on the next code window, so rejections
	// are retried like any other failure.
	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		token, err := client.Login(ctx)
		if err == nil {
			return token, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == loginAttempts {
			break
		}
		logger.Warn("login attempt failed", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Second):
		}
	}
	return "", lastErr
}

// buildSubscriptions loads the instrument master, filters it down to the
// configured universe and splits it across sessions.
func buildSubscriptions(ctx context.Context, cfg *config.Config, tokens *auth.TokenSource, logger *slog.Logger) ([]model.SubscriptionSet, int, error) {
	client := instrument.NewClient(cfg.Broker.APIURL, cfg.Broker.APIKey, tokens,
		instrument.WithTimeout(cfg.Broker.Timeout),
		instrument.WithLogger(logger),
	)

	universe, err := client.Instruments(ctx, cfg.Instruments.Exchange)
	if err != nil {
		return nil, 0, err
	}

	kinds := make([]model.InstrumentKind, 0, len(cfg.Instruments.Kinds))
	for _, s := range cfg.Instruments.Kinds {
		k, ok := model.ParseKind(s)
		if !ok {
			return nil, 0, fmt.Errorf("unknown instrument kind %q", s)
		}
		kinds = append(kinds, k)
	}

	var spotPrices map[string]float64
	if cfg.Instruments.StrikeWindowPct > 0 {
		spotPrices, err = fetchSpotPrices(ctx, client, cfg.Instruments)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch spot prices: %w", err)
		}
		logger.Info("spot prices loaded", "prices", spotPrices)
	}

	selected := instrument.Select(universe, instrument.Selection{
		Underlyings: cfg.Instruments.Underlyings,
		Kinds:       kinds,
		Policy: instrument.ExpiryPolicy{
			WeeklyCount:  cfg.Instruments.WeeklyExpiries,
			MonthlyCount: cfg.Instruments.MonthlyExpiries,
		},
		StrikeWindowPct: cfg.Instruments.StrikeWindowPct,
		SpotPrices:      spotPrices,
	}, time.Now().In(model.IST()))
	if len(selected) == 0 {
		return nil, 0, errors.New("no instruments matched the configured universe")
	}

	if cfg.Instruments.IncludeUnderlying {
		spots, err := client.Instruments(ctx, cfg.Instruments.UnderlyingExchange)
		if err != nil {
			return nil, 0, err
		}
		for _, underlying := range cfg.Instruments.Underlyings {
			sym := spotSymbol(cfg.Instruments, underlying)
			inst, ok := instrument.FindSpot(spots, cfg.Instruments.UnderlyingExchange, sym)
			if !ok {
				logger.Warn("spot instrument not found", "underlying", underlying, "symbol", sym)
				continue
			}
			selected = append(selected, inst)
		}
	}

	sets, err := instrument.Partition(selected, cfg.Sessions.MaxConnections, cfg.Sessions.MaxSubscriptions)
	if err != nil {
		return nil, 0, err
	}
	return sets, len(selected), nil
}

// fetchSpotPrices resolves each underlying's spot LTP for the strike window.
func fetchSpotPrices(ctx context.Context, client *instrument.Client, cfg config.InstrumentsConfig) (map[string]float64, error) {
	names := make([]string, 0, len(cfg.Underlyings))
	underlyingFor := make(map[string]string, len(cfg.Underlyings))
	for _, u := range cfg.Underlyings {
		name := cfg.UnderlyingExchange + ":" + spotSymbol(cfg, u)
		names = append(names, name)
		underlyingFor[name] = u
	}

	quotes, err := client.LTP(ctx, names...)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(quotes))
	for name, price := range quotes {
		prices[underlyingFor[name]] = price
	}
	return prices, nil
}

func spotSymbol(cfg config.InstrumentsConfig, underlying string) string {
	if sym, ok := cfg.SpotSymbols[underlying]; ok && sym != "" {
		return sym
	}
	return underlying
}

func sessionConfig(cfg *config.Config, tokens *auth.TokenSource) session.Config {
	sc := session.DefaultConfig()
	sc.URL = cfg.Broker.WSURL
	sc.APIKey = cfg.Broker.APIKey
	sc.Tokens = tokens
	sc.Mode = cfg.Sessions.Mode
	sc.ReconnectBase = cfg.Sessions.ReconnectBaseDelay
	sc.ReconnectMax = cfg.Sessions.ReconnectMaxDelay
	sc.HandshakeTimeout = cfg.Sessions.HandshakeTimeout
	sc.WriteTimeout = cfg.Sessions.WriteTimeout
	sc.TickBuffer = cfg.Sessions.BufferSize
	return sc
}

func queueConfig(cfg *config.Config) queue.Config {
	qc := queue.DefaultConfig()
	qc.Stream = cfg.Queue.Stream
	qc.MaxLen = cfg.Queue.MaxLen
	qc.ExactTrim = cfg.Queue.ExactTrim
	qc.PublishTimeout = cfg.Queue.PublishTimeout
	qc.BatchSize = cfg.Queue.BatchSize
	return qc
}

// watchSessions blocks until shutdown or a fatal session error. Returns
// the fatal error, nil on a plain shutdown.
func watchSessions(ctx context.Context, mgr session.Manager, notifier *notify.Notifier, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := mgr.Err(); err != nil {
				logger.Error("session failed fatally", "error", err)
				notifier.Failure(ctx, fmt.Sprintf("session failed: %v", err))
				return err
			}
		}
	}
}

// statsLoop logs counters every minute and sends an hourly Telegram update.
func statsLoop(ctx context.Context, mgr session.Manager, pub *queue.Publisher, notifier *notify.Notifier, logger *slog.Logger) {
	logTicker := time.NewTicker(time.Minute)
	defer logTicker.Stop()
	hourTicker := time.NewTicker(time.Hour)
	defer hourTicker.Stop()

	hours := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-logTicker.C:
			ms, ps := mgr.Stats(), pub.Stats()
			logger.Info("pipeline stats",
				"forwarded", ms.TicksForwarded,
				"session_dropped", ms.TicksDropped,
				"bad_frames", ms.BadFrames,
				"published", ps.Published,
				"publish_dropped", ps.Dropped,
				"healthy", mgr.Healthy(),
			)
		case <-hourTicker.C:
			hours++
			notifier.HourlyUpdate(ctx, pub.Stats().Published, hours)
		}
	}
}

// marketCloseWatch shuts the connector down at the configured close time.
func marketCloseWatch(ctx context.Context, cfg config.MarketConfig, logger *slog.Logger, cancel context.CancelFunc) {
	if cfg.CloseTime == "" {
		return
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("bad market timezone, close watch disabled", "timezone", cfg.Timezone, "error", err)
		return
	}
	at, err := time.Parse("15:04", cfg.CloseTime)
	if err != nil {
		logger.Warn("bad market close_time, close watch disabled", "close_time", cfg.CloseTime, "error", err)
		return
	}

	now := time.Now().In(loc)
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, loc)
	if !closeAt.After(now) {
		logger.Warn("market close time already passed, shutting down", "close_time", cfg.CloseTime)
		cancel()
		return
	}

	logger.Info("market close scheduled", "at", closeAt.Format(time.RFC3339))
	timer := time.NewTimer(time.Until(closeAt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		logger.Info("market closed, shutting down")
		cancel()
	}
}

// healthHandler serves the connector's health and session status.
func healthHandler(mgr session.Manager, pub *queue.Publisher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status   string           `json:"status"`
			Sessions []session.Status `json:"sessions"`
			Queue    queue.Stats      `json:"queue"`
			Error    string           `json:"error,omitempty"`
		}{
			Status:   "healthy",
			Sessions: mgr.Status(),
			Queue:    pub.Stats(),
		}

		// Sessions in backoff are degraded; only a fatally parked session
		// (auth rejection) makes the connector unhealthy.
		if !mgr.Healthy() {
			health.Status = "degraded"
		}
		if err := mgr.Err(); err != nil {
			health.Status = "unhealthy"
			health.Error = err.Error()
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
