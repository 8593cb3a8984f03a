package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// Manager runs one session per subscription set and merges their ticks
// onto a single channel.
type Manager interface {
	// Start launches all sessions.
	Start(ctx context.Context) error

	// Stop gracefully shuts down all sessions and closes the tick channel.
	Stop(ctx context.Context) error

	// Ticks returns the merged tick channel.
	Ticks() <-chan model.Tick

	// Healthy reports whether every session is currently subscribed.
	Healthy() bool

	// Status returns one entry per session for health reporting.
	Status() []Status

	// Stats returns counters aggregated across sessions.
	Stats() Stats

	// Err returns the first fatal session error, if any.
	Err() error
}

type manager struct {
	cfg      Config
	logger   *slog.Logger
	sessions []*Session
	ticks    chan model.Tick

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a session manager for the given subscription sets.
// Sets come from the partitioner, one socket session each.
func NewManager(cfg Config, sets []model.SubscriptionSet, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	ticks := make(chan model.Tick, cfg.TickBuffer)

	sessions := make([]*Session, len(sets))
	for i, set := range sets {
		sessions[i] = newSession(i+1, cfg, set, ticks, logger)
	}

	return &manager{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		ticks:    ticks,
	}
}

// Start launches all sessions.
func (m *manager) Start(ctx context.Context) error {
	if len(m.sessions) == 0 {
		return fmt.Errorf("no subscription sets to run")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	for _, s := range m.sessions {
		m.wg.Add(1)
		go func(s *Session) {
			defer m.wg.Done()
			s.run(m.ctx)
		}(s)
	}

	m.logger.Info("session manager started", "sessions", len(m.sessions))
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping session manager")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, abandoning sessions")
		return ctx.Err()
	}

	close(m.ticks)

	m.logger.Info("session manager stopped")
	return nil
}

// Ticks returns the merged tick channel.
func (m *manager) Ticks() <-chan model.Tick {
	return m.ticks
}

// Healthy reports whether every session is subscribed.
func (m *manager) Healthy() bool {
	for _, s := range m.sessions {
		if s.State() != StateSubscribed {
			return false
		}
	}
	return true
}

// Status returns per-session health entries.
func (m *manager) Status() []Status {
	status := make([]Status, len(m.sessions))
	for i, s := range m.sessions {
		status[i] = s.Status()
	}
	return status
}

// Stats returns counters summed across all sessions.
func (m *manager) Stats() Stats {
	var total Stats
	for _, s := range m.sessions {
		st := s.Stats()
		total.Connects += st.Connects
		total.TicksForwarded += st.TicksForwarded
		total.TicksDropped += st.TicksDropped
		total.BadFrames += st.BadFrames
	}
	return total
}

// Err returns the first fatal session error.
func (m *manager) Err() error {
	for _, s := range m.sessions {
		if err := s.Err(); err != nil {
			return err
		}
	}
	return nil
}
