package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/auth"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/wire"
)

// label is what a session stamps onto every tick it forwards.
type label struct {
	symbol string
	name   string
}

// Session owns one socket and one fixed subscription set. Its lifecycle is
// driven by run; all other methods are safe for concurrent use.
type Session struct {
	id     int
	cfg    Config
	set    model.SubscriptionSet
	labels map[uint32]label // token -> enrichment labels
	out    chan<- model.Tick
	logger *slog.Logger

	state atomic.Int32

	errMu   sync.Mutex
	lastErr error

	connects  atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
	badFrames atomic.Uint64
}

func newSession(id int, cfg Config, set model.SubscriptionSet, out chan<- model.Tick, logger *slog.Logger) *Session {
	labels := make(map[uint32]label, len(set))
	for _, inst := range set {
		labels[inst.Token] = label{symbol: inst.TradingSymbol, name: inst.Name}
	}

	return &Session{
		id:     id,
		cfg:    cfg,
		set:    set,
		labels: labels,
		out:    out,
		logger: logger.With("session", id),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Err returns the fatal error that permanently parked the session, if any.
// Transient failures that the session retries do not show up here.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() Stats {
	return Stats{
		Connects:       s.connects.Load(),
		TicksForwarded: s.forwarded.Load(),
		TicksDropped:   s.dropped.Load(),
		BadFrames:      s.badFrames.Load(),
	}
}

// Status returns the session's health report entry.
func (s *Session) Status() Status {
	return Status{
		ID:          s.id,
		State:       s.State().String(),
		Instruments: len(s.set),
		Stats:       s.Stats(),
	}
}

// run drives the connect / subscribe / consume cycle until the context is
// cancelled or the handshake is rejected outright. Any other failure parks
// the session in StateError for an exponential backoff; every successful
// connect replays the full subscription set, so a mid-session reconnect
// needs no incremental state.
func (s *Session) run(ctx context.Context) {
	wait := s.cfg.ReconnectBase

	for {
		s.setState(StateConnecting)

		client := NewClient(s.cfg, s.logger)
		if err := client.Connect(ctx); err != nil {
			if errors.Is(err, auth.ErrAuthRejected) {
				s.logger.Error("handshake rejected, giving up", "error", err)
				s.setErr(err)
				s.setState(StateError)
				return
			}
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return
			}

			s.logger.Warn("connect failed", "error", err, "retry_in", wait)
			s.setState(StateError)
			if !s.sleep(ctx, wait) {
				return
			}
			wait = s.nextWait(wait)
			continue
		}

		if err := s.subscribe(client); err != nil {
			s.logger.Warn("subscribe failed", "error", err, "retry_in", wait)
			client.Close()
			s.setState(StateError)
			if !s.sleep(ctx, wait) {
				return
			}
			wait = s.nextWait(wait)
			continue
		}

		s.setState(StateSubscribed)
		s.connects.Add(1)
		wait = s.cfg.ReconnectBase
		s.logger.Info("session subscribed", "instruments", len(s.set), "mode", s.cfg.Mode)

		err := s.consume(ctx, client)
		client.Close()

		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		s.logger.Warn("session dropped, reconnecting", "error", err, "retry_in", wait)
		s.setState(StateError)
		if !s.sleep(ctx, wait) {
			return
		}
		wait = s.nextWait(wait)
	}
}

// subscribe replays the session's full subscription set and switches it to
// the configured feed mode. Safe to repeat on every connect.
func (s *Session) subscribe(client Client) error {
	tokens := s.set.Tokens()

	sub, err := wire.SubscribeMessage(tokens)
	if err != nil {
		return err
	}
	if err := client.Send(sub); err != nil {
		return err
	}

	mode, err := wire.ModeMessage(s.cfg.Mode, tokens)
	if err != nil {
		return err
	}
	return client.Send(mode)
}

// consume pumps frames off the socket until the connection fails, the
// broker sends an error frame, or the context is cancelled.
func (s *Session) consume(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-client.Errors():
			return err
		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}
			if err := s.handleMessage(msg); err != nil {
				return err
			}
		}
	}
}

// handleMessage decodes one frame. A broker error frame ends the consume
// cycle; the session tears the connection down and resubscribes on
// reconnect.
func (s *Session) handleMessage(msg Message) error {
	switch msg.Type {
	case websocket.BinaryMessage:
		if wire.IsHeartbeat(msg.Data) {
			return nil
		}

		ticks, err := wire.ParseFrame(msg.Data, msg.ReceivedAt)
		if err != nil {
			s.badFrames.Add(1)
			s.logger.Warn("dropping undecodable frame", "error", err, "bytes", len(msg.Data))
		}
		for _, tick := range ticks {
			s.forward(tick)
		}

	case websocket.TextMessage:
		text, err := wire.ParseTextMessage(msg.Data)
		if err != nil {
			s.logger.Warn("unparseable text frame", "error", err)
			return nil
		}
		if text.Type == "error" {
			return fmt.Errorf("%w: %s", ErrSubscriptionRejected, text.ErrorText())
		}
	}
	return nil
}

// forward enriches a tick with its instrument labels and hands it to the
// merged channel. The send never blocks the read path.
func (s *Session) forward(tick model.Tick) {
	if l, ok := s.labels[tick.InstrumentToken]; ok {
		tick.TradingSymbol = l.symbol
		tick.Name = l.name
	}

	select {
	case s.out <- tick:
		s.forwarded.Add(1)
	default:
		if n := s.dropped.Add(1); n == 1 || n%10000 == 0 {
			s.logger.Warn("tick channel full, dropping", "dropped_total", n)
		}
	}
}

// sleep waits for the backoff interval. Returns false if the context was
// cancelled first.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		s.setState(StateDisconnected)
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Session) nextWait(wait time.Duration) time.Duration {
	wait *= 2
	if wait > s.cfg.ReconnectMax {
		wait = s.cfg.ReconnectMax
	}
	return wait
}
