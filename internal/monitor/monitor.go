// Package monitor watches the chain head over a WebSocket subscription and
// runs every announced block through the block processor, emitting attributed
// trades to registered observers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// State is the monitor's connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateProcessing:
		return "processing"
	default:
		return "disconnected"
	}
}

// Observer receives monitor events. Callbacks are invoked synchronously in
// emission order; an observer that needs async work must dispatch it itself,
// the monitor does not wait for it.
type Observer interface {
	OnTrade(trade domain.TradeRecord)
	OnError(err error)
	OnClose(reason string)
}

// BlockProcessor extracts trades from one block.
type BlockProcessor interface {
	Process(ctx context.Context, blockNumber uint64) ([]domain.TradeRecord, error)
}

// HeadStream is one subscription session: connect, subscribe, then a
// sequence of head block numbers. A stream that fails is discarded and a
// fresh one is dialed.
type HeadStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Next() (uint64, error)
	Close() error
}

// Config holds reconnect behavior.
type Config struct {
	// Reconnect enables automatic redial with capped exponential backoff
	// after a transport failure. When false, a failure ends Start with an
	// error after emitting OnError and OnClose.
	Reconnect             bool
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
}

// Monitor is the live trade monitor. At most one block is processed at a
// time, driven by head-notification arrival order.
type Monitor struct {
	dial   func() HeadStream
	proc   BlockProcessor
	cfg    Config
	logger *slog.Logger

	observers []Observer

	state atomic.Int32

	mu      sync.Mutex
	stream  HeadStream
	stopped bool

	done     chan struct{}
	stopOnce sync.Once

	// lastBlock is the most recent block handed to the processor; used to
	// fill subscription gaps after a reconnect.
	lastBlock uint64
}

// New creates a Monitor. dial must return a fresh HeadStream per session.
func New(dial func() HeadStream, proc BlockProcessor, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.InitialReconnectDelay <= 0 {
		cfg.InitialReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 60 * time.Second
	}
	return &Monitor{
		dial:   dial,
		proc:   proc,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "monitor")),
		done:   make(chan struct{}),
	}
}

// AddObserver registers an observer. Must be called before Start.
func (m *Monitor) AddObserver(o Observer) {
	m.observers = append(m.observers, o)
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Start runs the subscription loop until Stop is called, the context is
// cancelled, or (with reconnect disabled) the transport fails. A processing
// error for a single block is reported through OnError and does not
// interrupt the subscription.
func (m *Monitor) Start(ctx context.Context) error {
	sessionID := uuid.New().String()
	delay := m.cfg.InitialReconnectDelay
	reconnected := false

	m.logger.Info("monitor starting", slog.String("session_id", sessionID))

	for {
		if m.isStopped() || ctx.Err() != nil {
			return m.finishStopped()
		}

		m.state.Store(int32(StateConnecting))
		stream := m.dial()
		if !m.adoptStream(stream) {
			return m.finishStopped()
		}

		err := stream.Connect(ctx)
		if err == nil {
			err = stream.Subscribe(ctx)
		}
		if err != nil {
			if next, ferr := m.handleFailure(ctx, fmt.Errorf("monitor: session: %w", err), &delay); !next {
				return ferr
			}
			reconnected = true
			continue
		}

		m.state.Store(int32(StateSubscribed))
		delay = m.cfg.InitialReconnectDelay
		m.logger.Info("subscribed to new heads",
			slog.String("session_id", sessionID),
			slog.Bool("reconnected", reconnected),
		)

		err = m.readHeads(ctx, stream, reconnected)
		if errors.Is(err, domain.ErrMonitorStopped) {
			return m.finishStopped()
		}
		if next, ferr := m.handleFailure(ctx, err, &delay); !next {
			return ferr
		}
		reconnected = true
	}
}

// readHeads consumes head notifications until the stream fails. After a
// reconnect the gap between the last processed block and the first new head
// is caught up first, so no block is silently skipped.
func (m *Monitor) readHeads(ctx context.Context, stream HeadStream, fillGap bool) error {
	for {
		blockNumber, err := stream.Next()
		if err != nil {
			if m.isStopped() || ctx.Err() != nil {
				return domain.ErrMonitorStopped
			}
			return fmt.Errorf("monitor: head stream: %w", err)
		}

		if fillGap && m.lastBlock > 0 && blockNumber > m.lastBlock+1 {
			m.logger.Info("catching up missed blocks",
				slog.Uint64("from", m.lastBlock+1),
				slog.Uint64("to", blockNumber-1),
			)
			for gap := m.lastBlock + 1; gap < blockNumber; gap++ {
				m.processBlock(ctx, gap)
			}
		}
		fillGap = false

		m.processBlock(ctx, blockNumber)
	}
}

// processBlock runs one block through the processor and emits its trades.
// Errors are reported to observers but never interrupt the subscription.
func (m *Monitor) processBlock(ctx context.Context, blockNumber uint64) {
	m.state.Store(int32(StateProcessing))
	defer m.state.Store(int32(StateSubscribed))

	trades, err := m.proc.Process(ctx, blockNumber)
	if err != nil {
		m.logger.Error("block processing failed",
			slog.Uint64("block", blockNumber),
			slog.String("error", err.Error()),
		)
		m.emitError(err)
		m.lastBlock = blockNumber
		return
	}

	for _, trade := range trades {
		m.emitTrade(trade)
	}
	m.lastBlock = blockNumber
}

// handleFailure reports a transport-level failure and decides whether to
// reconnect. It returns next=false when Start should return, with the error
// to return.
func (m *Monitor) handleFailure(ctx context.Context, err error, delay *time.Duration) (bool, error) {
	m.emitError(err)

	if m.isStopped() || ctx.Err() != nil {
		return false, m.finishStopped()
	}

	if !m.cfg.Reconnect {
		m.emitClose(err.Error())
		m.state.Store(int32(StateDisconnected))
		return false, err
	}

	m.logger.Warn("connection lost, reconnecting",
		slog.Duration("backoff", *delay),
		slog.String("error", err.Error()),
	)

	select {
	case <-ctx.Done():
		return false, m.finishStopped()
	case <-m.done:
		return false, m.finishStopped()
	case <-time.After(*delay):
	}

	*delay *= 2
	if *delay > m.cfg.MaxReconnectDelay {
		*delay = m.cfg.MaxReconnectDelay
	}
	return true, nil
}

// Stop closes the transport and ends Start. Valid from any state and
// idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		stream := m.stream
		m.stream = nil
		m.mu.Unlock()

		close(m.done)
		if stream != nil {
			_ = stream.Close()
		}
		m.logger.Info("monitor stopped")
	})
}

// adoptStream records the session's stream so Stop can close it. Returns
// false when the monitor was stopped first.
func (m *Monitor) adoptStream(stream HeadStream) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		_ = stream.Close()
		return false
	}
	if m.stream != nil {
		_ = m.stream.Close()
	}
	m.stream = stream
	return true
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// finishStopped emits the close event for a deliberate shutdown.
func (m *Monitor) finishStopped() error {
	m.emitClose("monitor stopped")
	m.state.Store(int32(StateDisconnected))
	return nil
}

func (m *Monitor) emitTrade(trade domain.TradeRecord) {
	for _, o := range m.observers {
		o.OnTrade(trade)
	}
}

func (m *Monitor) emitError(err error) {
	for _, o := range m.observers {
		o.OnError(err)
	}
}

func (m *Monitor) emitClose(reason string) {
	for _, o := range m.observers {
		o.OnClose(reason)
	}
}
