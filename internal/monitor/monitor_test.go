package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedStream replays a fixed sequence of head numbers, then fails with
// failErr (or blocks until closed when failErr is nil).
type scriptedStream struct {
	heads      []uint64
	failErr    error
	connectErr error

	mu     sync.Mutex
	pos    int
	closed chan struct{}
	once   sync.Once
}

func newScriptedStream(heads []uint64, failErr error) *scriptedStream {
	return &scriptedStream{heads: heads, failErr: failErr, closed: make(chan struct{})}
}

func (s *scriptedStream) Connect(ctx context.Context) error { return s.connectErr }
func (s *scriptedStream) Subscribe(ctx context.Context) error {
	return nil
}

func (s *scriptedStream) Next() (uint64, error) {
	s.mu.Lock()
	if s.pos < len(s.heads) {
		head := s.heads[s.pos]
		s.pos++
		s.mu.Unlock()
		return head, nil
	}
	s.mu.Unlock()

	if s.failErr != nil {
		return 0, s.failErr
	}
	<-s.closed
	return 0, domain.ErrMonitorStopped
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// recordingProcessor returns one trade per processed block, failing for
// blocks in failAt.
type recordingProcessor struct {
	mu     sync.Mutex
	blocks []uint64
	failAt map[uint64]bool
}

func (p *recordingProcessor) Process(ctx context.Context, blockNumber uint64) ([]domain.TradeRecord, error) {
	p.mu.Lock()
	p.blocks = append(p.blocks, blockNumber)
	p.mu.Unlock()

	if p.failAt[blockNumber] {
		return nil, errors.New("receipts unavailable")
	}
	return []domain.TradeRecord{{
		BlockNumber:     blockNumber,
		TransactionHash: "0xabc",
		Wallet:          "0xaaaa",
		Side:            domain.SideBuy,
		MakerAmount:     big.NewInt(1),
		TakerAmount:     big.NewInt(2),
	}}, nil
}

func (p *recordingProcessor) processed() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.blocks...)
}

// recordingObserver captures events in arrival order.
type recordingObserver struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
	errs   []error
	closes []string
}

func (o *recordingObserver) OnTrade(trade domain.TradeRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trades = append(o.trades, trade)
}

func (o *recordingObserver) OnError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) OnClose(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes = append(o.closes, reason)
}

func (o *recordingObserver) snapshot() ([]domain.TradeRecord, []error, []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.TradeRecord(nil), o.trades...),
		append([]error(nil), o.errs...),
		append([]string(nil), o.closes...)
}

func TestMonitorEmitsTradesInOrder(t *testing.T) {
	stream := newScriptedStream([]uint64{10, 11, 12}, nil)
	proc := &recordingProcessor{}
	obs := &recordingObserver{}

	mon := New(func() HeadStream { return stream }, proc, Config{}, testLogger())
	mon.AddObserver(obs)

	done := make(chan error, 1)
	go func() { done <- mon.Start(context.Background()) }()

	waitFor(t, func() bool {
		trades, _, _ := obs.snapshot()
		return len(trades) == 3
	})

	mon.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	trades, _, closes := obs.snapshot()
	for i, want := range []uint64{10, 11, 12} {
		if trades[i].BlockNumber != want {
			t.Errorf("trade %d from block %d, want %d", i, trades[i].BlockNumber, want)
		}
	}
	if len(closes) != 1 || closes[0] != "monitor stopped" {
		t.Errorf("closes = %v, want one 'monitor stopped'", closes)
	}
	if mon.State() != StateDisconnected {
		t.Errorf("state = %v after stop, want disconnected", mon.State())
	}
}

func TestMonitorContinuesAfterBlockError(t *testing.T) {
	stream := newScriptedStream([]uint64{10, 11, 12}, nil)
	proc := &recordingProcessor{failAt: map[uint64]bool{11: true}}
	obs := &recordingObserver{}

	mon := New(func() HeadStream { return stream }, proc, Config{}, testLogger())
	mon.AddObserver(obs)

	done := make(chan error, 1)
	go func() { done <- mon.Start(context.Background()) }()

	waitFor(t, func() bool {
		return len(proc.processed()) == 3
	})

	mon.Stop()
	<-done

	trades, errs, _ := obs.snapshot()
	if len(trades) != 2 {
		t.Errorf("got %d trades, want 2 (block 11 failed)", len(trades))
	}
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1", len(errs))
	}
}

func TestMonitorNoReconnectFailsFast(t *testing.T) {
	stream := newScriptedStream([]uint64{10}, errors.New("connection reset"))
	proc := &recordingProcessor{}
	obs := &recordingObserver{}

	mon := New(func() HeadStream { return stream }, proc, Config{Reconnect: false}, testLogger())
	mon.AddObserver(obs)

	err := mon.Start(context.Background())
	if err == nil {
		t.Fatalf("Start should return the transport error with reconnect off")
	}

	_, errs, closes := obs.snapshot()
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1", len(errs))
	}
	if len(closes) != 1 {
		t.Errorf("got %d closes, want 1", len(closes))
	}
	if mon.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", mon.State())
	}
}

func TestMonitorReconnectsAndFillsGap(t *testing.T) {
	streams := []*scriptedStream{
		newScriptedStream([]uint64{10}, errors.New("connection reset")),
		newScriptedStream([]uint64{14}, nil),
	}
	var dialed int
	dial := func() HeadStream {
		s := streams[dialed]
		if dialed < len(streams)-1 {
			dialed++
		}
		return s
	}

	proc := &recordingProcessor{}
	obs := &recordingObserver{}

	mon := New(dial, proc, Config{
		Reconnect:             true,
		InitialReconnectDelay: time.Millisecond,
		MaxReconnectDelay:     2 * time.Millisecond,
	}, testLogger())
	mon.AddObserver(obs)

	done := make(chan error, 1)
	go func() { done <- mon.Start(context.Background()) }()

	waitFor(t, func() bool {
		return len(proc.processed()) == 5
	})

	mon.Stop()
	<-done

	want := []uint64{10, 11, 12, 13, 14}
	got := proc.processed()
	if len(got) != len(want) {
		t.Fatalf("processed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("processed %v, want %v", got, want)
		}
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	stream := newScriptedStream(nil, nil)
	mon := New(func() HeadStream { return stream }, &recordingProcessor{}, Config{}, testLogger())
	obs := &recordingObserver{}
	mon.AddObserver(obs)

	done := make(chan error, 1)
	go func() { done <- mon.Start(context.Background()) }()

	// Give the session a moment to come up, then stop twice.
	time.Sleep(10 * time.Millisecond)
	mon.Stop()
	mon.Stop()

	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _, closes := obs.snapshot()
	if len(closes) != 1 {
		t.Errorf("got %d close events, want 1", len(closes))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}
