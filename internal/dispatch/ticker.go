package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Ticker drives the dispatch loop: a fixed-period cancellable task with
// an immediate first tick and panic isolation, controllable from the
// API (start/stop/status).
type Ticker struct {
	interval time.Duration
	tickFn   func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTicker(interval time.Duration, tickFn func(context.Context)) (*Ticker, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Ticker{
		interval: interval,
		tickFn:   tickFn,
		done:     make(chan struct{}),
	}, nil
}

func (t *Ticker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running.Store(true)

	go func() {
		defer close(t.done)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		slog.Info("dispatch loop started", "interval", t.interval.String())

		t.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("dispatch loop stopping")
				return
			case <-ticker.C:
				t.safeTick(ctx)
			}
		}
	}()

	return true
}

func (t *Ticker) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running.Load() {
		return false
	}

	t.cancel()
	<-t.done
	t.running.Store(false)

	slog.Info("dispatch loop stopped")
	return true
}

func (t *Ticker) IsRunning() bool {
	return t.running.Load()
}

// safeTick keeps a panicking tick from killing the loop; the next tick
// still runs.
func (t *Ticker) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch tick panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	t.tickFn(ctx)
	slog.Debug("dispatch tick completed", "duration_ms", time.Since(start).Milliseconds())
}
