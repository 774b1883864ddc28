// Package statistics maintains a rolling success/failure count over a fixed
// time window, exposed as a sticky tripped/ok signal.
//
// Outcomes flow through a bounded channel into a single consumer goroutine so
// counter mutation is serialized without locking the read path. Counters
// reset every interval; the tripped flag never resets automatically - it is
// an observability signal, not a retry gate.
package statistics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval overrides the counter reset interval.
func WithInterval(interval time.Duration) Option {
	return func(t *Tracker) { t.interval = interval }
}

// WithThreshold overrides the failure-rate threshold.
func WithThreshold(threshold float64) Option {
	return func(t *Tracker) { t.threshold = threshold }
}

// WithQueueSize overrides the outcome queue capacity.
func WithQueueSize(size int) Option {
	return func(t *Tracker) { t.queueSize = size }
}

// Tracker is the rolling failure-statistics tracker.
type Tracker struct {
	outcomes  chan bool
	requests  atomic.Uint64
	failures  atomic.Uint64
	tripped   atomic.Bool
	interval  time.Duration
	threshold float64
	queueSize int
	logger    *slog.Logger
}

// New constructs a Tracker. Defaults: 60s interval, 0.1 threshold, 1024 queue.
func New(logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		interval:  time.Minute,
		threshold: 0.1,
		queueSize: 1024,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.outcomes = make(chan bool, t.queueSize)
	return t
}

// ReportSuccess enqueues a successful outcome. Never blocks; outcomes are
// dropped when the queue is full.
func (t *Tracker) ReportSuccess() {
	t.report(true)
}

// ReportFailure enqueues a failed outcome.
func (t *Tracker) ReportFailure() {
	t.report(false)
}

func (t *Tracker) report(ok bool) {
	select {
	case t.outcomes <- ok:
	default:
		t.logger.Warn("statistics queue full, dropping outcome", "success", ok)
	}
}

// Run consumes outcomes and resets counters every interval. It drains the
// queue before returning when ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.drain()
			return ctx.Err()
		case <-ticker.C:
			t.reset()
		case ok := <-t.outcomes:
			t.consume(ok)
		}
	}
}

func (t *Tracker) consume(ok bool) {
	t.requests.Add(1)
	if !ok {
		t.failures.Add(1)
	}
}

func (t *Tracker) drain() {
	for {
		select {
		case ok := <-t.outcomes:
			t.consume(ok)
		default:
			return
		}
	}
}

func (t *Tracker) reset() {
	t.logger.Debug("resetting failure statistics",
		"requests", t.requests.Load(),
		"failures", t.failures.Load(),
	)
	t.requests.Store(0)
	t.failures.Store(0)
}

// CurrentRate returns the failure rate of the current window, 0 when no
// requests were observed.
func (t *Tracker) CurrentRate() float64 {
	requests := t.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(t.failures.Load()) / float64(requests)
}

// Status reports whether the tracker has tripped. Crossing the threshold sets
// the flag; once set it is returned on every subsequent call regardless of
// later healthy windows.
func (t *Tracker) Status() bool {
	if t.CurrentRate() > t.threshold {
		t.tripped.Store(true)
	}
	return t.tripped.Load()
}
