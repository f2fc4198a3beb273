package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics tracks limiter activity
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter is a semaphore that caps how many bindings run at once across
// every executor sharing it
type Limiter struct {
	slots chan struct{}

	active   atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
	peak     atomic.Int64
	waitNs   atomic.Int64
}

// NewLimiter creates a limiter with the given number of slots. Anything
// below one means one.
func NewLimiter(maxConcurrent int) *Limiter {
	return &Limiter{slots: make(chan struct{}, max(maxConcurrent, 1))}
}

// Capacity returns the number of slots
func (l *Limiter) Capacity() int { return cap(l.slots) }

// Acquire blocks until a slot is free or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.slots <- struct{}{}:
	}
	l.waitNs.Add(time.Since(start).Nanoseconds())
	l.acquired.Add(1)

	n := l.active.Add(1)
	for p := l.peak.Load(); n > p && !l.peak.CompareAndSwap(p, n); p = l.peak.Load() {
	}
	return nil
}

// Release frees a slot. Releasing an idle limiter is a no-op.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
		l.active.Add(-1)
		l.released.Add(1)
	default:
	}
}

// GoSync runs fn while holding a slot
func (l *Limiter) GoSync(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// CurrentActive returns the number of held slots
func (l *Limiter) CurrentActive() int64 { return l.active.Load() }

// GetMetrics returns a snapshot
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   l.acquired.Load(),
		TotalReleased:   l.released.Load(),
		PeakConcurrent:  l.peak.Load(),
		TotalWaitTimeNs: l.waitNs.Load(),
	}
}

// GetAverageWaitTime is the mean time spent in Acquire
func (l *Limiter) GetAverageWaitTime() time.Duration {
	n := l.acquired.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(l.waitNs.Load() / n)
}

// Reset clears the counters but not the held slots
func (l *Limiter) Reset() {
	l.acquired.Store(0)
	l.released.Store(0)
	l.peak.Store(0)
	l.waitNs.Store(0)
}
