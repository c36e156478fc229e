// Package ratelimiter implements C4: an in-process, two-dimensional request
// throttle (a rolling per-cycle window plus a daily refill bucket) and its
// companion exponential backoff, grounded on the account-side limits a
// provider API imposes on a single collector process.
package ratelimiter

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Status is a snapshot of the limiter's current admission state, returned to
// callers that want to report or log capacity rather than just block on it.
type Status struct {
	CycleUsed      int
	CycleLimit     int
	CycleResetAt   time.Time
	DailyUsed      int
	DailyLimit     int
	DailyResetAt   time.Time
}

// Limiter enforces a rolling-window cycle limit (a FIFO of timestamps, the
// oldest evicted once it ages out of the window) alongside a daily count
// that resets to zero on the first call at or after its reset time; that
// time is 24 hours after New and, after each reset, 24 hours after that
// reset. Both must have spare capacity for TryAcquire to succeed.
type Limiter struct {
	mu sync.Mutex

	cycleWindow time.Duration
	cycleLimit  int
	cycleCalls  *list.List // front = oldest

	dailyLimit   int
	dailyUsed    int
	dailyResetAt time.Time

	now func() time.Time
}

// New builds a Limiter. cycleLimit calls are allowed per cycleWindow, and at
// most dailyLimit calls in each 24h daily period (see Limiter).
func New(cycleLimit int, cycleWindow time.Duration, dailyLimit int) *Limiter {
	now := time.Now()
	return &Limiter{
		cycleWindow:  cycleWindow,
		cycleLimit:   cycleLimit,
		cycleCalls:   list.New(),
		dailyLimit:   dailyLimit,
		dailyResetAt: now.Add(24 * time.Hour),
		now:          time.Now,
	}
}

func (l *Limiter) evictExpired(now time.Time) {
	cutoff := now.Add(-l.cycleWindow)
	for e := l.cycleCalls.Front(); e != nil; {
		next := e.Next()
		if e.Value.(time.Time).Before(cutoff) {
			l.cycleCalls.Remove(e)
		} else {
			break
		}
		e = next
	}
	if !now.Before(l.dailyResetAt) {
		l.dailyUsed = 0
		l.dailyResetAt = now.Add(24 * time.Hour)
	}
}

// TryAcquire makes a single non-blocking admission decision.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictExpired(now)

	if l.cycleCalls.Len() >= l.cycleLimit {
		return false
	}
	if l.dailyUsed >= l.dailyLimit {
		return false
	}

	l.cycleCalls.PushBack(now)
	l.dailyUsed++
	return true
}

// Status reports the current admission state without consuming capacity.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictExpired(now)

	cycleResetAt := now
	if front := l.cycleCalls.Front(); front != nil {
		cycleResetAt = front.Value.(time.Time).Add(l.cycleWindow)
	}

	return Status{
		CycleUsed:    l.cycleCalls.Len(),
		CycleLimit:   l.cycleLimit,
		CycleResetAt: cycleResetAt,
		DailyUsed:    l.dailyUsed,
		DailyLimit:   l.dailyLimit,
		DailyResetAt: l.dailyResetAt,
	}
}

// WaitForToken blocks until capacity is available, the timeout elapses, or
// ctx is cancelled, polling on a short interval since the window drains
// continuously rather than on any single deadline.
func (l *Limiter) WaitForToken(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := l.now().Add(timeout)
	const pollInterval = 250 * time.Millisecond

	for {
		if l.TryAcquire() {
			return true, nil
		}
		if !l.now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
