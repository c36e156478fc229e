package ratelimiter

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff is the companion exponential backoff of §4.4: base*2^k capped at
// max_delay, with an automatic reset after 60s of no use. It wraps
// cenkalti/backoff's exponential calculator, fixing the multiplier at 2 so
// NextDelay reproduces the doubling sequence the spec names exactly.
type Backoff struct {
	mu         sync.Mutex
	inner      *backoff.ExponentialBackOff
	lastUsed   time.Time
	idleWindow time.Duration
}

// NewBackoff builds a Backoff with the given base and max delay.
func NewBackoff(base, maxDelay time.Duration) *Backoff {
	inner := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		Multiplier:          2,
		RandomizationFactor: 0,
		MaxInterval:         maxDelay,
	}
	inner.Reset()
	return &Backoff{
		inner:      inner,
		idleWindow: 60 * time.Second,
	}
}

// NextDelay returns the next backoff delay, resetting the sequence first if
// more than idleWindow has elapsed since the last call.
func (b *Backoff) NextDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if !b.lastUsed.IsZero() && now.Sub(b.lastUsed) > b.idleWindow {
		b.inner.Reset()
	}
	b.lastUsed = now
	return b.inner.NextBackOff()
}

// Reset clears the attempt counter immediately.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Reset()
	b.lastUsed = time.Time{}
}
