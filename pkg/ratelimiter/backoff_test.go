package ratelimiter

import (
	"testing"
	"time"
)

func TestBackoffDoublesEachCall(t *testing.T) {
	b := NewBackoff(1*time.Second, 100*time.Second)

	first := b.NextDelay()
	second := b.NextDelay()
	third := b.NextDelay()

	if first != 1*time.Second {
		t.Fatalf("expected first delay of 1s, got %v", first)
	}
	if second != 2*time.Second {
		t.Fatalf("expected second delay of 2s, got %v", second)
	}
	if third != 4*time.Second {
		t.Fatalf("expected third delay of 4s, got %v", third)
	}
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := NewBackoff(1*time.Second, 3*time.Second)

	b.NextDelay()
	b.NextDelay()
	capped := b.NextDelay()

	if capped > 3*time.Second {
		t.Fatalf("expected delay capped at 3s, got %v", capped)
	}
}

func TestBackoffResetsAfterIdleWindow(t *testing.T) {
	b := NewBackoff(1*time.Second, 100*time.Second)
	b.NextDelay()
	b.NextDelay()

	b.lastUsed = time.Now().Add(-90 * time.Second)

	next := b.NextDelay()
	if next != 1*time.Second {
		t.Fatalf("expected backoff to reset to base delay after idle window, got %v", next)
	}
}

func TestBackoffResetClearsSequence(t *testing.T) {
	b := NewBackoff(1*time.Second, 100*time.Second)
	b.NextDelay()
	b.NextDelay()

	b.Reset()

	next := b.NextDelay()
	if next != 1*time.Second {
		t.Fatalf("expected reset backoff to restart at base delay, got %v", next)
	}
}
