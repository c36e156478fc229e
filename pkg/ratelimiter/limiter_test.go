package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireRespectsCycleLimit(t *testing.T) {
	l := New(2, time.Minute, 100)

	if !l.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if !l.TryAcquire() {
		t.Fatalf("expected second acquire to succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("expected third acquire to be denied by cycle limit")
	}
}

func TestTryAcquireRespectsDailyLimit(t *testing.T) {
	l := New(100, time.Minute, 1)

	if !l.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("expected second acquire to be denied by daily limit")
	}
}

func TestCycleWindowSlides(t *testing.T) {
	current := time.Now()
	l := New(1, 10*time.Millisecond, 100)
	l.now = func() time.Time { return current }

	if !l.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if l.TryAcquire() {
		t.Fatalf("expected immediate second acquire to be denied")
	}

	current = current.Add(20 * time.Millisecond)
	if !l.TryAcquire() {
		t.Fatalf("expected acquire to succeed once the window has slid past the first call")
	}
}

func TestWaitForTokenSucceedsOnceCapacityFrees(t *testing.T) {
	current := time.Now()
	l := New(1, 30*time.Millisecond, 100)
	l.now = func() time.Time { return current }

	if !l.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		current = current.Add(40 * time.Millisecond)
	}()

	ok, err := l.WaitForToken(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("WaitForToken: %v", err)
	}
	if !ok {
		t.Fatalf("expected WaitForToken to eventually succeed")
	}
}

func TestWaitForTokenHonoursContextCancellation(t *testing.T) {
	l := New(1, time.Minute, 100)
	l.TryAcquire()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.WaitForToken(ctx, time.Second)
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestStatusReportsUsage(t *testing.T) {
	l := New(5, time.Minute, 10)
	l.TryAcquire()
	l.TryAcquire()

	status := l.Status()
	if status.CycleUsed != 2 {
		t.Fatalf("expected CycleUsed=2, got %d", status.CycleUsed)
	}
	if status.DailyUsed != 2 {
		t.Fatalf("expected DailyUsed=2, got %d", status.DailyUsed)
	}
}
