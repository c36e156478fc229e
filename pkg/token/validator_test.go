package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/novotechno/collections/pkg/ratelimiter"
	"github.com/novotechno/collections/pkg/secretstore"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	backend, err := secretstore.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	store, err := secretstore.New(backend, "novotechno-collections", "host-abc123", []byte("salt"))
	if err != nil {
		t.Fatalf("secretstore.New: %v", err)
	}
	return NewCache(store)
}

type stubRefresher struct {
	fail  bool
	calls int
}

func (s *stubRefresher) Refresh(ctx context.Context, account string, tok Token) (*oauth2.Token, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("provider unreachable")
	}
	return &oauth2.Token{
		AccessToken: "fresh-token-value",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

type stubEscalator struct {
	notified bool
	provider string
}

func (s *stubEscalator) NotifyDegraded(provider, account string, cause error) {
	s.notified = true
	s.provider = provider
}

func TestIsExpiredBoundary(t *testing.T) {
	now := time.Now()
	atBuffer := Token{ExpiresAt: now.Add(ExpiryBuffer)}
	if !atBuffer.IsExpired(now) {
		t.Fatalf("token exactly at the buffer boundary should be considered expired")
	}
	beyondBuffer := Token{ExpiresAt: now.Add(ExpiryBuffer + time.Second)}
	if beyondBuffer.IsExpired(now) {
		t.Fatalf("token one second beyond the buffer should not be expired")
	}
}

func TestAcquireReturnsCachedTokenWhenFresh(t *testing.T) {
	cache := newTestCache(t)
	refresher := &stubRefresher{}
	v := NewValidator(cache, refresher, nil, nil)

	fresh := Token{AccessToken: "still-good", ExpiresAt: time.Now().Add(time.Hour)}
	if err := cache.Save("microsoft", "acct1", fresh); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := v.Acquire(context.Background(), "microsoft", "acct1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.AccessToken != "still-good" {
		t.Fatalf("expected cached token returned without refresh, got %q", got.AccessToken)
	}
	if refresher.calls != 0 {
		t.Fatalf("expected no refresh calls, got %d", refresher.calls)
	}
}

func TestAcquireRefreshesExpiredToken(t *testing.T) {
	cache := newTestCache(t)
	refresher := &stubRefresher{}
	v := NewValidator(cache, refresher, nil, nil)

	stale := Token{AccessToken: "old-token-val", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := cache.Save("microsoft", "acct1", stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := v.Acquire(context.Background(), "microsoft", "acct1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.AccessToken != "fresh-token-value" {
		t.Fatalf("expected refreshed token, got %q", got.AccessToken)
	}
}

func TestAcquireTripsDegradedAfterThreeFailures(t *testing.T) {
	cache := newTestCache(t)
	refresher := &stubRefresher{fail: true}
	escalator := &stubEscalator{}
	v := NewValidator(cache, refresher, escalator, nil)
	v.backoff = ratelimiter.NewBackoff(time.Millisecond, 5*time.Millisecond)

	stale := Token{AccessToken: "old-token-val", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := cache.Save("microsoft", "acct1", stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := v.Acquire(context.Background(), "microsoft", "acct1")
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected ErrDegraded after exhausting attempts, got %v", err)
	}
	if refresher.calls != MaxRefreshAttempts {
		t.Fatalf("expected %d refresh attempts, got %d", MaxRefreshAttempts, refresher.calls)
	}
	if !escalator.notified || escalator.provider != "microsoft" {
		t.Fatalf("expected escalator notified for provider microsoft")
	}

	_, err = v.Acquire(context.Background(), "microsoft", "acct1")
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected fast-fail ErrDegraded on subsequent acquire, got %v", err)
	}
	if refresher.calls != MaxRefreshAttempts {
		t.Fatalf("degraded provider should not attempt further network refreshes, got %d calls", refresher.calls)
	}
}

func TestResetDegradedRestoresActive(t *testing.T) {
	cache := newTestCache(t)
	refresher := &stubRefresher{fail: true}
	v := NewValidator(cache, refresher, nil, nil)
	v.backoff = ratelimiter.NewBackoff(time.Millisecond, 5*time.Millisecond)

	stale := Token{AccessToken: "old-token-val", ExpiresAt: time.Now().Add(-time.Minute)}
	if err := cache.Save("microsoft", "acct1", stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := v.Acquire(context.Background(), "microsoft", "acct1"); !errors.Is(err, ErrDegraded) {
		t.Fatalf("expected initial degraded trip, got %v", err)
	}
	if !v.IsDegraded("microsoft") {
		t.Fatalf("expected provider marked degraded")
	}

	v.ResetDegraded("microsoft")
	if v.IsDegraded("microsoft") {
		t.Fatalf("expected provider restored to active after reset")
	}

	refresher.fail = false
	got, err := v.Acquire(context.Background(), "microsoft", "acct1")
	if err != nil {
		t.Fatalf("Acquire after reset: %v", err)
	}
	if got.AccessToken != "fresh-token-value" {
		t.Fatalf("expected successful refresh after reset, got %q", got.AccessToken)
	}
}
