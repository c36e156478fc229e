package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/novotechno/collections/internal/telemetry"
	"github.com/novotechno/collections/pkg/ratelimiter"
)

// MaxRefreshAttempts bounds the silent-refresh loop of §4.3 before a
// provider trips into DEGRADED.
const MaxRefreshAttempts = 3

// ErrDegraded is returned by Acquire when the provider is tripped.
var ErrDegraded = errors.New("token: provider is in degraded mode")

// Refresher performs the actual OAuth2 refresh-token exchange against the
// provider's token endpoint. Concrete providers (Microsoft identity
// platform, Google, etc.) each get one implementation; the validator only
// ever sees this interface.
type Refresher interface {
	Refresh(ctx context.Context, account string, tok Token) (*oauth2.Token, error)
}

// Escalator is notified when a provider trips into DEGRADED, so the
// supervisor component can surface it without the validator importing the
// mailbox package directly.
type Escalator interface {
	NotifyDegraded(provider, account string, cause error)
}

type providerState struct {
	mu       sync.Mutex
	degraded bool
	attempts int
}

// Validator is C3: every Acquire call returns either a token valid for at
// least ExpiryBuffer or an error; once refresh attempts are exhausted that
// error is ErrDegraded.
type Validator struct {
	cache     *Cache
	refresher Refresher
	escalator Escalator
	log       *slog.Logger
	backoff   *ratelimiter.Backoff

	mu     sync.Mutex
	states map[string]*providerState
}

// NewValidator builds a Validator. escalator may be nil, in which case a
// DEGRADED trip is only observable via Acquire's returned error and the log.
func NewValidator(cache *Cache, refresher Refresher, escalator Escalator, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{
		cache:     cache,
		refresher: refresher,
		escalator: escalator,
		log:       log,
		backoff:   ratelimiter.NewBackoff(1*time.Second, 30*time.Second),
		states:    make(map[string]*providerState),
	}
}

func (v *Validator) stateFor(provider string) *providerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.states[provider]
	if !ok {
		st = &providerState{}
		v.states[provider] = st
	}
	return st
}

// Acquire returns a token guaranteed valid for at least ExpiryBuffer beyond
// now, refreshing silently if needed. If the provider has already tripped
// DEGRADED, it fails fast without attempting network I/O.
func (v *Validator) Acquire(ctx context.Context, provider, account string) (Token, error) {
	st := v.stateFor(provider)

	st.mu.Lock()
	if st.degraded {
		st.mu.Unlock()
		return Token{}, fmt.Errorf("%w: %s", ErrDegraded, provider)
	}
	st.mu.Unlock()

	tok, err := v.cache.Load(provider, account)
	if err != nil {
		return Token{}, err
	}
	if !tok.IsExpired(time.Now()) {
		return tok, nil
	}

	return v.silentRefresh(ctx, st, provider, account, tok)
}

func (v *Validator) silentRefresh(ctx context.Context, st *providerState, provider, account string, stale Token) (Token, error) {
	var lastErr error

	for attempt := 0; attempt < MaxRefreshAttempts; attempt++ {
		newTok, err := v.refresher.Refresh(ctx, account, stale)
		if err == nil {
			refreshed := Token{
				AccessToken:  newTok.AccessToken,
				TokenType:    newTok.TokenType,
				ExpiresAt:    newTok.Expiry,
				RefreshToken: coalesce(newTok.RefreshToken, stale.RefreshToken),
				Scope:        stale.Scope,
				AccountID:    stale.AccountID,
				CachedAt:     time.Now(),
			}
			if err := v.cache.Save(provider, account, refreshed); err != nil {
				return Token{}, fmt.Errorf("token: caching refreshed token: %w", err)
			}

			v.log.Info("token refreshed",
				"provider", provider,
				"account", account,
				"old_prefix", prefix(stale.AccessToken),
				"new_prefix", prefix(refreshed.AccessToken),
				"attempt", attempt+1,
			)

			st.mu.Lock()
			st.attempts = 0
			st.mu.Unlock()
			telemetry.TokenRefreshesTotal.WithLabelValues(provider, "success").Inc()

			return refreshed, nil
		}

		lastErr = err
		v.log.Warn("token refresh attempt failed",
			"provider", provider,
			"account", account,
			"attempt", attempt+1,
			"error", err,
		)

		if attempt < MaxRefreshAttempts-1 {
			delay := v.backoff.NextDelay()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Token{}, ctx.Err()
			}
		}
	}

	st.mu.Lock()
	st.degraded = true
	st.attempts = MaxRefreshAttempts
	st.mu.Unlock()

	v.log.Error("token provider tripped into degraded mode",
		"provider", provider,
		"account", account,
		"cause", lastErr,
	)
	telemetry.TokenRefreshesTotal.WithLabelValues(provider, "degraded").Inc()
	if v.escalator != nil {
		v.escalator.NotifyDegraded(provider, account, lastErr)
	}

	return Token{}, fmt.Errorf("%w: %s: exhausted %d refresh attempts: %v", ErrDegraded, provider, MaxRefreshAttempts, lastErr)
}

// ResetDegraded is the operator action that restores a provider to ACTIVE
// after its root cause (expired refresh token, revoked consent, ...) has
// been fixed out of band.
func (v *Validator) ResetDegraded(provider string) {
	st := v.stateFor(provider)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.degraded = false
	st.attempts = 0
	v.backoff.Reset()
}

// IsDegraded reports the current state machine value for provider.
func (v *Validator) IsDegraded(provider string) bool {
	st := v.stateFor(provider)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.degraded
}

func prefix(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
