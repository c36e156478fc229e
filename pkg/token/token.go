// Package token implements the credential lifecycle (C2 TokenCache, C3
// TokenValidator): a typed token record over the encrypted secret store,
// pre-request validity checks, silent refresh, and the DEGRADED trip.
package token

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExpiryBuffer is the default lead time before expiry at which a token is
// considered due for refresh (§4.3).
const ExpiryBuffer = 300 * time.Second

// Token is the (provider, account)-keyed credential record of §3.
type Token struct {
	Provider     string    `json:"provider"`
	Account      string    `json:"account"`
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	AccountID    string    `json:"account_id,omitempty"`
	CachedAt     time.Time `json:"cached_at"`
}

// IsExpired reports whether the token is within ExpiryBuffer of (or past)
// its expiry instant, evaluated against now.
func (t Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt.Add(-ExpiryBuffer))
}

func cacheKey(provider, account string) string {
	return fmt.Sprintf("%s:%s", provider, account)
}

func marshal(t Token) ([]byte, error) {
	return json.Marshal(t)
}

func unmarshal(data []byte) (Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, err
	}
	return t, nil
}
