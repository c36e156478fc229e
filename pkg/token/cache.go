package token

import (
	"errors"
	"fmt"

	"github.com/novotechno/collections/pkg/secretstore"
)

// ErrNotConfigured is returned when no token has ever been cached for an
// account.
var ErrNotConfigured = errors.New("token: not configured for account")

// Cache wraps a secretstore.Store with the Token schema (C2). It never
// exposes an enumeration API — the backing store may not support listing,
// so callers track their own account identifiers per §4.2.
type Cache struct {
	store *secretstore.Store
}

// NewCache wraps store.
func NewCache(store *secretstore.Store) *Cache {
	return &Cache{store: store}
}

// Save serialises, encrypts, and persists tok under (provider, account).
func (c *Cache) Save(provider, account string, tok Token) error {
	tok.Provider = provider
	tok.Account = account

	data, err := marshal(tok)
	if err != nil {
		return fmt.Errorf("token: marshalling: %w", err)
	}
	if err := c.store.Put(cacheKey(provider, account), data); err != nil {
		return fmt.Errorf("token: saving %s/%s: %w", provider, account, err)
	}
	return nil
}

// Load retrieves and decrypts the token cached for (provider, account).
func (c *Cache) Load(provider, account string) (Token, error) {
	data, err := c.store.Get(cacheKey(provider, account))
	if err != nil {
		if errors.Is(err, secretstore.ErrNotFound) {
			return Token{}, ErrNotConfigured
		}
		return Token{}, fmt.Errorf("token: loading %s/%s: %w", provider, account, err)
	}
	tok, err := unmarshal(data)
	if err != nil {
		return Token{}, fmt.Errorf("token: unmarshalling %s/%s: %w", provider, account, err)
	}
	return tok, nil
}

// Delete removes the cached token for (provider, account), used by an
// operator reset after a DEGRADED trip.
func (c *Cache) Delete(provider, account string) error {
	return c.store.Delete(cacheKey(provider, account))
}
