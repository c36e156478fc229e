package agentctx

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/novotechno/collections/pkg/secretstore"
)

const appName = "novotechno-collections"

// OpenSecretStore builds the encrypted-at-rest token store (C1) used by
// every agent that touches OAuth credentials. The install salt is
// generated once and persisted at cfg.InstallSaltPath; the host-stable
// identity is the machine hostname.
func OpenSecretStore(secretsDir, installSaltPath string) (*secretstore.Store, error) {
	backend, err := secretstore.NewFileBackend(secretsDir)
	if err != nil {
		return nil, fmt.Errorf("agentctx: opening secret backend: %w", err)
	}

	salt, err := loadOrCreateSalt(installSaltPath)
	if err != nil {
		return nil, fmt.Errorf("agentctx: loading install salt: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}

	store, err := secretstore.New(backend, appName, host, salt)
	if err != nil {
		return nil, fmt.Errorf("agentctx: building secret store: %w", err)
	}
	return store, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	existing, err := os.ReadFile(path)
	if err == nil && len(existing) > 0 {
		return existing, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating install salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("persisting install salt: %w", err)
	}
	return salt, nil
}
