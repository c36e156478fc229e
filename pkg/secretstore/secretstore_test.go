package secretstore

import (
	"bytes"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	store, err := New(backend, "novotechno-collections", "host-abc123", []byte("installation-salt"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	plain := []byte(`{"access_token":"super-secret"}`)

	if err := s.Put("microsoft:acct1", plain); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("microsoft:acct1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plain)
	}
}

func TestStoreNeverPersistsPlaintext(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	store, err := New(backend, "novotechno-collections", "host-abc123", []byte("salt"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plain := []byte("super-secret-access-token")
	if err := store.Put("k", plain); err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw, err := backend.Get("k")
	if err != nil {
		t.Fatalf("backend Get: %v", err)
	}
	if bytes.Contains(raw, plain) {
		t.Fatalf("plaintext token bytes observed in backend storage")
	}
}

func TestStoreGetAbsent(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put("k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
