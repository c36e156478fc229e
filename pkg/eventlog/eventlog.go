// Package eventlog implements C5: an append-only, file-backed audit trail.
// Every state transition the fleet makes (a reminder sent, a payment
// detected, a provider tripping DEGRADED) is appended as one JSON line;
// Replay tolerates a torn last line from a crash mid-append by skipping it
// rather than failing the whole read.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one audit record. Detail is caller-defined and kept opaque here;
// each producer package documents the shape it writes.
type Event struct {
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Log is an append-only event log backed by a single file. Appends are
// serialised by an in-process mutex and fsynced before return, so a
// concurrent crash can lose at most the event currently in flight.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open returns a Log appending to path, creating the parent directory and
// the file itself if either is absent.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening %s: %w", path, err)
	}
	f.Close()
	return &Log{path: path}, nil
}

// Append writes kind and detail as one new line. Every call assigns a
// fresh EventID and the current UTC Timestamp.
func (l *Log) Append(kind string, detail any) (Event, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: marshalling detail: %w", err)
	}

	ev := Event{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Detail:    raw,
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: marshalling event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: opening for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return Event{}, fmt.Errorf("eventlog: writing: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Event{}, fmt.Errorf("eventlog: fsync: %w", err)
	}

	return ev, nil
}

// Replay returns every event at or after since (all events if since is
// nil), in file order. A malformed line — the tail end of an interrupted
// append — is skipped rather than aborting the whole replay.
func (l *Log) Replay(since *time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: opening for replay: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if since != nil && ev.Timestamp.Before(*since) {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return events, fmt.Errorf("eventlog: scanning: %w", err)
	}

	return events, nil
}
