// Package syncq is the offline queue behind `tyc sync`. When the API is
// unreachable, money-moving commands are parked here and replayed in
// the order they were issued; each entry keeps the idempotency key it
// was minted with, so a replay the server already saw is a no-op.
package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Entry is one parked command, enough to rebuild the original request.
type Entry struct {
	QueuedAt       time.Time      `json:"queued_at"`
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Queue is a JSON file under the tyc config dir. Every operation reads
// or rewrites the whole file; the queue is small and single-user.
type Queue struct {
	path string
}

func Open() (*Queue, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".tyc")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Queue{path: filepath.Join(dir, "queue.json")}, nil
}

// OpenAt opens a queue at an explicit file path.
func OpenAt(path string) *Queue {
	return &Queue{path: path}
}

// Entries returns the parked commands, oldest first. A missing or
// empty file is an empty queue.
func (q *Queue) Entries() ([]Entry, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Park appends an entry, stamping QueuedAt if the caller left it zero.
func (q *Queue) Park(e Entry) error {
	entries, err := q.Entries()
	if err != nil {
		return err
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now().UTC()
	}
	return q.rewrite(append(entries, e))
}

// Keep replaces the queue with the entries that still need replaying.
func (q *Queue) Keep(entries []Entry) error {
	return q.rewrite(entries)
}

func (q *Queue) rewrite(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}
