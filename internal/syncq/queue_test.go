package syncq

import (
	"path/filepath"
	"testing"
)

func TestQueueParkAndKeep(t *testing.T) {
	q := OpenAt(filepath.Join(t.TempDir(), "queue.json"))

	entries, err := q.Entries()
	if err != nil {
		t.Fatalf("empty queue: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh queue has %d entries", len(entries))
	}

	first := Entry{
		Method:         "POST",
		Path:           "/v1/transfer",
		Body:           map[string]any{"to_user_id": "bob", "amount": float64(50)},
		IdempotencyKey: "k1",
	}
	if err := q.Park(first); err != nil {
		t.Fatalf("park: %v", err)
	}
	if err := q.Park(Entry{Method: "POST", Path: "/v1/deposit", IdempotencyKey: "k2"}); err != nil {
		t.Fatalf("park second: %v", err)
	}

	entries, err = q.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len=%d want=2", len(entries))
	}
	if entries[0].IdempotencyKey != "k1" || entries[1].IdempotencyKey != "k2" {
		t.Fatalf("replay order lost: %v", entries)
	}
	if entries[0].QueuedAt.IsZero() {
		t.Fatalf("queued_at not stamped")
	}
	if entries[0].Body["to_user_id"] != "bob" {
		t.Fatalf("body not preserved: %v", entries[0].Body)
	}

	// A partial replay keeps only what failed.
	if err := q.Keep(entries[1:]); err != nil {
		t.Fatalf("keep: %v", err)
	}
	entries, err = q.Entries()
	if err != nil {
		t.Fatalf("entries after keep: %v", err)
	}
	if len(entries) != 1 || entries[0].IdempotencyKey != "k2" {
		t.Fatalf("keep kept wrong entries: %v", entries)
	}

	if err := q.Keep(nil); err != nil {
		t.Fatalf("drain: %v", err)
	}
	entries, err = q.Entries()
	if err != nil {
		t.Fatalf("entries after drain: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("drained queue has %d entries", len(entries))
	}
}
