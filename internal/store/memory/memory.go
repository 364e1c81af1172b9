// Package memory holds game state in process. Used by tests and by the
// API server's in-memory mode for local play without Postgres.
package memory

import (
	"context"
	"sync"

	"tycoon/internal/game"
)

type Store struct {
	mu   sync.Mutex
	st   *game.State
	keys map[string]struct{}
}

func New() *Store {
	return &Store{keys: map[string]struct{}{}}
}

func (m *Store) LoadSnapshot(ctx context.Context) (*game.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		return nil, false, nil
	}
	return m.st.Clone(), true, nil
}

func (m *Store) Commit(ctx context.Context, st *game.State, appended []game.Transaction, idemKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idemKey != "" {
		if _, dup := m.keys[idemKey]; dup {
			return game.ErrDuplicateIdempotency
		}
	}
	m.st = st.Clone()
	if idemKey != "" {
		m.keys[idemKey] = struct{}{}
	}
	return nil
}
