package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// stubStore keeps the committed state in memory. Tests can count commits,
// force the next commit to fail, and it claims idempotency keys the same
// way the real stores do.
type stubStore struct {
	st       *State
	keys     map[string]struct{}
	commits  int
	failNext bool
}

var errStubCommit = errors.New("stub commit failure")

func (s *stubStore) LoadSnapshot(_ context.Context) (*State, bool, error) {
	if s.st == nil {
		return nil, false, nil
	}
	return s.st.Clone(), true, nil
}

func (s *stubStore) Commit(_ context.Context, st *State, _ []Transaction, idemKey string) error {
	if s.failNext {
		s.failNext = false
		return errStubCommit
	}
	if idemKey != "" {
		if s.keys == nil {
			s.keys = map[string]struct{}{}
		}
		if _, dup := s.keys[idemKey]; dup {
			return ErrDuplicateIdempotency
		}
		s.keys[idemKey] = struct{}{}
	}
	s.st = st.Clone()
	s.commits++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGame(t *testing.T, opts Options) (*GameStateStore, *stubStore) {
	t.Helper()
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	store := &stubStore{}
	g, err := Open(context.Background(), store, testLogger(), opts)
	if err != nil {
		t.Fatalf("open game: %v", err)
	}
	return g, store
}

func addUser(t *testing.T, g *GameStateStore, id string, role Role) {
	t.Helper()
	if err := g.EnsureUser(context.Background(), id, id, role); err != nil {
		t.Fatalf("ensure user %s: %v", id, err)
	}
}

func userBalance(t *testing.T, g *GameStateStore, id string) int64 {
	t.Helper()
	for _, u := range g.Snapshot().Users {
		if u.ID == id {
			return u.Balance
		}
	}
	t.Fatalf("user %s not in snapshot", id)
	return 0
}

func setClock(g *GameStateStore, at time.Time) {
	g.mu.Lock()
	g.clock = func() time.Time { return at }
	g.mu.Unlock()
}
