package game

import (
	"context"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Store is the persistence collaborator. The engine needs nothing else
// from it: an initial snapshot and atomic commits that carry the
// append-only transaction tail. A non-empty idemKey must be claimed in
// the same atomic step as the commit; a key seen before fails the whole
// commit with ErrDuplicateIdempotency, and claims survive restarts with
// the rest of the state.
type Store interface {
	LoadSnapshot(ctx context.Context) (*State, bool, error)
	Commit(ctx context.Context, st *State, appended []Transaction, idemKey string) error
}

type Options struct {
	TurnDuration time.Duration
	NPCVoteMin   int
	NPCVoteMax   int
	Seed         int64 // rng seed; 0 means time-based
}

func (o Options) withDefaults() Options {
	if o.TurnDuration <= 0 {
		o.TurnDuration = DefaultTurnDuration
	}
	if o.NPCVoteMin <= 0 {
		o.NPCVoteMin = 3
	}
	if o.NPCVoteMax < o.NPCVoteMin {
		o.NPCVoteMax = o.NPCVoteMin + 7
	}
	return o
}

// GameStateStore is the aggregate root. All mutations serialize through
// one lock; every successful mutation commits to the Store, bumps the
// state version, and republishes the read snapshot. Reads never take
// the write lock.
type GameStateStore struct {
	store Store
	log   *slog.Logger
	opts  Options
	clock func() time.Time

	mu sync.Mutex
	st *State

	randMu sync.Mutex
	rand   *mathrand.Rand

	snap atomic.Pointer[Snapshot]
}

func Open(ctx context.Context, store Store, logger *slog.Logger, opts Options) (*GameStateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &GameStateStore{
		store: store,
		log:   logger,
		opts:  opts,
		clock: time.Now,
		rand:  mathrand.New(mathrand.NewSource(seed)),
	}

	st, ok, err := store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := g.clock()
	if !ok {
		st = NewState()
		st.TurnEndsAt = now.Add(opts.TurnDuration)
		if err := store.Commit(ctx, st, nil, ""); err != nil {
			return nil, err
		}
	}
	g.st = st
	g.snap.Store(buildSnapshot(st, now))
	return g, nil
}

// mutate is the single write path. The mutation runs against a clone;
// only a fully successful mutation (including the Store commit, which
// claims the idempotency key) becomes visible, so failures abort
// atomically with nothing partial persisted or published.
func (g *GameStateStore) mutate(ctx context.Context, idemKey string, fn func(st *State, now time.Time) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	next := g.st.Clone()
	mark := len(next.Transactions)
	if err := fn(next, now); err != nil {
		return err
	}
	next.Version = g.st.Version + 1
	if err := g.store.Commit(ctx, next, next.Transactions[mark:], idemKey); err != nil {
		return err
	}
	g.st = next
	g.snap.Store(buildSnapshot(next, now))
	return nil
}

// Snapshot returns the latest committed read view. Safe for concurrent
// use; the returned value is immutable.
func (g *GameStateStore) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Version returns the current committed state version.
func (g *GameStateStore) Version() int64 {
	return g.Snapshot().Version
}

// Tick advances the turn clock one step and runs the per-turn
// subsystems in fixed order (market, NPC spawn, NPC expiry, election)
// against one consistent timestamp for the whole pass.
func (g *GameStateStore) Tick(ctx context.Context) error {
	return g.mutate(ctx, "", func(st *State, now time.Time) error {
		st.Turn++
		st.IsDay = !st.IsDay
		st.TurnEndsAt = now.Add(g.opts.TurnDuration)
		marketTick(st, g, now, g.log)
		npcSpawnTick(st, g, now, g.log)
		npcExpireTick(st, g, now, g.log)
		if out := g.resolveElectionLocked(st, now); out.Status == "finished" {
			g.log.Info("election resolved", "winner", out.WinnerID)
		}
		return nil
	})
}

func (g *GameStateStore) nextFloat() float64 {
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return g.rand.Float64()
}

// Float64 and NormFloat64 make the store usable as the randSource the
// tick helpers consume.
func (g *GameStateStore) Float64() float64 { return g.nextFloat() }

func (g *GameStateStore) NormFloat64() float64 {
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return g.rand.NormFloat64()
}
