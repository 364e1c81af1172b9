package game

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpenCreatesInitialState(t *testing.T) {
	g, store := newTestGame(t, Options{TurnDuration: time.Minute})
	if store.commits != 1 {
		t.Fatalf("initial commits=%d want=1", store.commits)
	}
	snap := g.Snapshot()
	if snap.Version != 0 || snap.Turn != 0 || !snap.IsDay {
		t.Fatalf("initial snapshot: %+v", snap)
	}
}

func TestOpenLoadsExistingState(t *testing.T) {
	g, store := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	version := g.Version()

	// A second engine over the same store resumes, not restarts.
	g2, err := Open(context.Background(), store, testLogger(), Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if g2.Version() != version {
		t.Fatalf("version after reopen=%d want=%d", g2.Version(), version)
	}
	if got := userBalance(t, g2, "alice"); got != StarterBalance {
		t.Fatalf("alice lost on reopen: %d", got)
	}
}

func TestVersionBumpsPerMutation(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	before := g.Version()
	addUser(t, g, "alice", RolePlayer)
	addUser(t, g, "bob", RolePlayer)
	if g.Version() != before+2 {
		t.Fatalf("version=%d want=%d", g.Version(), before+2)
	}
	if _, err := g.Transfer(context.Background(), TransferInput{FromID: "alice", ToID: "bob", Amount: 1}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if g.Version() != before+3 {
		t.Fatalf("version=%d want=%d", g.Version(), before+3)
	}
}

func TestFailedCommitLeavesStateUntouched(t *testing.T) {
	g, store := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	addUser(t, g, "bob", RolePlayer)
	version := g.Version()

	store.failNext = true
	_, err := g.Transfer(context.Background(), TransferInput{FromID: "alice", ToID: "bob", Amount: 100})
	if !errors.Is(err, errStubCommit) {
		t.Fatalf("want stub commit error, got %v", err)
	}
	if g.Version() != version {
		t.Fatalf("version advanced past failed commit: %d", g.Version())
	}
	if got := userBalance(t, g, "alice"); got != StarterBalance {
		t.Fatalf("balance mutated past failed commit: %d", got)
	}

	// The engine recovers on the next mutation.
	if _, err := g.Transfer(context.Background(), TransferInput{FromID: "alice", ToID: "bob", Amount: 100}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := userBalance(t, g, "bob"); got != StarterBalance+100 {
		t.Fatalf("retry not applied: %d", got)
	}
}

func TestTickAdvancesTurnClock(t *testing.T) {
	g, _ := newTestGame(t, Options{TurnDuration: time.Minute})
	ctx := context.Background()

	if err := g.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	snap := g.Snapshot()
	if snap.Turn != 1 || snap.IsDay {
		t.Fatalf("after first tick: turn=%d isDay=%v", snap.Turn, snap.IsDay)
	}
	if err := g.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	snap = g.Snapshot()
	if snap.Turn != 2 || !snap.IsDay {
		t.Fatalf("after second tick: turn=%d isDay=%v", snap.Turn, snap.IsDay)
	}
	if !snap.TurnEndsAt.After(time.Now().Add(50 * time.Second)) {
		t.Fatalf("turn deadline not pushed out: %v", snap.TurnEndsAt)
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	ctx := context.Background()
	addUser(t, g, "alice", RolePlayer)
	version := g.Version()

	if err := g.EnsureUser(ctx, "alice", "someone-else", RoleBanker); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if g.Version() != version {
		t.Fatalf("re-ensure committed a mutation")
	}
	for _, u := range g.Snapshot().Users {
		if u.ID == "alice" && (u.Username != "alice" || u.Role != RolePlayer) {
			t.Fatalf("existing user overwritten: %+v", u)
		}
	}
}

func TestSnapshotIsStableAcrossMutations(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	addUser(t, g, "bob", RolePlayer)

	old := g.Snapshot()
	oldBalance := old.Users[0].Balance
	if _, err := g.Transfer(context.Background(), TransferInput{FromID: "alice", ToID: "bob", Amount: 250}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	// The previously captured snapshot must not see the mutation.
	if old.Users[0].Balance != oldBalance {
		t.Fatalf("published snapshot mutated in place")
	}
	if g.Snapshot().Version != old.Version+1 {
		t.Fatalf("new snapshot version=%d want=%d", g.Snapshot().Version, old.Version+1)
	}
}

func TestSeedDefaultsOnlyOnEmptyWorld(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	ctx := context.Background()
	if err := g.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	stocks := len(g.Snapshot().Stocks)
	if stocks == 0 {
		t.Fatal("no stocks seeded")
	}
	if err := g.SeedDefaults(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if got := len(g.Snapshot().Stocks); got != stocks {
		t.Fatalf("reseed changed stocks: %d -> %d", stocks, got)
	}
}

func TestSpinRouletteAppliesClampedLoss(t *testing.T) {
	g, _ := newTestGame(t, Options{Seed: 7})
	addUser(t, g, "alice", RolePlayer)
	ctx := context.Background()

	g.mu.Lock()
	g.st.RouletteItems = []RouletteItem{{ID: "loss", Text: "lose big", Effect: -5000, Weight: 1}}
	g.mu.Unlock()

	out, err := g.SpinRoulette(ctx, SpinInput{SpinnerID: "alice"})
	if err != nil {
		t.Fatalf("spin: %v", err)
	}
	if out.Result.Applied != -StarterBalance {
		t.Fatalf("applied=%d want=%d", out.Result.Applied, -StarterBalance)
	}
	if got := userBalance(t, g, "alice"); got != 0 {
		t.Fatalf("balance=%d want=0", got)
	}
	if g.Snapshot().RouletteResult == nil || g.Snapshot().RouletteResult.Text != "lose big" {
		t.Fatalf("roulette result not published: %+v", g.Snapshot().RouletteResult)
	}
}
