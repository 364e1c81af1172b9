package game

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startElection(t *testing.T, g *GameStateStore, candidates ...string) {
	t.Helper()
	if err := g.StartElection(context.Background(), candidates, time.Hour, ""); err != nil {
		t.Fatalf("start election: %v", err)
	}
}

func TestStartElectionValidation(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "banker", RoleBanker)
	addUser(t, g, "alice", RolePlayer)
	addUser(t, g, "bob", RolePlayer)
	ctx := context.Background()

	if err := g.StartElection(ctx, []string{"alice"}, time.Hour, ""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("one candidate: want ErrInvalidConfig, got %v", err)
	}
	if err := g.StartElection(ctx, []string{"alice", "ghost"}, time.Hour, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown candidate: want ErrNotFound, got %v", err)
	}
	startElection(t, g, "alice", "bob")
	if err := g.StartElection(ctx, []string{"alice", "bob"}, time.Hour, ""); !errors.Is(err, ErrElectionActive) {
		t.Fatalf("second election: want ErrElectionActive, got %v", err)
	}
}

func TestCastVoteRules(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	addUser(t, g, "bob", RolePlayer)
	ctx := context.Background()

	if err := g.CastVote(ctx, "alice", "bob", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("vote without election: want ErrNotFound, got %v", err)
	}
	startElection(t, g, "alice", "bob")
	if err := g.CastVote(ctx, "alice", "ghost", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("vote for non-candidate: want ErrNotFound, got %v", err)
	}
	if err := g.CastVote(ctx, "alice", "bob", ""); err != nil {
		t.Fatalf("vote: %v", err)
	}
	// Re-voting replaces the ballot.
	if err := g.CastVote(ctx, "alice", "alice", ""); err != nil {
		t.Fatalf("revote: %v", err)
	}
	if votes := g.Snapshot().Election.Votes; len(votes) != 1 || votes["alice"] != "alice" {
		t.Fatalf("votes=%v", votes)
	}
}

func TestElectionResolution(t *testing.T) {
	g, _ := newTestGame(t, Options{NPCVoteMin: 1, NPCVoteMax: 1})
	addUser(t, g, "banker", RoleBanker)
	addUser(t, g, "alice", RolePlayer)
	addUser(t, g, "bob", RolePlayer)
	addUser(t, g, "carol", RolePlayer)
	ctx := context.Background()

	startElection(t, g, "alice", "bob")
	for _, voter := range []string{"alice", "bob", "carol"} {
		if err := g.CastVote(ctx, voter, "alice", ""); err != nil {
			t.Fatalf("vote %s: %v", voter, err)
		}
	}

	out, err := g.ResolveElection(ctx, "")
	if err != nil {
		t.Fatalf("resolve early: %v", err)
	}
	if out.Status != "not_due" {
		t.Fatalf("early status=%s", out.Status)
	}

	setClock(g, time.Now().Add(2*time.Hour))
	out, err = g.ResolveElection(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status != "finished" || out.WinnerID != "alice" {
		t.Fatalf("outcome=%+v", out)
	}

	var aliceRole, bankerRole Role
	for _, u := range g.Snapshot().Users {
		switch u.ID {
		case "alice":
			aliceRole = u.Role
		case "banker":
			bankerRole = u.Role
		}
	}
	if aliceRole != RoleBanker || bankerRole != RolePlayer {
		t.Fatalf("roles after swap: alice=%s banker=%s", aliceRole, bankerRole)
	}

	// Resolution is terminal and idempotent.
	again, err := g.ResolveElection(ctx, "")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.Status != "already_finished" || again.WinnerID != "alice" {
		t.Fatalf("second outcome=%+v", again)
	}
}

func TestElectionTieBreaksByCandidateOrder(t *testing.T) {
	// No player votes and a fixed two-ballot NPC turnout. Whenever the
	// tallies come out equal the earlier candidate must win.
	g, _ := newTestGame(t, Options{NPCVoteMin: 2, NPCVoteMax: 2, Seed: 42})
	addUser(t, g, "bob", RolePlayer)
	addUser(t, g, "alice", RolePlayer)
	ctx := context.Background()

	startElection(t, g, "bob", "alice")
	setClock(g, time.Now().Add(2*time.Hour))
	out, err := g.ResolveElection(ctx, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Status != "finished" {
		t.Fatalf("status=%s", out.Status)
	}
	if out.Tally["bob"] == out.Tally["alice"] && out.WinnerID != "bob" {
		t.Fatalf("tie did not break toward first candidate: %+v", out)
	}
	if out.Tally["bob"]+out.Tally["alice"] != 2 {
		t.Fatalf("npc turnout not honored: %+v", out.Tally)
	}
}

func TestCandidateReward(t *testing.T) {
	u := &User{Popularity: 3, Rating: 2, Happiness: 4, Balance: 950}
	// 10*3 + 8*2 + 5*4 + 950/100 = 30 + 16 + 20 + 9
	if got := candidateReward(u); got != 75 {
		t.Fatalf("reward=%d want=75", got)
	}
	broke := &User{Popularity: -100}
	if got := candidateReward(broke); got != 0 {
		t.Fatalf("negative reward not floored: %d", got)
	}
}
