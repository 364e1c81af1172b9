package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestNPCSpawnTargetsPlayersOnly(t *testing.T) {
	st := NewState()
	st.Users["banker"] = &User{ID: "banker", Role: RoleBanker, Balance: 1000, Holdings: map[string]int64{}}
	st.Users["alice"] = &User{ID: "alice", Role: RolePlayer, Balance: 1000, Holdings: map[string]int64{}}
	st.NPCTemplates = []NPCTemplate{
		{ID: "customer", Name: "Customer", SpawnRate: 100, Duration: time.Minute, Action: NPCBuy, MinAmount: 10, MaxAmount: 20},
	}
	rng := rand.New(rand.NewSource(3))

	npcSpawnTick(st, rng, time.Now(), testLogger())
	if len(st.NPCs) != 1 {
		t.Fatalf("want 1 spawn at rate 100, got %d", len(st.NPCs))
	}
	for _, npc := range st.NPCs {
		if npc.TargetUserID != "alice" {
			t.Fatalf("npc targeted %s", npc.TargetUserID)
		}
	}
}

func TestNPCSpawnSkipsMalformedTemplates(t *testing.T) {
	st := NewState()
	st.Users["alice"] = &User{ID: "alice", Role: RolePlayer, Balance: 1000, Holdings: map[string]int64{}}
	st.NPCTemplates = []NPCTemplate{
		{ID: "bad-action", SpawnRate: 100, Duration: time.Minute, Action: NPCAction("dance"), MinAmount: 1, MaxAmount: 2},
		{ID: "bad-range", SpawnRate: 100, Duration: time.Minute, Action: NPCBuy, MinAmount: 50, MaxAmount: 10},
		{ID: "bad-duration", SpawnRate: 100, Duration: 0, Action: NPCBuy, MinAmount: 1, MaxAmount: 2},
	}
	npcSpawnTick(st, rand.New(rand.NewSource(1)), time.Now(), testLogger())
	if len(st.NPCs) != 0 {
		t.Fatalf("malformed templates spawned %d NPCs", len(st.NPCs))
	}
}

func TestNPCEffectFiresOnceAtExpiry(t *testing.T) {
	st := NewState()
	st.Users["alice"] = &User{ID: "alice", Role: RolePlayer, Balance: 1000, Holdings: map[string]int64{}}
	st.NPCTemplates = []NPCTemplate{
		{ID: "customer", Name: "Customer", SpawnRate: 0, Duration: time.Minute, Action: NPCBuy, MinAmount: 100, MaxAmount: 100},
	}
	now := time.Now()
	st.NPCs["n1"] = &NPC{ID: "n1", TemplateID: "customer", TargetUserID: "alice", EntryTime: now.Add(-2 * time.Minute), LeaveTime: now.Add(time.Minute)}
	rng := rand.New(rand.NewSource(1))

	// Not yet due.
	npcExpireTick(st, rng, now, testLogger())
	if st.Users["alice"].Balance != 1000 {
		t.Fatalf("effect fired before expiry")
	}

	// Due: fires exactly once, then the instance is gone.
	later := now.Add(2 * time.Minute)
	npcExpireTick(st, rng, later, testLogger())
	if st.Users["alice"].Balance != 1100 {
		t.Fatalf("balance=%d want=1100", st.Users["alice"].Balance)
	}
	if len(st.NPCs) != 0 {
		t.Fatalf("expired npc not removed")
	}
	npcExpireTick(st, rng, later, testLogger())
	if st.Users["alice"].Balance != 1100 {
		t.Fatalf("effect fired twice")
	}
}

func TestNPCStealClampedToBalance(t *testing.T) {
	st := NewState()
	st.Users["alice"] = &User{ID: "alice", Role: RolePlayer, Balance: 30, Holdings: map[string]int64{}}
	st.NPCTemplates = []NPCTemplate{
		{ID: "pickpocket", Name: "Pickpocket", Duration: time.Minute, Action: NPCSteal, MinAmount: 500, MaxAmount: 500},
	}
	now := time.Now()
	npc := &NPC{ID: "n1", TemplateID: "pickpocket", TargetUserID: "alice", LeaveTime: now}
	if err := claimAndApplyNPCEffect(st, rand.New(rand.NewSource(1)), now, npc); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if st.Users["alice"].Balance != 0 {
		t.Fatalf("balance=%d want=0", st.Users["alice"].Balance)
	}
}

func TestDeleteActiveNPCSuppressesEffect(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	ctx := context.Background()

	// Install an already-due NPC directly, then delete it before any
	// tick runs. The claim must survive into the next expiry pass.
	g.mu.Lock()
	g.st.NPCTemplates = []NPCTemplate{
		{ID: "customer", Name: "Customer", Duration: time.Minute, Action: NPCBuy, MinAmount: 100, MaxAmount: 100},
	}
	g.st.NPCs["n1"] = &NPC{ID: "n1", TemplateID: "customer", TargetUserID: "alice", LeaveTime: time.Now().Add(-time.Minute)}
	g.mu.Unlock()

	if err := g.DeleteActiveNPC(ctx, "n1", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := g.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := userBalance(t, g, "alice"); got != StarterBalance {
		t.Fatalf("deleted npc still paid out: %d", got)
	}
	if err := g.DeleteActiveNPC(ctx, "n1", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: want ErrNotFound, got %v", err)
	}
}

func TestNPCEffectOnceUnderConcurrentExpiryAndDelete(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	ctx := context.Background()

	// A due steal NPC while an expiry tick and a chase-off race each
	// other. Whoever wins, the effect lands at most once and the loser
	// sees a no-op.
	g.mu.Lock()
	g.st.NPCTemplates = []NPCTemplate{
		{ID: "pickpocket", Name: "Pickpocket", Duration: time.Minute, Action: NPCSteal, MinAmount: 40, MaxAmount: 40},
	}
	g.st.NPCs["n1"] = &NPC{ID: "n1", TemplateID: "pickpocket", TargetUserID: "alice", LeaveTime: time.Now().Add(-time.Minute)}
	g.mu.Unlock()

	var wg sync.WaitGroup
	var tickErr, delErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		tickErr = g.Tick(ctx)
	}()
	go func() {
		defer wg.Done()
		delErr = g.DeleteActiveNPC(ctx, "n1", "")
	}()
	wg.Wait()

	if tickErr != nil {
		t.Fatalf("tick: %v", tickErr)
	}
	if delErr != nil && !errors.Is(delErr, ErrNotFound) {
		t.Fatalf("delete: %v", delErr)
	}

	got := userBalance(t, g, "alice")
	if got != StarterBalance && got != StarterBalance-40 {
		t.Fatalf("balance=%d want %d or %d", got, StarterBalance, StarterBalance-40)
	}
	if err := g.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if after := userBalance(t, g, "alice"); after != got {
		t.Fatalf("effect fired again: before=%d after=%d", got, after)
	}
}
