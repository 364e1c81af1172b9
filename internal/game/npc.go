package game

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// NPC lifecycle. Templates are sampled independently each spawn tick;
// live instances apply their one-shot economic effect at expiry. The
// EffectApplied flag is the claim slot: whoever flips it first (expiry
// or forced removal) owns the instance, so the effect fires at most
// once even when a banker deletes an NPC on the same pass that expires
// it.

func npcSpawnTick(st *State, rng randSource, now time.Time, log *slog.Logger) {
	targets := eligibleTargets(st)
	if len(targets) == 0 {
		return
	}
	for _, tpl := range st.NPCTemplates {
		if !tpl.Action.Valid() || tpl.Duration <= 0 || tpl.MinAmount < 0 || tpl.MaxAmount < tpl.MinAmount {
			log.Warn("skipping malformed npc template", "template_id", tpl.ID)
			continue
		}
		if rng.Float64()*100 >= float64(tpl.SpawnRate) {
			continue
		}
		target := targets[int(rng.Float64()*float64(len(targets)))]
		npc := &NPC{
			ID:           uuid.NewString(),
			TemplateID:   tpl.ID,
			TargetUserID: target,
			EntryTime:    now,
			LeaveTime:    now.Add(tpl.Duration),
		}
		st.NPCs[npc.ID] = npc
	}
}

func npcExpireTick(st *State, rng randSource, now time.Time, log *slog.Logger) {
	for _, id := range sortedNPCIDs(st) {
		npc := st.NPCs[id]
		if npc.LeaveTime.After(now) {
			continue
		}
		if err := claimAndApplyNPCEffect(st, rng, now, npc); err != nil {
			log.Warn("npc effect skipped", "npc_id", npc.ID, "err", err)
		}
		delete(st.NPCs, id)
	}
}

// claimAndApplyNPCEffect flips the claim slot and fires the template's
// effect. A no-op if the slot was already claimed.
func claimAndApplyNPCEffect(st *State, rng randSource, now time.Time, npc *NPC) error {
	if npc.EffectApplied {
		return nil
	}
	npc.EffectApplied = true

	tpl, ok := templateByID(st, npc.TemplateID)
	if !ok {
		return ErrNotFound
	}
	target, err := st.user(npc.TargetUserID)
	if err != nil {
		return err
	}
	amount := intBetween(rng.Float64(), tpl.MinAmount, tpl.MaxAmount)

	switch tpl.Action {
	case NPCBuy:
		// Money enters from the abstract customer.
		if _, err := creditUser(st, now, target.ID, amount, TxNPCBuy, "", tpl.Name); err != nil {
			return err
		}
	case NPCSteal, NPCScam:
		// Thefts never overdraw; the take is capped at what the target has.
		if amount > target.Balance {
			amount = target.Balance
		}
		txType := TxNPCSteal
		if tpl.Action == NPCScam {
			txType = TxNPCScam
		}
		if _, err := debitUser(st, now, target.ID, amount, txType, "", tpl.Name); err != nil {
			return err
		}
	default:
		return ErrInvalidConfig
	}

	st.pushFeed(FeedEntry{At: now, NPC: &NPCEffectApplied{
		NPCID:    npc.ID,
		Template: tpl.Name,
		Action:   tpl.Action,
		TargetID: target.ID,
		Amount:   amount,
	}})
	return nil
}

// DeleteActiveNPC removes a live NPC before it expires. Removal claims
// the effect slot without firing it, so a concurrent expiry pass cannot
// apply the effect afterwards.
func (g *GameStateStore) DeleteActiveNPC(ctx context.Context, npcID, idemKey string) error {
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		npc, ok := st.NPCs[npcID]
		if !ok {
			return ErrNotFound
		}
		npc.EffectApplied = true
		delete(st.NPCs, npcID)
		return nil
	})
}

func eligibleTargets(st *State) []string {
	out := make([]string, 0, len(st.Users))
	for id, u := range st.Users {
		if u.Role == RolePlayer {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func templateByID(st *State, id string) (NPCTemplate, bool) {
	for _, tpl := range st.NPCTemplates {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return NPCTemplate{}, false
}

func sortedNPCIDs(st *State) []string {
	ids := make([]string, 0, len(st.NPCs))
	for id := range st.NPCs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
