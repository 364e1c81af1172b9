package game

import (
	"context"
	"time"
)

// Election resolution. Resolution happens exactly once per election:
// tally player and synthesized NPC votes, pick the plurality winner,
// hand the bank over, and pay per-candidate rewards, all inside one
// mutation. A role change without rewards (or vice versa) cannot be
// observed.

type ElectionOutcome struct {
	Status   string           `json:"status"` // no_election, not_due, already_finished, finished
	WinnerID string           `json:"winner_id,omitempty"`
	Tally    map[string]int   `json:"tally,omitempty"`
	Rewards  map[string]int64 `json:"rewards,omitempty"`
}

func (g *GameStateStore) StartElection(ctx context.Context, candidates []string, duration time.Duration, idemKey string) error {
	if len(candidates) < 2 || duration <= 0 {
		return ErrInvalidConfig
	}
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		if st.Election != nil && st.Election.Status == ElectionStatusActive {
			return ErrElectionActive
		}
		for _, id := range candidates {
			if _, err := st.user(id); err != nil {
				return err
			}
		}
		st.Election = &Election{
			Candidates: append([]string(nil), candidates...),
			Votes:      map[string]string{},
			Status:     ElectionStatusActive,
			EndsAt:     now.Add(duration),
		}
		return nil
	})
}

// CastVote records or replaces a voter's ballot while the election is
// active.
func (g *GameStateStore) CastVote(ctx context.Context, voterID, candidateID, idemKey string) error {
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		if st.Election == nil || st.Election.Status != ElectionStatusActive {
			return ErrNotFound
		}
		if _, err := st.user(voterID); err != nil {
			return err
		}
		if !containsCandidate(st.Election.Candidates, candidateID) {
			return ErrNotFound
		}
		st.Election.Votes[voterID] = candidateID
		return nil
	})
}

// ResolveElection tallies and finishes a due election. Not-due and
// missing elections are statuses, not errors; resolving a finished
// election is a no-op.
func (g *GameStateStore) ResolveElection(ctx context.Context, idemKey string) (ElectionOutcome, error) {
	var out ElectionOutcome
	err := g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		out = g.resolveElectionLocked(st, now)
		return nil
	})
	return out, err
}

func (g *GameStateStore) resolveElectionLocked(st *State, now time.Time) ElectionOutcome {
	el := st.Election
	if el == nil {
		return ElectionOutcome{Status: "no_election"}
	}
	if el.Status == ElectionStatusFinished {
		return ElectionOutcome{Status: "already_finished", WinnerID: el.WinnerID}
	}
	if now.Before(el.EndsAt) {
		return ElectionOutcome{Status: "not_due"}
	}

	// Synthesize NPC turnout.
	npcCount := intBetween(g.nextFloat(), int64(g.opts.NPCVoteMin), int64(g.opts.NPCVoteMax))
	el.NPCVotes = el.NPCVotes[:0]
	for i := int64(0); i < npcCount; i++ {
		pick := int(g.nextFloat() * float64(len(el.Candidates)))
		el.NPCVotes = append(el.NPCVotes, el.Candidates[pick])
	}

	tally := make(map[string]int, len(el.Candidates))
	for _, c := range el.Candidates {
		tally[c] = 0
	}
	for _, c := range el.Votes {
		if _, ok := tally[c]; ok {
			tally[c]++
		}
	}
	for _, c := range el.NPCVotes {
		tally[c]++
	}

	// Plurality winner; ties break toward the earlier entry in the
	// candidate list. That ordering is the documented tie-break, not an
	// accident of map iteration.
	winner := el.Candidates[0]
	for _, c := range el.Candidates[1:] {
		if tally[c] > tally[winner] {
			winner = c
		}
	}

	rewards := make(map[string]int64, len(el.Candidates))
	for _, c := range el.Candidates {
		u, err := st.user(c)
		if err != nil {
			continue
		}
		r := candidateReward(u)
		rewards[c] = r
		if r > 0 {
			if _, err := creditUser(st, now, c, r, TxElectionReward, "", "election reward"); err != nil {
				continue
			}
		}
	}

	for _, u := range st.Users {
		if u.Role == RoleBanker {
			u.Role = RolePlayer
		}
	}
	if w, err := st.user(winner); err == nil {
		w.Role = RoleBanker
	}

	el.Status = ElectionStatusFinished
	el.WinnerID = winner
	el.RewardLog = rewards
	st.pushFeed(FeedEntry{At: now, Election: &ElectionFinished{WinnerID: winner, Rewards: rewards}})

	return ElectionOutcome{Status: "finished", WinnerID: winner, Tally: tally, Rewards: rewards}
}

// candidateReward is the deterministic payout function over a
// candidate's standing.
func candidateReward(u *User) int64 {
	r := 10*u.Popularity + 8*u.Rating + 5*u.Happiness + u.Balance/100
	if r < 0 {
		return 0
	}
	return r
}

func containsCandidate(candidates []string, id string) bool {
	for _, c := range candidates {
		if c == id {
			return true
		}
	}
	return false
}
