package game

import (
	"context"
	"time"
)

type SpinInput struct {
	SpinnerID      string
	TargetUserID   string // defaults to the spinner
	Cost           int64
	IdempotencyKey string
}

type SpinOutcome struct {
	Item   RouletteItem   `json:"item"`
	Result RouletteResult `json:"result"`
}

// SpinRoulette charges the spinner, samples one item proportional to
// weight, applies its effect to the target through the Ledger, and
// records the result as the current one visible to all clients until
// the next spin supersedes it.
func (g *GameStateStore) SpinRoulette(ctx context.Context, in SpinInput) (SpinOutcome, error) {
	if in.Cost < 0 {
		return SpinOutcome{}, ErrInvalidAmount
	}
	var out SpinOutcome
	err := g.mutate(ctx, in.IdempotencyKey, func(st *State, now time.Time) error {
		if len(st.RouletteItems) == 0 {
			return ErrInvalidConfig
		}
		targetID := in.TargetUserID
		if targetID == "" {
			targetID = in.SpinnerID
		}
		target, err := st.user(targetID)
		if err != nil {
			return err
		}

		if in.Cost > 0 {
			// The wheel's take leaves the system.
			if _, err := debitUser(st, now, in.SpinnerID, in.Cost, TxRouletteCost, "", "roulette spin"); err != nil {
				return err
			}
		}

		weights := make([]float64, len(st.RouletteItems))
		for i, item := range st.RouletteItems {
			weights[i] = item.Weight
		}
		idx, err := weightedIndex(g.nextFloat(), weights)
		if err != nil {
			return err
		}
		item := st.RouletteItems[idx]

		var applied int64
		switch {
		case item.Effect > 0:
			if _, err := creditUser(st, now, target.ID, item.Effect, TxRouletteWin, "", item.Text); err != nil {
				return err
			}
			applied = item.Effect
		case item.Effect < 0:
			// Losses never overdraw the target.
			loss := -item.Effect
			if loss > target.Balance {
				loss = target.Balance
			}
			if _, err := debitUser(st, now, target.ID, loss, TxRouletteLoss, "", item.Text); err != nil {
				return err
			}
			applied = -loss
		}

		st.RouletteResult = &RouletteResult{
			Text:         item.Text,
			TargetUserID: target.ID,
			Applied:      applied,
			Timestamp:    now,
		}
		st.pushFeed(FeedEntry{At: now, Roulette: &RouletteResolved{
			ItemID:   item.ID,
			Text:     item.Text,
			TargetID: target.ID,
			Effect:   applied,
		}})
		out = SpinOutcome{Item: item, Result: *st.RouletteResult}
		return nil
	})
	return out, err
}

// SetRouletteItems replaces the wheel configuration. Banker-only at the
// API layer.
func (g *GameStateStore) SetRouletteItems(ctx context.Context, items []RouletteItem, idemKey string) error {
	if len(items) == 0 {
		return ErrInvalidConfig
	}
	for _, item := range items {
		if item.Text == "" || item.Weight < 0 {
			return ErrInvalidConfig
		}
	}
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		st.RouletteItems = append([]RouletteItem(nil), items...)
		return nil
	})
}
