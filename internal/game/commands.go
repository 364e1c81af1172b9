package game

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TransferInput struct {
	FromID         string
	ToID           string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// Transfer moves cash directly between two users.
func (g *GameStateStore) Transfer(ctx context.Context, in TransferInput) (Transaction, error) {
	if in.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if in.FromID == in.ToID {
		return Transaction{}, ErrInvalidAmount
	}
	var out Transaction
	err := g.mutate(ctx, in.IdempotencyKey, func(st *State, now time.Time) error {
		desc := in.Description
		if desc == "" {
			desc = "direct transfer"
		}
		tx, err := transferUsers(st, now, in.FromID, in.ToID, in.Amount, TxTransfer, desc)
		if err != nil {
			return err
		}
		out = tx
		return nil
	})
	return out, err
}

type TradeInput struct {
	UserID         string
	StockID        string
	Quantity       int64
	Side           string
	IdempotencyKey string
}

type TradeResult struct {
	TxID     string `json:"tx_id"`
	Price    int64  `json:"price"`
	Notional int64  `json:"notional"`
	Balance  int64  `json:"balance"`
	Held     int64  `json:"held"`
}

// TradeStock executes an immediate trade at the current tick price.
func (g *GameStateStore) TradeStock(ctx context.Context, in TradeInput) (TradeResult, error) {
	var out TradeResult
	err := g.mutate(ctx, in.IdempotencyKey, func(st *State, now time.Time) error {
		tx, err := applyStockTrade(st, now, in.UserID, in.StockID, in.Quantity, in.Side)
		if err != nil {
			return err
		}
		u := st.Users[in.UserID]
		s := st.Stocks[in.StockID]
		out = TradeResult{
			TxID:     tx.ID,
			Price:    s.Price,
			Notional: tx.Amount,
			Balance:  u.Balance,
			Held:     u.Holdings[in.StockID],
		}
		return nil
	})
	return out, err
}

// DepositSavings moves cash from the liquid balance into the bank
// deposit.
func (g *GameStateStore) DepositSavings(ctx context.Context, userID string, amount int64, idemKey string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		u, err := st.user(userID)
		if err != nil {
			return err
		}
		if u.Balance < amount {
			return ErrInsufficientFunds
		}
		u.Balance -= amount
		u.Deposit += amount
		appendTransaction(st, now, TxDeposit, amount, userID, userID, "bank deposit")
		return nil
	})
}

// WithdrawSavings moves money back from the deposit to the balance.
func (g *GameStateStore) WithdrawSavings(ctx context.Context, userID string, amount int64, idemKey string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		u, err := st.user(userID)
		if err != nil {
			return err
		}
		if u.Deposit < amount {
			return ErrInvalidAmount
		}
		u.Deposit -= amount
		u.Balance += amount
		appendTransaction(st, now, TxWithdraw, amount, userID, userID, "bank withdrawal")
		return nil
	})
}

// AssessTax raises a user's unpaid tax. Paying it down goes through a
// tax request.
func (g *GameStateStore) AssessTax(ctx context.Context, userID string, amount int64, idemKey string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		u, err := st.user(userID)
		if err != nil {
			return err
		}
		u.UnpaidTax += amount
		return nil
	})
}

// SetStockAccess toggles a user's ability to trade forbidden stocks.
func (g *GameStateStore) SetStockAccess(ctx context.Context, userID string, unlocked bool, idemKey string) error {
	return g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		u, err := st.user(userID)
		if err != nil {
			return err
		}
		u.StocksUnlocked = unlocked
		return nil
	})
}

type EventInput struct {
	Kind           string
	TargetUserID   string
	EffectValue    int64
	Duration       time.Duration
	IdempotencyKey string
}

// StartEvent creates a timed game event. Grants pay out once, up front;
// market-weather kinds (boom/bust/epidemic) bias ticks for as long as
// the event is active.
func (g *GameStateStore) StartEvent(ctx context.Context, in EventInput) (string, error) {
	if in.Kind == "" || in.Duration <= 0 {
		return "", ErrInvalidConfig
	}
	id := uuid.NewString()
	err := g.mutate(ctx, in.IdempotencyKey, func(st *State, now time.Time) error {
		if in.TargetUserID != "" {
			if _, err := st.user(in.TargetUserID); err != nil {
				return err
			}
		}
		ev := GameEvent{
			ID:           id,
			Kind:         in.Kind,
			TargetUserID: in.TargetUserID,
			StartTime:    now,
			Duration:     in.Duration,
			EffectValue:  in.EffectValue,
		}
		if in.Kind == "grant" {
			if in.TargetUserID == "" || in.EffectValue <= 0 {
				return ErrInvalidConfig
			}
			if _, err := creditUser(st, now, in.TargetUserID, in.EffectValue, TxEventGrant, "", "event grant"); err != nil {
				return err
			}
		}
		st.Events = append(st.Events, ev)
		st.pushFeed(FeedEntry{At: now, Event: &EventStarted{EventID: id, Kind: in.Kind}})
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// EnsureUser registers a user on first sight. Existing users are left
// untouched, so this is safe to call on every login.
func (g *GameStateStore) EnsureUser(ctx context.Context, id, username string, role Role) error {
	if id == "" {
		return ErrInvalidConfig
	}
	if role != RoleBanker && role != RolePlayer {
		role = RolePlayer
	}
	g.mu.Lock()
	_, exists := g.st.Users[id]
	g.mu.Unlock()
	if exists {
		return nil
	}
	return g.mutate(ctx, "", func(st *State, now time.Time) error {
		if _, ok := st.Users[id]; ok {
			return nil
		}
		st.Users[id] = &User{
			ID:        id,
			Username:  username,
			Role:      role,
			Balance:   StarterBalance,
			Holdings:  map[string]int64{},
			CreatedAt: now,
		}
		return nil
	})
}

// SeedDefaults installs the default stocks, NPC templates, and roulette
// wheel when the store starts empty.
func (g *GameStateStore) SeedDefaults(ctx context.Context) error {
	return g.mutate(ctx, "", func(st *State, now time.Time) error {
		if len(st.Stocks) > 0 {
			return nil
		}
		for _, s := range defaultStocks() {
			cp := s
			st.Stocks[s.ID] = &cp
		}
		st.NPCTemplates = defaultNPCTemplates()
		st.RouletteItems = defaultRouletteItems()
		return nil
	})
}

func defaultStocks() []Stock {
	seed := []struct {
		id, name string
		price    int64
		vol      float64
		locked   bool
	}{
		{"grainco", "GrainCo Mills", 120, 0.08, false},
		{"railx", "RailX Lines", 95, 0.06, false},
		{"brickhaus", "Brickhaus Build", 140, 0.10, false},
		{"pressly", "Pressly Media", 75, 0.12, false},
		{"voltwing", "Voltwing Energy", 160, 0.14, false},
		{"saltern", "Saltern Goods", 60, 0.05, false},
		{"glintex", "Glintex Mining", 210, 0.20, true},
		{"nightowl", "Nightowl Casino", 180, 0.25, true},
	}
	out := make([]Stock, 0, len(seed))
	for _, s := range seed {
		out = append(out, Stock{
			ID:            s.id,
			Name:          s.name,
			Price:         s.price,
			PreviousPrice: s.price,
			Volatility:    s.vol,
			IsForbidden:   s.locked,
		})
	}
	return out
}

func defaultNPCTemplates() []NPCTemplate {
	return []NPCTemplate{
		{ID: "customer", Name: "Passing Customer", SpawnRate: 25, Duration: 10 * time.Minute, Action: NPCBuy, MinAmount: 20, MaxAmount: 120},
		{ID: "collector", Name: "Rare Goods Collector", SpawnRate: 8, Duration: 15 * time.Minute, Action: NPCBuy, MinAmount: 150, MaxAmount: 400},
		{ID: "pickpocket", Name: "Pickpocket", SpawnRate: 12, Duration: 8 * time.Minute, Action: NPCSteal, MinAmount: 10, MaxAmount: 80},
		{ID: "conman", Name: "Travelling Conman", SpawnRate: 5, Duration: 12 * time.Minute, Action: NPCScam, MinAmount: 50, MaxAmount: 250},
	}
}

func defaultRouletteItems() []RouletteItem {
	return []RouletteItem{
		{ID: "jackpot", Text: "Jackpot! 500 coins", Effect: 500, Weight: 1},
		{ID: "small-win", Text: "Small win: 100 coins", Effect: 100, Weight: 4},
		{ID: "nothing", Text: "Nothing happens", Effect: 0, Weight: 8},
		{ID: "small-loss", Text: "You drop 50 coins", Effect: -50, Weight: 4},
		{ID: "big-loss", Text: "Robbed! 200 coins gone", Effect: -200, Weight: 1},
	}
}
