package game

import (
	"log/slog"
	"math"
	"sort"
	"time"
)

// Market tick. Each non-forbidden stock takes one bounded stochastic
// step per turn: the relative move is a gaussian draw scaled by the
// stock's volatility plus any active boom/bust drift, clamped to
// [-volatility, +volatility], so a single tick can never move a price
// by more than its volatility fraction.

const (
	boomDrift = 0.02
	bustDrift = -0.02
)

func marketTick(st *State, rng randSource, now time.Time, log *slog.Logger) {
	drift := marketDrift(st, now)
	for _, id := range sortedStockIDs(st) {
		s := st.Stocks[id]
		if s.IsForbidden {
			continue
		}
		if s.Price <= 0 || math.IsNaN(s.Volatility) || math.IsInf(s.Volatility, 0) || s.Volatility < 0 {
			log.Warn("skipping stock with bad pricing data", "stock_id", s.ID, "price", s.Price, "volatility", s.Volatility)
			continue
		}
		move := drift + rng.NormFloat64()*s.Volatility*0.5
		if move > s.Volatility {
			move = s.Volatility
		}
		if move < -s.Volatility {
			move = -s.Volatility
		}
		next := int64(math.Round(float64(s.Price) * (1 + move)))
		if next < 1 {
			next = 1
		}
		s.PriceHistory = append(s.PriceHistory, s.Price)
		if len(s.PriceHistory) > MaxPriceHistory {
			s.PriceHistory = s.PriceHistory[len(s.PriceHistory)-MaxPriceHistory:]
		}
		s.PreviousPrice = s.Price
		s.Price = next
	}
}

// marketDrift folds active global events into a per-tick bias. The bias
// stays inside the per-stock clamp, so event weather tilts the market
// without breaking the single-tick bound.
func marketDrift(st *State, now time.Time) float64 {
	var drift float64
	for _, e := range st.Events {
		if !e.ActiveAt(now) || e.TargetUserID != "" {
			continue
		}
		switch e.Kind {
		case "boom":
			drift += boomDrift
		case "bust", "epidemic":
			drift += bustDrift
		}
	}
	return drift
}

func sortedStockIDs(st *State) []string {
	ids := make([]string, 0, len(st.Stocks))
	for id := range st.Stocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// applyStockTrade executes a buy or sell at the current price. It is
// shared by the direct trade command and the approved stock_trade
// request effect.
func applyStockTrade(st *State, now time.Time, userID, stockID string, qty int64, side string) (Transaction, error) {
	if qty <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	u, err := st.user(userID)
	if err != nil {
		return Transaction{}, err
	}
	s, err := st.stock(stockID)
	if err != nil {
		return Transaction{}, err
	}
	if s.IsForbidden && !u.StocksUnlocked {
		return Transaction{}, ErrForbiddenAsset
	}
	notional := s.Price * qty
	switch side {
	case "buy":
		tx, err := debitUser(st, now, userID, notional, TxStockBuy, "", s.Name)
		if err != nil {
			return Transaction{}, err
		}
		if u.Holdings == nil {
			u.Holdings = map[string]int64{}
		}
		u.Holdings[stockID] += qty
		return tx, nil
	case "sell":
		if u.Holdings[stockID] < qty {
			return Transaction{}, ErrInvalidQuantity
		}
		tx, err := creditUser(st, now, userID, notional, TxStockSell, "", s.Name)
		if err != nil {
			return Transaction{}, err
		}
		u.Holdings[stockID] -= qty
		if u.Holdings[stockID] == 0 {
			delete(u.Holdings, stockID)
		}
		return tx, nil
	default:
		return Transaction{}, ErrInvalidQuantity
	}
}
