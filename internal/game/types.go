package game

import (
	"sort"
	"time"
)

// Snapshot is the immutable read view served to every client. It is
// rebuilt after each committed mutation and carries the state version
// so pollers can cheaply detect change.
type Snapshot struct {
	Version        int64           `json:"version"`
	Turn           int64           `json:"turn"`
	IsDay          bool            `json:"is_day"`
	TurnEndsAt     time.Time       `json:"turn_ends_at"`
	Users          []UserView      `json:"users"`
	Stocks         []StockView     `json:"stocks"`
	Requests       []Request       `json:"requests"`
	NPCs           []NPCView       `json:"npcs"`
	ActiveEvents   []GameEvent     `json:"active_events"`
	Election       *Election       `json:"election,omitempty"`
	RouletteItems  []RouletteItem  `json:"roulette_items"`
	RouletteResult *RouletteResult `json:"roulette_result,omitempty"`
	Transactions   []Transaction   `json:"transactions"`
	Feed           []FeedEntry     `json:"feed"`
}

type UserView struct {
	ID             string           `json:"id"`
	Username       string           `json:"username"`
	Role           Role             `json:"role"`
	Balance        int64            `json:"balance"`
	Deposit        int64            `json:"deposit"`
	Debt           int64            `json:"debt"`
	UnpaidTax      int64            `json:"unpaid_tax"`
	Job            string           `json:"job"`
	Holdings       map[string]int64 `json:"holdings"`
	Popularity     int64            `json:"popularity"`
	Happiness      int64            `json:"happiness"`
	Rating         int64            `json:"rating"`
	StocksUnlocked bool             `json:"stocks_unlocked"`
}

type StockView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         int64   `json:"price"`
	PreviousPrice int64   `json:"previous_price"`
	ChangePct     float64 `json:"change_pct"`
	PriceHistory  []int64 `json:"price_history"`
	IsForbidden   bool    `json:"is_forbidden"`
}

type NPCView struct {
	ID           string    `json:"id"`
	TemplateID   string    `json:"template_id"`
	Name         string    `json:"name"`
	TargetUserID string    `json:"target_user_id"`
	EntryTime    time.Time `json:"entry_time"`
	LeaveTime    time.Time `json:"leave_time"`
}

func buildSnapshot(st *State, now time.Time) *Snapshot {
	out := &Snapshot{
		Version:       st.Version,
		Turn:          st.Turn,
		IsDay:         st.IsDay,
		TurnEndsAt:    st.TurnEndsAt,
		Election:      st.Election,
		RouletteItems: append([]RouletteItem(nil), st.RouletteItems...),
		Feed:          append([]FeedEntry(nil), st.Feed...),
	}
	if st.RouletteResult != nil {
		rr := *st.RouletteResult
		out.RouletteResult = &rr
	}

	userIDs := make([]string, 0, len(st.Users))
	for id := range st.Users {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	for _, id := range userIDs {
		u := st.Users[id]
		holdings := make(map[string]int64, len(u.Holdings))
		for k, v := range u.Holdings {
			holdings[k] = v
		}
		out.Users = append(out.Users, UserView{
			ID:             u.ID,
			Username:       u.Username,
			Role:           u.Role,
			Balance:        u.Balance,
			Deposit:        u.Deposit,
			Debt:           u.Debt,
			UnpaidTax:      u.UnpaidTax,
			Job:            u.Job,
			Holdings:       holdings,
			Popularity:     u.Popularity,
			Happiness:      u.Happiness,
			Rating:         u.Rating,
			StocksUnlocked: u.StocksUnlocked,
		})
	}

	for _, id := range sortedStockIDs(st) {
		s := st.Stocks[id]
		var change float64
		if s.PreviousPrice > 0 {
			change = float64(s.Price-s.PreviousPrice) / float64(s.PreviousPrice) * 100
		}
		out.Stocks = append(out.Stocks, StockView{
			ID:            s.ID,
			Name:          s.Name,
			Price:         s.Price,
			PreviousPrice: s.PreviousPrice,
			ChangePct:     change,
			PriceHistory:  append([]int64(nil), s.PriceHistory...),
			IsForbidden:   s.IsForbidden,
		})
	}

	for _, id := range pendingFirstRequestIDs(st) {
		out.Requests = append(out.Requests, *st.Requests[id])
	}

	for _, id := range sortedNPCIDs(st) {
		n := st.NPCs[id]
		name := n.TemplateID
		if tpl, ok := templateByID(st, n.TemplateID); ok {
			name = tpl.Name
		}
		out.NPCs = append(out.NPCs, NPCView{
			ID:           n.ID,
			TemplateID:   n.TemplateID,
			Name:         name,
			TargetUserID: n.TargetUserID,
			EntryTime:    n.EntryTime,
			LeaveTime:    n.LeaveTime,
		})
	}

	for _, e := range st.Events {
		if e.ActiveAt(now) {
			out.ActiveEvents = append(out.ActiveEvents, e)
		}
	}

	txs := st.Transactions
	if len(txs) > SnapshotTransactions {
		txs = txs[len(txs)-SnapshotTransactions:]
	}
	out.Transactions = append([]Transaction(nil), txs...)

	return out
}

// pendingFirstRequestIDs lists pending requests in submission order,
// then resolved ones newest-first, which is how the banker wants to
// read the queue.
func pendingFirstRequestIDs(st *State) []string {
	pending := pendingRequestIDs(st)
	type pair struct {
		id string
		at time.Time
	}
	var resolved []pair
	for id, r := range st.Requests {
		if r.Status != RequestPending {
			resolved = append(resolved, pair{id, r.Timestamp})
		}
	}
	sort.Slice(resolved, func(i, j int) bool {
		if resolved[i].at.Equal(resolved[j].at) {
			return resolved[i].id < resolved[j].id
		}
		return resolved[i].at.After(resolved[j].at)
	})
	out := append([]string(nil), pending...)
	for _, p := range resolved {
		out = append(out, p.id)
	}
	return out
}
