package game

import "time"

// User is a single participant's authoritative economic record. It is
// mutated only inside a GameStateStore write, never by callers holding
// a snapshot.
type User struct {
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
	CreatedAt      time.Time        `json:"created_at"`
}

// Transaction is an immutable ledger record. Once appended it is never
// edited or deleted.
type Transaction struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	SenderID    string    `json:"sender_id,omitempty"`
	ReceiverID  string    `json:"receiver_id,omitempty"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Request struct {
	ID          string         `json:"id"`
	Type        RequestType    `json:"type"`
	RequesterID string         `json:"requester_id"`
	Amount      int64          `json:"amount"`
	Details     RequestDetails `json:"details"`
	Status      RequestStatus  `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// RequestDetails carries the type-specific payload of a Request. Exactly
// the variant matching Request.Type is set; the rest stay nil. The
// payload is decoded and validated once, at the API boundary.
type RequestDetails struct {
	Transfer   *TransferDetails   `json:"transfer,omitempty"`
	StockTrade *StockTradeDetails `json:"stock_trade,omitempty"`
	JobChange  *JobChangeDetails  `json:"job_change,omitempty"`
}

type TransferDetails struct {
	ToUserID string `json:"to_user_id"`
}

type StockTradeDetails struct {
	StockID  string `json:"stock_id"`
	Quantity int64  `json:"quantity"`
	Side     string `json:"side"` // "buy" or "sell"
}

type JobChangeDetails struct {
	Job string `json:"job"`
}

type Stock struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         int64   `json:"price"`
	PreviousPrice int64   `json:"previous_price"`
	PriceHistory  []int64 `json:"price_history"`
	Volatility    float64 `json:"volatility"`
	IsForbidden   bool    `json:"is_forbidden"`
}

type NPCTemplate struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	SpawnRate int           `json:"spawn_rate"` // percent per spawn tick
	Duration  time.Duration `json:"duration"`
	Action    NPCAction     `json:"action"`
	MinAmount int64         `json:"min_amount"`
	MaxAmount int64         `json:"max_amount"`
}

// NPC is a live instance sampled from a template. Its economic effect
// fires at most once, at expiry; EffectApplied is the claim slot.
type NPC struct {
	ID            string    `json:"id"`
	TemplateID    string    `json:"template_id"`
	TargetUserID  string    `json:"target_user_id"`
	EntryTime     time.Time `json:"entry_time"`
	LeaveTime     time.Time `json:"leave_time"`
	EffectApplied bool      `json:"effect_applied"`
}

type GameEvent struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"` // boom, bust, epidemic, grant, ...
	TargetUserID string        `json:"target_user_id,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	EffectValue  int64         `json:"effect_value"`
}

// ActiveAt reports whether the event is live at the given instant. The
// active set is always derived by time filter; there is no expiry job.
func (e GameEvent) ActiveAt(now time.Time) bool {
	return !now.Before(e.StartTime) && now.Before(e.StartTime.Add(e.Duration))
}

type ElectionStatus string

const (
	ElectionStatusActive   ElectionStatus = "active"
	ElectionStatusFinished ElectionStatus = "finished"
)

type Election struct {
	Candidates []string          `json:"candidates"`
	Votes      map[string]string `json:"votes"` // voter id -> candidate id
	NPCVotes   []string          `json:"npc_votes"`
	Status     ElectionStatus    `json:"status"`
	EndsAt     time.Time         `json:"ends_at"`
	WinnerID   string            `json:"winner_id,omitempty"`
	RewardLog  map[string]int64  `json:"reward_log,omitempty"`
}

type RouletteItem struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Effect int64   `json:"effect"` // signed amount applied to the target
	Weight float64 `json:"weight"`
}

type RouletteResult struct {
	Text         string    `json:"text"`
	TargetUserID string    `json:"target_user_id,omitempty"`
	Applied      int64     `json:"applied"` // signed amount after clamping
	Timestamp    time.Time `json:"timestamp"`
}

// State is the full authoritative game state. It is owned by a
// GameStateStore and only ever mutated under its write lock.
type State struct {
	Version        int64                `json:"version"`
	Turn           int64                `json:"turn"`
	IsDay          bool                 `json:"is_day"`
	TurnEndsAt     time.Time            `json:"turn_ends_at"`
	Users          map[string]*User     `json:"users"`
	Requests       map[string]*Request  `json:"requests"`
	Stocks         map[string]*Stock    `json:"stocks"`
	NPCs           map[string]*NPC      `json:"npcs"`
	NPCTemplates   []NPCTemplate        `json:"npc_templates"`
	Events         []GameEvent          `json:"events"`
	Election       *Election            `json:"election,omitempty"`
	RouletteItems  []RouletteItem       `json:"roulette_items"`
	RouletteResult *RouletteResult      `json:"roulette_result,omitempty"`
	Transactions   []Transaction        `json:"transactions"`
	Feed           []FeedEntry          `json:"feed"`
}

func NewState() *State {
	return &State{
		Version:  0,
		Turn:     0,
		IsDay:    true,
		Users:    map[string]*User{},
		Requests: map[string]*Request{},
		Stocks:   map[string]*Stock{},
		NPCs:     map[string]*NPC{},
	}
}

// Clone deep-copies the state. Mutations run against a clone so a
// failed command leaves the live state untouched.
func (st *State) Clone() *State {
	out := *st
	out.Users = make(map[string]*User, len(st.Users))
	for id, u := range st.Users {
		cu := *u
		cu.Holdings = make(map[string]int64, len(u.Holdings))
		for k, v := range u.Holdings {
			cu.Holdings[k] = v
		}
		out.Users[id] = &cu
	}
	out.Requests = make(map[string]*Request, len(st.Requests))
	for id, r := range st.Requests {
		cr := *r
		if r.ResolvedAt != nil {
			t := *r.ResolvedAt
			cr.ResolvedAt = &t
		}
		out.Requests[id] = &cr
	}
	out.Stocks = make(map[string]*Stock, len(st.Stocks))
	for id, s := range st.Stocks {
		cs := *s
		cs.PriceHistory = append([]int64(nil), s.PriceHistory...)
		out.Stocks[id] = &cs
	}
	out.NPCs = make(map[string]*NPC, len(st.NPCs))
	for id, n := range st.NPCs {
		cn := *n
		out.NPCs[id] = &cn
	}
	out.NPCTemplates = append([]NPCTemplate(nil), st.NPCTemplates...)
	out.Events = append([]GameEvent(nil), st.Events...)
	if st.Election != nil {
		ce := *st.Election
		ce.Candidates = append([]string(nil), st.Election.Candidates...)
		ce.NPCVotes = append([]string(nil), st.Election.NPCVotes...)
		ce.Votes = make(map[string]string, len(st.Election.Votes))
		for k, v := range st.Election.Votes {
			ce.Votes[k] = v
		}
		ce.RewardLog = make(map[string]int64, len(st.Election.RewardLog))
		for k, v := range st.Election.RewardLog {
			ce.RewardLog[k] = v
		}
		out.Election = &ce
	}
	out.RouletteItems = append([]RouletteItem(nil), st.RouletteItems...)
	if st.RouletteResult != nil {
		rr := *st.RouletteResult
		out.RouletteResult = &rr
	}
	out.Transactions = append([]Transaction(nil), st.Transactions...)
	out.Feed = append([]FeedEntry(nil), st.Feed...)
	return &out
}

func (st *State) user(id string) (*User, error) {
	u, ok := st.Users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (st *State) stock(id string) (*Stock, error) {
	s, ok := st.Stocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}
