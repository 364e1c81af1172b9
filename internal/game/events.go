package game

import "time"

// FeedEntry is one structured notification. Exactly one payload field is
// set. Consumers render from the typed fields; nothing downstream parses
// transaction description strings.
type FeedEntry struct {
	At       time.Time         `json:"at"`
	Transfer *TransferOccurred `json:"transfer,omitempty"`
	NPC      *NPCEffectApplied `json:"npc,omitempty"`
	Roulette *RouletteResolved `json:"roulette,omitempty"`
	Request  *RequestOutcome   `json:"request,omitempty"`
	Election *ElectionFinished `json:"election,omitempty"`
	Event    *EventStarted     `json:"event,omitempty"`
}

type TransferOccurred struct {
	TxID     string `json:"tx_id"`
	Type     string `json:"type"`
	SenderID string `json:"sender_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	Amount   int64  `json:"amount"`
}

type NPCEffectApplied struct {
	NPCID    string    `json:"npc_id"`
	Template string    `json:"template"`
	Action   NPCAction `json:"action"`
	TargetID string    `json:"target_id"`
	Amount   int64     `json:"amount"`
}

type RouletteResolved struct {
	ItemID   string `json:"item_id"`
	Text     string `json:"text"`
	TargetID string `json:"target_id,omitempty"`
	Effect   int64  `json:"effect"`
}

type RequestOutcome struct {
	RequestID string        `json:"request_id"`
	Type      RequestType   `json:"type"`
	Status    RequestStatus `json:"status"`
}

type ElectionFinished struct {
	WinnerID string           `json:"winner_id"`
	Rewards  map[string]int64 `json:"rewards"`
}

type EventStarted struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
}

func (st *State) pushFeed(e FeedEntry) {
	st.Feed = append(st.Feed, e)
	if len(st.Feed) > MaxFeedEntries {
		st.Feed = st.Feed[len(st.Feed)-MaxFeedEntries:]
	}
}
