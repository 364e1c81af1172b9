package game

import (
	"errors"
	"time"
)

const (
	// StarterBalance is the liquid cash a newly registered player begins with.
	StarterBalance = int64(1_000)

	// MaxPriceHistory bounds the per-stock price ring buffer.
	MaxPriceHistory = 64

	// MaxFeedEntries bounds the in-memory notification feed.
	MaxFeedEntries = 256

	// SnapshotTransactions is how many of the newest ledger records a
	// read snapshot carries.
	SnapshotTransactions = 100

	DefaultTurnDuration = 5 * time.Minute
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyResolved      = errors.New("request already resolved")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidType          = errors.New("invalid request type")
	ErrForbiddenAsset       = errors.New("asset is locked for this user")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrElectionActive       = errors.New("an election is already active")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrUnauthorized         = errors.New("unauthorized")
)

type Role string

const (
	RoleBanker Role = "banker"
	RolePlayer Role = "player"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type RequestType string

const (
	RequestLoan       RequestType = "loan"
	RequestRepayLoan  RequestType = "repay_loan"
	RequestTax        RequestType = "tax"
	RequestTransfer   RequestType = "transfer"
	RequestStockTrade RequestType = "stock_trade"
	RequestJobChange  RequestType = "job_change"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestLoan, RequestRepayLoan, RequestTax, RequestTransfer, RequestStockTrade, RequestJobChange:
		return true
	}
	return false
}

type NPCAction string

const (
	NPCBuy   NPCAction = "buy"
	NPCSteal NPCAction = "steal_money"
	NPCScam  NPCAction = "scam"
)

func (a NPCAction) Valid() bool {
	switch a {
	case NPCBuy, NPCSteal, NPCScam:
		return true
	}
	return false
}

// Transaction type tags. These are machine identifiers, not display text.
const (
	TxIncome         = "income"
	TxExpense        = "expense"
	TxTransfer       = "transfer"
	TxDeposit        = "deposit"
	TxWithdraw       = "withdraw"
	TxTax            = "tax"
	TxStockBuy       = "stock_buy"
	TxStockSell      = "stock_sell"
	TxRouletteCost   = "roulette_cost"
	TxRouletteWin    = "roulette_win"
	TxRouletteLoss   = "roulette_loss"
	TxNPCBuy         = "npc_buy"
	TxNPCSteal       = "npc_steal"
	TxNPCScam        = "npc_scam"
	TxElectionReward = "election_reward"
	TxEventGrant     = "event_grant"
)
