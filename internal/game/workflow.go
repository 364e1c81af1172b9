package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Request workflow: pending -> approved | rejected, terminal. Approval
// applies the type-specific effect and the status flip inside one
// mutation, so a failed effect leaves the request pending and nothing
// partial visible.

type SubmitRequestInput struct {
	Type           RequestType
	RequesterID    string
	Amount         int64
	Details        RequestDetails
	IdempotencyKey string
}

// DecodeRequestDetails parses the raw details payload for the given
// request type. Called once at the API boundary; the engine only ever
// sees the typed variant.
func DecodeRequestDetails(t RequestType, raw json.RawMessage) (RequestDetails, error) {
	var out RequestDetails
	if !t.Valid() {
		return out, ErrInvalidType
	}
	decode := func(dst any) error {
		if len(raw) == 0 {
			return fmt.Errorf("%w: %s requires a details payload", ErrInvalidType, t)
		}
		return json.Unmarshal(raw, dst)
	}
	switch t {
	case RequestTransfer:
		var d TransferDetails
		if err := decode(&d); err != nil {
			return out, err
		}
		if d.ToUserID == "" {
			return out, fmt.Errorf("%w: transfer requires to_user_id", ErrInvalidType)
		}
		out.Transfer = &d
	case RequestStockTrade:
		var d StockTradeDetails
		if err := decode(&d); err != nil {
			return out, err
		}
		if d.StockID == "" || (d.Side != "buy" && d.Side != "sell") {
			return out, fmt.Errorf("%w: stock_trade requires stock_id and side buy|sell", ErrInvalidType)
		}
		if d.Quantity <= 0 {
			return out, ErrInvalidQuantity
		}
		out.StockTrade = &d
	case RequestJobChange:
		var d JobChangeDetails
		if err := decode(&d); err != nil {
			return out, err
		}
		if d.Job == "" {
			return out, fmt.Errorf("%w: job_change requires a job", ErrInvalidType)
		}
		out.JobChange = &d
	}
	return out, nil
}

// SubmitRequest enqueues a pending request. Validation happens here;
// once enqueued the request waits for the banker (or approve-all)
// indefinitely.
func (g *GameStateStore) SubmitRequest(ctx context.Context, in SubmitRequestInput) (string, error) {
	if !in.Type.Valid() {
		return "", ErrInvalidType
	}
	if in.Amount < 0 {
		return "", ErrInvalidAmount
	}
	switch in.Type {
	case RequestLoan, RequestRepayLoan, RequestTax:
		if in.Amount <= 0 {
			return "", ErrInvalidAmount
		}
	case RequestTransfer:
		if in.Amount <= 0 {
			return "", ErrInvalidAmount
		}
		if in.Details.Transfer == nil {
			return "", ErrInvalidType
		}
	case RequestStockTrade:
		if in.Details.StockTrade == nil {
			return "", ErrInvalidType
		}
	case RequestJobChange:
		if in.Details.JobChange == nil {
			return "", ErrInvalidType
		}
	}

	id := uuid.NewString()
	err := g.mutate(ctx, in.IdempotencyKey, func(st *State, now time.Time) error {
		if _, err := st.user(in.RequesterID); err != nil {
			return err
		}
		st.Requests[id] = &Request{
			ID:          id,
			Type:        in.Type,
			RequesterID: in.RequesterID,
			Amount:      in.Amount,
			Details:     in.Details,
			Status:      RequestPending,
			Timestamp:   now,
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

type ResolveResult struct {
	RequestID string        `json:"request_id"`
	Status    RequestStatus `json:"status"`
	TxID      string        `json:"tx_id,omitempty"`
}

// ResolveRequest performs the single terminal transition. A request
// that is no longer pending fails with ErrAlreadyResolved and is never
// mutated again. On approval the effect and the status flip commit as
// one unit; if the effect fails the request stays pending.
func (g *GameStateStore) ResolveRequest(ctx context.Context, requestID string, approve bool, idemKey string) (ResolveResult, error) {
	var out ResolveResult
	err := g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		res, err := resolveRequestLocked(st, now, requestID, approve)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func resolveRequestLocked(st *State, now time.Time, requestID string, approve bool) (ResolveResult, error) {
	req, ok := st.Requests[requestID]
	if !ok {
		return ResolveResult{}, ErrNotFound
	}
	if req.Status != RequestPending {
		return ResolveResult{}, ErrAlreadyResolved
	}

	res := ResolveResult{RequestID: requestID}
	if approve {
		tx, err := applyRequestEffect(st, now, req)
		if err != nil {
			return ResolveResult{}, err
		}
		req.Status = RequestApproved
		res.TxID = tx.ID
	} else {
		req.Status = RequestRejected
	}
	req.ResolvedAt = &now
	res.Status = req.Status
	st.pushFeed(FeedEntry{At: now, Request: &RequestOutcome{
		RequestID: req.ID,
		Type:      req.Type,
		Status:    req.Status,
	}})
	return res, nil
}

func applyRequestEffect(st *State, now time.Time, req *Request) (Transaction, error) {
	u, err := st.user(req.RequesterID)
	if err != nil {
		return Transaction{}, err
	}
	switch req.Type {
	case RequestLoan:
		tx, err := creditUser(st, now, u.ID, req.Amount, TxIncome, "", "loan disbursal")
		if err != nil {
			return Transaction{}, err
		}
		u.Debt += req.Amount
		return tx, nil
	case RequestRepayLoan:
		if req.Amount > u.Debt {
			return Transaction{}, ErrInvalidAmount
		}
		tx, err := debitUser(st, now, u.ID, req.Amount, TxExpense, "", "loan repayment")
		if err != nil {
			return Transaction{}, err
		}
		u.Debt -= req.Amount
		return tx, nil
	case RequestTax:
		if req.Amount > u.UnpaidTax {
			return Transaction{}, ErrInvalidAmount
		}
		tx, err := debitUser(st, now, u.ID, req.Amount, TxTax, "", "tax payment")
		if err != nil {
			return Transaction{}, err
		}
		u.UnpaidTax -= req.Amount
		return tx, nil
	case RequestTransfer:
		return transferUsers(st, now, u.ID, req.Details.Transfer.ToUserID, req.Amount, TxTransfer, "approved transfer")
	case RequestStockTrade:
		d := req.Details.StockTrade
		return applyStockTrade(st, now, u.ID, d.StockID, d.Quantity, d.Side)
	case RequestJobChange:
		// No money moves on a job change.
		u.Job = req.Details.JobChange.Job
		return Transaction{}, nil
	default:
		return Transaction{}, ErrInvalidType
	}
}

type BulkResolveResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"` // approved or failed
	Error     string `json:"error,omitempty"`
}

// ApproveAllRequests resolves every currently pending request as
// approved. Each request is its own atomic unit: one failure (say, an
// insufficient-funds repayment) is reported per item and neither blocks
// nor rolls back the rest.
func (g *GameStateStore) ApproveAllRequests(ctx context.Context, idemKey string) ([]BulkResolveResult, error) {
	var out []BulkResolveResult
	err := g.mutate(ctx, idemKey, func(st *State, now time.Time) error {
		for _, id := range pendingRequestIDs(st) {
			if _, err := resolveRequestLocked(st, now, id, true); err != nil {
				out = append(out, BulkResolveResult{RequestID: id, Status: "failed", Error: err.Error()})
				continue
			}
			out = append(out, BulkResolveResult{RequestID: id, Status: string(RequestApproved)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pendingRequestIDs orders by submission time so the bulk pass is
// deterministic; ordering across distinct requests carries no semantic
// weight.
func pendingRequestIDs(st *State) []string {
	type pair struct {
		id string
		at time.Time
	}
	pairs := make([]pair, 0, len(st.Requests))
	for id, r := range st.Requests {
		if r.Status == RequestPending {
			pairs = append(pairs, pair{id, r.Timestamp})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].at.Equal(pairs[j].at) {
			return pairs[i].id < pairs[j].id
		}
		return pairs[i].at.Before(pairs[j].at)
	})
	ids := make([]string, len(pairs))
	for i, p := range pairs {
		ids[i] = p.id
	}
	return ids
}
