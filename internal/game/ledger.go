package game

import (
	"time"

	"github.com/google/uuid"
)

// Ledger operations. Every successful call mutates exactly one or two
// balances and appends exactly one immutable Transaction in the same
// step, so balances and the log cannot diverge. Callers already hold
// the GameStateStore write lock (they run inside a mutation).

// creditUser adds money to a user. An empty senderID means the money
// enters the system from outside (roulette payout, NPC customer, loan
// disbursal by the bank).
func creditUser(st *State, now time.Time, toID string, amount int64, txType, senderID, desc string) (Transaction, error) {
	if amount < 0 {
		return Transaction{}, ErrInvalidAmount
	}
	to, err := st.user(toID)
	if err != nil {
		return Transaction{}, err
	}
	to.Balance += amount
	return appendTransaction(st, now, txType, amount, senderID, toID, desc), nil
}

// debitUser removes money from a user. Balance check and mutation are a
// single step under the store lock; overdrafts are rejected, never
// clamped. An empty receiverID means the money leaves the system.
func debitUser(st *State, now time.Time, fromID string, amount int64, txType, receiverID, desc string) (Transaction, error) {
	if amount < 0 {
		return Transaction{}, ErrInvalidAmount
	}
	from, err := st.user(fromID)
	if err != nil {
		return Transaction{}, err
	}
	if from.Balance < amount {
		return Transaction{}, ErrInsufficientFunds
	}
	from.Balance -= amount
	return appendTransaction(st, now, txType, amount, fromID, receiverID, desc), nil
}

// transferUsers moves money between two users atomically.
func transferUsers(st *State, now time.Time, fromID, toID string, amount int64, txType, desc string) (Transaction, error) {
	if amount < 0 {
		return Transaction{}, ErrInvalidAmount
	}
	from, err := st.user(fromID)
	if err != nil {
		return Transaction{}, err
	}
	to, err := st.user(toID)
	if err != nil {
		return Transaction{}, err
	}
	if from.Balance < amount {
		return Transaction{}, ErrInsufficientFunds
	}
	from.Balance -= amount
	to.Balance += amount
	return appendTransaction(st, now, txType, amount, fromID, toID, desc), nil
}

func appendTransaction(st *State, now time.Time, txType string, amount int64, senderID, receiverID, desc string) Transaction {
	tx := Transaction{
		ID:          uuid.NewString(),
		Type:        txType,
		Amount:      amount,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Description: desc,
		Timestamp:   now,
	}
	st.Transactions = append(st.Transactions, tx)
	st.pushFeed(FeedEntry{At: now, Transfer: &TransferOccurred{
		TxID:     tx.ID,
		Type:     txType,
		SenderID: senderID,
		TargetID: receiverID,
		Amount:   amount,
	}})
	return tx
}

// TotalMoney sums liquid balances and bank deposits across all users.
// Used by conservation checks: it only moves through explicit external
// credits and debits.
func (st *State) TotalMoney() int64 {
	var sum int64
	for _, u := range st.Users {
		sum += u.Balance + u.Deposit
	}
	return sum
}
