// Package postgres persists game state in Postgres. One game session
// maps to one row set; every Commit applies as a single serializable
// transaction so a crash can never leave balances and the transaction
// log diverged.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tycoon/internal/game"
)

type Store struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger}
}

// EnsureSchema creates the tables on first boot.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS game;

		CREATE TABLE IF NOT EXISTS game.meta (
			id              int PRIMARY KEY CHECK (id = 1),
			version         bigint NOT NULL,
			turn            bigint NOT NULL,
			is_day          boolean NOT NULL,
			turn_ends_at    timestamptz NOT NULL,
			npc_templates   jsonb NOT NULL DEFAULT '[]',
			events          jsonb NOT NULL DEFAULT '[]',
			election        jsonb,
			roulette_items  jsonb NOT NULL DEFAULT '[]',
			roulette_result jsonb,
			feed            jsonb NOT NULL DEFAULT '[]',
			updated_at      timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS game.users (
			id              text PRIMARY KEY,
			username        text NOT NULL,
			role            text NOT NULL,
			balance         bigint NOT NULL,
			deposit         bigint NOT NULL,
			debt            bigint NOT NULL,
			unpaid_tax      bigint NOT NULL,
			job             text NOT NULL DEFAULT '',
			holdings        jsonb NOT NULL DEFAULT '{}',
			popularity      bigint NOT NULL DEFAULT 0,
			happiness       bigint NOT NULL DEFAULT 0,
			rating          bigint NOT NULL DEFAULT 0,
			stocks_unlocked boolean NOT NULL DEFAULT false,
			created_at      timestamptz NOT NULL
		);

		CREATE TABLE IF NOT EXISTS game.stocks (
			id             text PRIMARY KEY,
			name           text NOT NULL,
			price          bigint NOT NULL,
			previous_price bigint NOT NULL,
			price_history  jsonb NOT NULL DEFAULT '[]',
			volatility     double precision NOT NULL,
			is_forbidden   boolean NOT NULL DEFAULT false
		);

		CREATE TABLE IF NOT EXISTS game.requests (
			id           text PRIMARY KEY,
			type         text NOT NULL,
			requester_id text NOT NULL,
			amount       bigint NOT NULL,
			details      jsonb NOT NULL DEFAULT '{}',
			status       text NOT NULL,
			submitted_at timestamptz NOT NULL,
			resolved_at  timestamptz
		);

		CREATE TABLE IF NOT EXISTS game.npcs (
			id             text PRIMARY KEY,
			template_id    text NOT NULL,
			target_user_id text NOT NULL,
			entry_time     timestamptz NOT NULL,
			leave_time     timestamptz NOT NULL,
			effect_applied boolean NOT NULL DEFAULT false
		);

		CREATE TABLE IF NOT EXISTS game.transactions (
			seq         bigserial PRIMARY KEY,
			id          text NOT NULL UNIQUE,
			type        text NOT NULL,
			amount      bigint NOT NULL,
			sender_id   text NOT NULL DEFAULT '',
			receiver_id text NOT NULL DEFAULT '',
			description text NOT NULL DEFAULT '',
			created_at  timestamptz NOT NULL
		);

		CREATE TABLE IF NOT EXISTS game.idempotency_keys (
			key        text PRIMARY KEY,
			created_at timestamptz NOT NULL DEFAULT now()
		);
	`)
	return err
}

func (s *Store) LoadSnapshot(ctx context.Context) (*game.State, bool, error) {
	st := game.NewState()

	var npcTemplates, events, rouletteItems, feed []byte
	var election, rouletteResult []byte
	err := s.db.QueryRow(ctx, `
		SELECT version, turn, is_day, turn_ends_at,
		       npc_templates, events, election, roulette_items, roulette_result, feed
		FROM game.meta
		WHERE id = 1
	`).Scan(&st.Version, &st.Turn, &st.IsDay, &st.TurnEndsAt,
		&npcTemplates, &events, &election, &rouletteItems, &rouletteResult, &feed)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(npcTemplates, &st.NPCTemplates); err != nil {
		return nil, false, fmt.Errorf("decode npc templates: %w", err)
	}
	if err := json.Unmarshal(events, &st.Events); err != nil {
		return nil, false, fmt.Errorf("decode events: %w", err)
	}
	if err := json.Unmarshal(rouletteItems, &st.RouletteItems); err != nil {
		return nil, false, fmt.Errorf("decode roulette items: %w", err)
	}
	if err := json.Unmarshal(feed, &st.Feed); err != nil {
		return nil, false, fmt.Errorf("decode feed: %w", err)
	}
	if len(election) > 0 {
		if err := json.Unmarshal(election, &st.Election); err != nil {
			return nil, false, fmt.Errorf("decode election: %w", err)
		}
	}
	if len(rouletteResult) > 0 {
		if err := json.Unmarshal(rouletteResult, &st.RouletteResult); err != nil {
			return nil, false, fmt.Errorf("decode roulette result: %w", err)
		}
	}

	if err := s.loadUsers(ctx, st); err != nil {
		return nil, false, err
	}
	if err := s.loadStocks(ctx, st); err != nil {
		return nil, false, err
	}
	if err := s.loadRequests(ctx, st); err != nil {
		return nil, false, err
	}
	if err := s.loadNPCs(ctx, st); err != nil {
		return nil, false, err
	}
	if err := s.loadTransactions(ctx, st); err != nil {
		return nil, false, err
	}
	return st, true, nil
}

func (s *Store) loadUsers(ctx context.Context, st *game.State) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, role, balance, deposit, debt, unpaid_tax, job,
		       holdings, popularity, happiness, rating, stocks_unlocked, created_at
		FROM game.users
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var u game.User
		var holdings []byte
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.Balance, &u.Deposit, &u.Debt,
			&u.UnpaidTax, &u.Job, &holdings, &u.Popularity, &u.Happiness, &u.Rating,
			&u.StocksUnlocked, &u.CreatedAt); err != nil {
			return err
		}
		u.Role = game.Role(role)
		if err := json.Unmarshal(holdings, &u.Holdings); err != nil {
			return fmt.Errorf("decode holdings for %s: %w", u.ID, err)
		}
		if u.Holdings == nil {
			u.Holdings = map[string]int64{}
		}
		cu := u
		st.Users[u.ID] = &cu
	}
	return rows.Err()
}

func (s *Store) loadStocks(ctx context.Context, st *game.State) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, price, previous_price, price_history, volatility, is_forbidden
		FROM game.stocks
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var stk game.Stock
		var history []byte
		if err := rows.Scan(&stk.ID, &stk.Name, &stk.Price, &stk.PreviousPrice,
			&history, &stk.Volatility, &stk.IsForbidden); err != nil {
			return err
		}
		if err := json.Unmarshal(history, &stk.PriceHistory); err != nil {
			return fmt.Errorf("decode price history for %s: %w", stk.ID, err)
		}
		cs := stk
		st.Stocks[stk.ID] = &cs
	}
	return rows.Err()
}

func (s *Store) loadRequests(ctx context.Context, st *game.State) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, requester_id, amount, details, status, submitted_at, resolved_at
		FROM game.requests
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r game.Request
		var details []byte
		var reqType, status string
		if err := rows.Scan(&r.ID, &reqType, &r.RequesterID, &r.Amount, &details,
			&status, &r.Timestamp, &r.ResolvedAt); err != nil {
			return err
		}
		r.Type = game.RequestType(reqType)
		r.Status = game.RequestStatus(status)
		if err := json.Unmarshal(details, &r.Details); err != nil {
			return fmt.Errorf("decode details for request %s: %w", r.ID, err)
		}
		cr := r
		st.Requests[r.ID] = &cr
	}
	return rows.Err()
}

func (s *Store) loadNPCs(ctx context.Context, st *game.State) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, template_id, target_user_id, entry_time, leave_time, effect_applied
		FROM game.npcs
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var n game.NPC
		if err := rows.Scan(&n.ID, &n.TemplateID, &n.TargetUserID,
			&n.EntryTime, &n.LeaveTime, &n.EffectApplied); err != nil {
			return err
		}
		cn := n
		st.NPCs[n.ID] = &cn
	}
	return rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context, st *game.State) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, type, amount, sender_id, receiver_id, description, created_at
		FROM game.transactions
		ORDER BY seq
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tx game.Transaction
		if err := rows.Scan(&tx.ID, &tx.Type, &tx.Amount, &tx.SenderID,
			&tx.ReceiverID, &tx.Description, &tx.Timestamp); err != nil {
			return err
		}
		st.Transactions = append(st.Transactions, tx)
	}
	return rows.Err()
}

// Commit writes the new state and the appended ledger tail as one
// serializable transaction, retrying on serialization conflicts.
func (s *Store) Commit(ctx context.Context, st *game.State, appended []game.Transaction, idemKey string) error {
	const maxAttempts = 5
	retryDelay := 50 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.commitOnce(ctx, st, appended, idemKey)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return err
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		retryDelay *= 2
	}
	return nil
}

func (s *Store) commitOnce(ctx context.Context, st *game.State, appended []game.Transaction, idemKey string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if idemKey != "" {
		tag, err := tx.Exec(ctx, `
			INSERT INTO game.idempotency_keys (key) VALUES ($1)
			ON CONFLICT (key) DO NOTHING
		`, idemKey)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return game.ErrDuplicateIdempotency
		}
	}

	npcTemplates, _ := json.Marshal(st.NPCTemplates)
	events, _ := json.Marshal(st.Events)
	rouletteItems, _ := json.Marshal(st.RouletteItems)
	feed, _ := json.Marshal(st.Feed)
	var election, rouletteResult []byte
	if st.Election != nil {
		election, _ = json.Marshal(st.Election)
	}
	if st.RouletteResult != nil {
		rouletteResult, _ = json.Marshal(st.RouletteResult)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game.meta (id, version, turn, is_day, turn_ends_at,
		                       npc_templates, events, election, roulette_items, roulette_result, feed, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO UPDATE SET
			version = $1, turn = $2, is_day = $3, turn_ends_at = $4,
			npc_templates = $5, events = $6, election = $7,
			roulette_items = $8, roulette_result = $9, feed = $10, updated_at = now()
	`, st.Version, st.Turn, st.IsDay, st.TurnEndsAt,
		npcTemplates, events, election, rouletteItems, rouletteResult, feed); err != nil {
		return err
	}

	for _, u := range st.Users {
		holdings, _ := json.Marshal(u.Holdings)
		if _, err := tx.Exec(ctx, `
			INSERT INTO game.users (id, username, role, balance, deposit, debt, unpaid_tax, job,
			                        holdings, popularity, happiness, rating, stocks_unlocked, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				username = $2, role = $3, balance = $4, deposit = $5, debt = $6,
				unpaid_tax = $7, job = $8, holdings = $9, popularity = $10,
				happiness = $11, rating = $12, stocks_unlocked = $13
		`, u.ID, u.Username, string(u.Role), u.Balance, u.Deposit, u.Debt, u.UnpaidTax,
			u.Job, holdings, u.Popularity, u.Happiness, u.Rating, u.StocksUnlocked, u.CreatedAt); err != nil {
			return err
		}
	}

	for _, stk := range st.Stocks {
		history, _ := json.Marshal(stk.PriceHistory)
		if _, err := tx.Exec(ctx, `
			INSERT INTO game.stocks (id, name, price, previous_price, price_history, volatility, is_forbidden)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = $2, price = $3, previous_price = $4,
				price_history = $5, volatility = $6, is_forbidden = $7
		`, stk.ID, stk.Name, stk.Price, stk.PreviousPrice, history, stk.Volatility, stk.IsForbidden); err != nil {
			return err
		}
	}

	for _, r := range st.Requests {
		details, _ := json.Marshal(r.Details)
		if _, err := tx.Exec(ctx, `
			INSERT INTO game.requests (id, type, requester_id, amount, details, status, submitted_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET status = $6, resolved_at = $8
		`, r.ID, string(r.Type), r.RequesterID, r.Amount, details, string(r.Status), r.Timestamp, r.ResolvedAt); err != nil {
			return err
		}
	}

	// The live NPC set is small; replace it wholesale.
	if _, err := tx.Exec(ctx, `DELETE FROM game.npcs`); err != nil {
		return err
	}
	for _, n := range st.NPCs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO game.npcs (id, template_id, target_user_id, entry_time, leave_time, effect_applied)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, n.ID, n.TemplateID, n.TargetUserID, n.EntryTime, n.LeaveTime, n.EffectApplied); err != nil {
			return err
		}
	}

	for _, rec := range appended {
		if _, err := tx.Exec(ctx, `
			INSERT INTO game.transactions (id, type, amount, sender_id, receiver_id, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.ID, rec.Type, rec.Amount, rec.SenderID, rec.ReceiverID, rec.Description, rec.Timestamp); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
