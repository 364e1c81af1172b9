package game

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestMarketTickBoundsMove(t *testing.T) {
	st := NewState()
	st.Stocks["acme"] = &Stock{ID: "acme", Name: "Acme", Price: 100, PreviousPrice: 100, Volatility: 0.1}
	rng := rand.New(rand.NewSource(7))
	now := time.Now()

	for i := 0; i < 500; i++ {
		prev := st.Stocks["acme"].Price
		marketTick(st, rng, now, testLogger())
		s := st.Stocks["acme"]
		lo := int64(float64(prev) * 0.9)
		hi := int64(float64(prev)*1.1) + 1 // rounding headroom
		if s.Price < lo || s.Price > hi {
			t.Fatalf("tick %d moved %d -> %d, outside [%d, %d]", i, prev, s.Price, lo, hi)
		}
		if s.PreviousPrice != prev {
			t.Fatalf("previous price not updated: %d want %d", s.PreviousPrice, prev)
		}
		if s.Price < 1 {
			t.Fatalf("price dropped below floor: %d", s.Price)
		}
	}
	if got := len(st.Stocks["acme"].PriceHistory); got != MaxPriceHistory {
		t.Fatalf("history length=%d want=%d", got, MaxPriceHistory)
	}
}

func TestMarketTickSkipsForbiddenAndMalformed(t *testing.T) {
	st := NewState()
	st.Stocks["locked"] = &Stock{ID: "locked", Price: 100, PreviousPrice: 100, Volatility: 0.5, IsForbidden: true}
	st.Stocks["broken"] = &Stock{ID: "broken", Price: 0, Volatility: 0.1}
	rng := rand.New(rand.NewSource(1))

	marketTick(st, rng, time.Now(), testLogger())
	if st.Stocks["locked"].Price != 100 {
		t.Fatalf("forbidden stock ticked: %d", st.Stocks["locked"].Price)
	}
	if st.Stocks["broken"].Price != 0 {
		t.Fatalf("malformed stock ticked: %d", st.Stocks["broken"].Price)
	}
}

func TestMarketDriftFromEvents(t *testing.T) {
	st := NewState()
	now := time.Now()
	st.Events = []GameEvent{
		{ID: "1", Kind: "boom", StartTime: now.Add(-time.Minute), Duration: time.Hour},
		{ID: "2", Kind: "bust", StartTime: now.Add(-2 * time.Hour), Duration: time.Hour}, // expired
		{ID: "3", Kind: "epidemic", TargetUserID: "alice", StartTime: now, Duration: time.Hour},
	}
	if got := marketDrift(st, now); got != boomDrift {
		t.Fatalf("drift=%f want=%f", got, boomDrift)
	}
}

func TestForbiddenStockRequiresUnlock(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	ctx := context.Background()
	if err := g.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := g.TradeStock(ctx, TradeInput{UserID: "alice", StockID: "glintex", Quantity: 1, Side: "buy"})
	if !errors.Is(err, ErrForbiddenAsset) {
		t.Fatalf("locked buy: want ErrForbiddenAsset, got %v", err)
	}
	if err := g.SetStockAccess(ctx, "alice", true, ""); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	out, err := g.TradeStock(ctx, TradeInput{UserID: "alice", StockID: "glintex", Quantity: 1, Side: "buy"})
	if err != nil {
		t.Fatalf("unlocked buy: %v", err)
	}
	if out.Held != 1 {
		t.Fatalf("held=%d", out.Held)
	}
}

func TestTradeSellRequiresHoldings(t *testing.T) {
	g, _ := newTestGame(t, Options{})
	addUser(t, g, "alice", RolePlayer)
	ctx := context.Background()
	if err := g.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := g.TradeStock(ctx, TradeInput{UserID: "alice", StockID: "railx", Quantity: 2, Side: "sell"}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("naked sell: want ErrInvalidQuantity, got %v", err)
	}
	if _, err := g.TradeStock(ctx, TradeInput{UserID: "alice", StockID: "railx", Quantity: 2, Side: "buy"}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	out, err := g.TradeStock(ctx, TradeInput{UserID: "alice", StockID: "railx", Quantity: 2, Side: "sell"})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if out.Held != 0 {
		t.Fatalf("held after sell=%d", out.Held)
	}
	if out.Balance != StarterBalance {
		t.Fatalf("balance after round trip=%d", out.Balance)
	}
}
