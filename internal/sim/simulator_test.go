package sim_test

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/catalog"
	"github.com/leverplay/game-engine/internal/engine"
	"github.com/leverplay/game-engine/internal/ledger"
	"github.com/leverplay/game-engine/internal/model"
	"github.com/leverplay/game-engine/internal/risk"
	"github.com/leverplay/game-engine/internal/sim"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestSim(t *testing.T, seed uint64, limiter *risk.TradeLimiter) *sim.Simulator {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, seed))
	eng, err := engine.New(engine.DefaultConfig(), rnd, catalog.DefaultAssets())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	acct := model.Account{PlayerID: "p1", Name: "Tester", Balance: d(1000)}
	led := ledger.New(eng, acct, 80)
	return sim.New(eng, led, limiter, rnd)
}

func TestOpenClose_RoundTrip(t *testing.T) {
	s := newTestSim(t, 1, nil)

	pos, err := s.OpenPosition("COIN-A", model.SideLong, d(100), 10, nil)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if !pos.Margin.Equal(d(10)) {
		t.Errorf("expected margin 10, got %s", pos.Margin)
	}

	snap := s.Snapshot()
	if snap.Position == nil {
		t.Fatal("snapshot should carry the open position")
	}

	trade, err := s.ClosePosition()
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if trade.Cause != model.CauseManual {
		t.Errorf("expected manual close, got %s", trade.Cause)
	}
	if s.Snapshot().Position != nil {
		t.Error("snapshot should have no position after close")
	}
}

func TestOpenPosition_RejectsBadSymbolShape(t *testing.T) {
	s := newTestSim(t, 1, nil)
	if _, err := s.OpenPosition("coin-a", model.SideLong, d(100), 10, nil); !errors.Is(err, catalog.ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestOpenPosition_EnforcesTradeLimits(t *testing.T) {
	limiter := risk.NewTradeLimiter(5, d(500), d(1))
	s := newTestSim(t, 1, limiter)

	if _, err := s.OpenPosition("COIN-A", model.SideLong, d(100), 10, nil); !errors.Is(err, risk.ErrLeverageLimitExceeded) {
		t.Fatalf("expected ErrLeverageLimitExceeded, got %v", err)
	}
	if _, err := s.OpenPosition("COIN-A", model.SideLong, d(600), 5, nil); !errors.Is(err, risk.ErrNotionalLimitExceeded) {
		t.Fatalf("expected ErrNotionalLimitExceeded, got %v", err)
	}
	// Within limits opens fine.
	if _, err := s.OpenPosition("COIN-A", model.SideLong, d(500), 5, nil); err != nil {
		t.Fatalf("trade within limits should open: %v", err)
	}
}

func TestTick_AutoClosesOnStop(t *testing.T) {
	s := newTestSim(t, 42, nil)

	entry := s.Snapshot().Assets[0].Price // COIN-A, symbols are sorted
	stop := entry.Mul(d(0.99))
	if _, err := s.OpenPosition("COIN-A", model.SideLong, d(100), 2, &stop); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	// A 1% barrier under a ~0.5%-per-tick walk is hit almost immediately;
	// the generous bound keeps the test deterministic without tuning.
	var trade *model.ClosedTrade
	for i := 0; i < 10000 && trade == nil; i++ {
		trade = s.Tick()
	}
	if trade == nil {
		t.Fatal("stop never fired")
	}
	if trade.Cause != model.CauseStopLoss {
		t.Errorf("expected stop_loss close, got %s", trade.Cause)
	}
	if s.Snapshot().Position != nil {
		t.Error("position must be cleared after auto-close")
	}

	// The auto-closed trade is the newest history record.
	history := s.Snapshot().History
	if len(history) == 0 || history[0].ID != trade.ID {
		t.Errorf("expected auto-close at head of history, got %+v", history)
	}
}

func TestTick_NoPositionReturnsNil(t *testing.T) {
	s := newTestSim(t, 3, nil)
	for i := 0; i < 10; i++ {
		if trade := s.Tick(); trade != nil {
			t.Fatalf("tick with no position auto-closed: %+v", trade)
		}
	}
}

func TestTriggerEvent_RecentRingBounded(t *testing.T) {
	s := newTestSim(t, 5, nil)

	var last *model.AppliedEvent
	for i := 0; i < 15; i++ {
		ev, err := s.TriggerEvent()
		if err != nil {
			t.Fatalf("TriggerEvent %d: %v", i, err)
		}
		last = ev
	}

	events := s.Snapshot().Events
	if len(events) != 10 {
		t.Fatalf("expected ring capped at 10, got %d", len(events))
	}
	// Newest first.
	if events[0].Event.Title != last.Event.Title || events[0].Symbol != last.Symbol {
		t.Errorf("expected newest event first, got %+v", events[0])
	}
}

func TestSnapshot_LiquidationPrice(t *testing.T) {
	s := newTestSim(t, 1, nil)

	pos, err := s.OpenPosition("COIN-B", model.SideLong, d(100), 4, nil)
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	snap := s.Snapshot()
	if snap.Position == nil {
		t.Fatal("expected position in snapshot")
	}
	// A long liquidates a 1/leverage move below entry: entry * 0.75.
	want := pos.EntryPrice.Mul(d(0.75))
	if !snap.Position.LiquidationPrice.Equal(want) {
		t.Errorf("expected liquidation price %s, got %s", want, snap.Position.LiquidationPrice)
	}
}

func TestSnapshot_IsImmutableView(t *testing.T) {
	s := newTestSim(t, 1, nil)
	if _, err := s.TriggerEvent(); err != nil {
		t.Fatalf("TriggerEvent: %v", err)
	}

	snap := s.Snapshot()
	before := snap.Assets[0].Price

	snap.Assets[0].Price = d(999)
	snap.Assets[0].History[0] = d(999)
	snap.Events[0].Symbol = "HACKED"

	again := s.Snapshot()
	if !again.Assets[0].Price.Equal(before) {
		t.Error("mutating a snapshot leaked into the engine")
	}
	if again.Events[0].Symbol == "HACKED" {
		t.Error("mutating a snapshot leaked into the event ring")
	}
}

func TestReset_ClearsSessionKeepsMarket(t *testing.T) {
	s := newTestSim(t, 9, nil)

	if _, err := s.OpenPosition("COIN-A", model.SideLong, d(100), 5, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if _, err := s.TriggerEvent(); err != nil {
		t.Fatalf("TriggerEvent: %v", err)
	}
	priceBefore := s.Snapshot().Assets[0].Price

	if err := s.Reset(d(777)); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	snap := s.Snapshot()
	if !snap.Balance.Equal(d(777)) {
		t.Errorf("expected balance 777, got %s", snap.Balance)
	}
	if snap.Position != nil || len(snap.History) != 0 || len(snap.Events) != 0 {
		t.Errorf("reset must clear position, history and events: %+v", snap)
	}
	if !snap.Assets[0].Price.Equal(priceBefore) {
		t.Errorf("reset must not touch market prices: %s vs %s", snap.Assets[0].Price, priceBefore)
	}
}

func TestStateRestore_JSONRoundTripReproducesTicks(t *testing.T) {
	src := newTestSim(t, 42, nil)
	for i := 0; i < 5; i++ {
		src.Tick()
	}
	if _, err := src.OpenPosition("COIN-B", model.SideLong, d(50), 2, nil); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	raw, err := json.Marshal(src.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var saved model.GameState
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Two sims restored from the same wire bytes with identically seeded
	// sources must produce identical futures.
	a := newTestSim(t, 99, nil)
	b := newTestSim(t, 99, nil)
	if err := a.Restore(saved); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := b.Restore(saved); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for i := 0; i < 10; i++ {
		a.Tick()
		b.Tick()
	}

	snapA, snapB := a.Snapshot(), b.Snapshot()
	if len(snapA.Assets) != len(snapB.Assets) {
		t.Fatalf("asset count mismatch: %d vs %d", len(snapA.Assets), len(snapB.Assets))
	}
	for i := range snapA.Assets {
		if !snapA.Assets[i].Price.Equal(snapB.Assets[i].Price) {
			t.Errorf("%s: restored sims diverged: %s vs %s",
				snapA.Assets[i].Symbol, snapA.Assets[i].Price, snapB.Assets[i].Price)
		}
	}
	if !snapA.Balance.Equal(snapB.Balance) {
		t.Errorf("balance diverged: %s vs %s", snapA.Balance, snapB.Balance)
	}

	// The restored position is live: it carries mark-to-market numbers.
	if (snapA.Position == nil) != (snapB.Position == nil) {
		t.Fatal("position presence diverged after restore")
	}
}
