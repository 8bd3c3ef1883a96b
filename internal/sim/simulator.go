// Package sim orchestrates the game: it serializes every mutation of the
// price engine and the position ledger behind one mutex, drives risk
// re-evaluation on each market tick, and publishes immutable snapshots.
//
// The simulator has no timers of its own. An external scheduler calls
// Tick at whatever cadence it wants; commands arrive between ticks and
// run to completion before the next mutation is admitted.
package sim

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/catalog"
	"github.com/leverplay/game-engine/internal/engine"
	"github.com/leverplay/game-engine/internal/ledger"
	"github.com/leverplay/game-engine/internal/model"
	"github.com/leverplay/game-engine/internal/risk"
)

var one = decimal.NewFromInt(1)

// Simulator routes commands into the engine and ledger and owns the
// recent-events display ring.
type Simulator struct {
	mu         sync.Mutex
	engine     *engine.Engine
	ledger     *ledger.Ledger
	limiter    *risk.TradeLimiter
	picker     catalog.Picker
	events     []model.AppliedEvent
	eventLimit int
}

// New creates a simulator. limiter may be nil to disable trade limits;
// picker supplies the randomness for scripted event selection.
func New(eng *engine.Engine, led *ledger.Ledger, limiter *risk.TradeLimiter, picker catalog.Picker) *Simulator {
	return &Simulator{
		engine:     eng,
		ledger:     led,
		limiter:    limiter,
		picker:     picker,
		eventLimit: 10,
	}
}

// Tick advances the market one step and re-evaluates stop-loss and
// liquidation for the open position against the fresh price. Returns the
// auto-closed trade if a trigger fired, else nil.
func (s *Simulator) Tick() *model.ClosedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.Tick()

	pos := s.ledger.Position()
	if pos == nil {
		return nil
	}
	price, err := s.engine.PriceOf(pos.Symbol)
	if err != nil {
		return nil
	}
	return s.ledger.EvaluateRisk(price)
}

// OpenPosition validates and opens a leveraged position.
func (s *Simulator) OpenPosition(symbol string, side model.Side, notional decimal.Decimal, leverage int64, stop *decimal.Decimal) (*model.Position, error) {
	if err := catalog.ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil && notional.IsPositive() && leverage >= 1 {
		margin := notional.Div(decimal.NewFromInt(leverage))
		if err := s.limiter.CheckTrade(notional, margin, s.ledger.Account().Balance, leverage); err != nil {
			return nil, err
		}
	}
	return s.ledger.Open(symbol, side, notional, leverage, stop)
}

// ClosePosition closes the open position at the current market price.
func (s *Simulator) ClosePosition() (*model.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Close()
}

// TriggerEvent picks a scripted shock and a target asset uniformly at
// random and applies it to the market.
func (s *Simulator) TriggerEvent() (*model.AppliedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, symbol, err := catalog.PickRandom(s.picker, s.engine.Symbols())
	if err != nil {
		return nil, err
	}
	if err := s.engine.ApplyEvent(symbol, ev); err != nil {
		return nil, err
	}

	applied := model.AppliedEvent{
		Event:     ev,
		Symbol:    symbol,
		AppliedAt: time.Now().UTC(),
	}
	s.events = append([]model.AppliedEvent{applied}, s.events...)
	if len(s.events) > s.eventLimit {
		s.events = s.events[:s.eventLimit]
	}
	return &applied, nil
}

// RequestTopUp registers a pending top-up without touching the balance.
func (s *Simulator) RequestTopUp(amount decimal.Decimal) (model.TopUpRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.RequestTopUp(amount)
}

// CreditTopUp applies a confirmed external payment to the balance.
func (s *Simulator) CreditTopUp(amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CreditTopUp(amount)
}

// CreditStars adds to the auxiliary stars balance.
func (s *Simulator) CreditStars(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CreditStars(n)
}

// Reset starts the session over with the given balance. The market keeps
// its current prices; position, history, and displayed events are cleared.
func (s *Simulator) Reset(startBalance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ledger.Reset(startBalance); err != nil {
		return err
	}
	s.events = nil
	return nil
}

// Snapshot returns an immutable view of the whole game for rendering.
// Everything is deep-copied; consumers cannot reach engine state.
func (s *Simulator) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	market := s.engine.State()
	assets := make([]model.AssetView, 0, len(market.Assets))
	for _, sym := range s.engine.Symbols() {
		a := market.Assets[sym]
		assets = append(assets, model.AssetView{
			Symbol:  a.Symbol,
			Name:    a.Name,
			Price:   a.Price,
			History: a.History,
		})
	}

	account := s.ledger.Account()
	snap := model.Snapshot{
		Assets:     assets,
		Volatility: market.Volatility,
		Balance:    account.Balance,
		Stars:      account.Stars,
		History:    s.ledger.History(),
		Events:     append([]model.AppliedEvent(nil), s.events...),
		TakenAt:    time.Now().UTC(),
	}

	if pos := s.ledger.Position(); pos != nil {
		if mark, err := s.engine.PriceOf(pos.Symbol); err == nil {
			pnl, _ := s.ledger.UnrealizedPnL(mark)
			snap.Position = &model.PositionView{
				Position:         *pos,
				MarkPrice:        mark,
				UnrealizedPnL:    pnl,
				ROEPercent:       pnl.Div(pos.Margin).Mul(decimal.NewFromInt(100)),
				LiquidationPrice: liquidationPrice(pos),
			}
		}
	}
	return snap
}

// State serializes the entire mutable core into one structured snapshot.
func (s *Simulator) State() model.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.GameState{
		Market:   s.engine.State(),
		Account:  s.ledger.Account(),
		Position: s.ledger.Position(),
		History:  s.ledger.History(),
		Events:   append([]model.AppliedEvent(nil), s.events...),
		SavedAt:  time.Now().UTC(),
	}
}

// Restore replaces the whole core from a saved game. With the same random
// source, the subsequent tick sequence is identical to the original run.
func (s *Simulator) Restore(state model.GameState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Restore(state.Market); err != nil {
		return err
	}
	if err := s.ledger.Restore(state.Account, state.Position, state.History); err != nil {
		return err
	}
	s.events = append([]model.AppliedEvent(nil), state.Events...)
	if len(s.events) > s.eventLimit {
		s.events = s.events[:s.eventLimit]
	}
	return nil
}

// liquidationPrice is the price at which the position's loss equals its
// margin: entry * (1 -/+ margin/notional), i.e. a 1/leverage move against
// the position.
func liquidationPrice(pos *model.Position) decimal.Decimal {
	frac := pos.Margin.Div(pos.Notional)
	if pos.Side == model.SideShort {
		return pos.EntryPrice.Mul(one.Add(frac))
	}
	return pos.EntryPrice.Mul(one.Sub(frac))
}
