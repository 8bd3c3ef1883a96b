// Package ledger owns the player's account and the single open leveraged
// position: it turns open/close intents into balance mutations, enforces
// margin, and detects stop-loss and liquidation against fresh prices.
//
// Convention held throughout: notional is the leveraged exposure,
// margin = notional / leverage, pnl = priceChangePct * notional. Leverage
// is never applied twice.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/engine"
	"github.com/leverplay/game-engine/internal/model"
)

var (
	// ErrInvalidParameter is returned for non-positive sizes, leverage
	// below 1, or an unknown side.
	ErrInvalidParameter = errors.New("ledger: invalid parameter")

	// ErrInsufficientMargin is returned when required margin exceeds the
	// free balance. The caller may retry after a top-up is credited.
	ErrInsufficientMargin = errors.New("ledger: insufficient margin")

	// ErrPositionAlreadyOpen is returned when an open arrives while a
	// position is active.
	ErrPositionAlreadyOpen = errors.New("ledger: position already open")

	// ErrNoOpenPosition is returned when a close arrives with no active
	// position.
	ErrNoOpenPosition = errors.New("ledger: no open position")
)

var hundred = decimal.NewFromInt(100)

// Market is the slice of the price engine the ledger needs: price reads
// and trade impact. The ledger never owns assets, only references them.
type Market interface {
	PriceOf(symbol string) (decimal.Decimal, error)
	ApplyImpact(symbol string, notional decimal.Decimal, dir engine.Direction) error
}

// Ledger holds the account, the open position, and the bounded closed-trade
// history. It is not safe for concurrent use; the simulator serializes all
// access.
type Ledger struct {
	market       Market
	account      model.Account
	position     *model.Position
	history      []model.ClosedTrade
	historyLimit int
}

// New creates a ledger over the given account. historyLimit bounds the
// retained closed trades (newest-first); values below 1 fall back to 80.
func New(market Market, account model.Account, historyLimit int) *Ledger {
	if historyLimit < 1 {
		historyLimit = 80
	}
	return &Ledger{
		market:       market,
		account:      account,
		historyLimit: historyLimit,
	}
}

// Open opens a leveraged position. Margin (= notional / leverage) is
// debited from the balance and the entry price is read at the instant of
// opening; the trade's impact is applied in the direction of the bet.
func (l *Ledger) Open(symbol string, side model.Side, notional decimal.Decimal, leverage int64, stop *decimal.Decimal) (*model.Position, error) {
	if notional.LessThanOrEqual(decimal.Zero) || leverage < 1 {
		return nil, fmt.Errorf("%w: notional must be positive and leverage >= 1", ErrInvalidParameter)
	}
	if side != model.SideLong && side != model.SideShort {
		return nil, fmt.Errorf("%w: side must be long or short", ErrInvalidParameter)
	}
	if stop != nil && stop.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: stop price must be positive", ErrInvalidParameter)
	}
	if l.position != nil {
		return nil, ErrPositionAlreadyOpen
	}

	margin := notional.Div(decimal.NewFromInt(leverage))
	if margin.GreaterThan(l.account.Balance) {
		return nil, fmt.Errorf("%w: need %s, have %s",
			ErrInsufficientMargin, margin, l.account.Balance)
	}

	entry, err := l.market.PriceOf(symbol)
	if err != nil {
		return nil, err
	}

	l.account.Balance = l.account.Balance.Sub(margin)
	pos := &model.Position{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
		Notional:   notional,
		Leverage:   leverage,
		Margin:     margin,
		OpenedAt:   time.Now().UTC(),
	}
	if stop != nil {
		s := *stop
		pos.StopPrice = &s
	}
	l.position = pos

	l.market.ApplyImpact(symbol, notional, openDirection(side))

	out := *pos
	return &out, nil
}

// Close closes the open position at the current market price, credits
// margin + pnl back to the balance, records the trade, and applies the
// unwind impact.
func (l *Ledger) Close() (*model.ClosedTrade, error) {
	if l.position == nil {
		return nil, ErrNoOpenPosition
	}
	exit, err := l.market.PriceOf(l.position.Symbol)
	if err != nil {
		return nil, err
	}
	trade := l.closeAt(exit, model.CauseManual)
	return &trade, nil
}

// EvaluateRisk re-checks the open position against a fresh price. Two
// independent triggers, in order:
//
//  1. Stop-loss: the stop is a bidirectional trigger line — it fires when
//     the price reaches the far side of the stop relative to entry.
//  2. Liquidation: unrealized loss >= margin forces a close at zero
//     recovery, wiping the balance to zero.
//
// At most one trigger fires per call. With no open position this is a
// no-op, so a second call after an auto-close is harmless.
func (l *Ledger) EvaluateRisk(price decimal.Decimal) *model.ClosedTrade {
	pos := l.position
	if pos == nil {
		return nil
	}

	if pos.StopPrice != nil && stopCrossed(pos.EntryPrice, *pos.StopPrice, price) {
		trade := l.closeAt(price, model.CauseStopLoss)
		return &trade
	}

	if pnlAt(pos, price).LessThanOrEqual(pos.Margin.Neg()) {
		trade := l.liquidate(price)
		return &trade
	}

	return nil
}

// closeAt settles the position at the given exit price for a normal close
// (manual or stop). Balance gets margin + pnl back, clamped at zero so the
// account never rests negative.
func (l *Ledger) closeAt(exit decimal.Decimal, cause model.CloseCause) model.ClosedTrade {
	pos := l.position
	pnl := pnlAt(pos, exit)

	l.account.Balance = l.account.Balance.Add(pos.Margin).Add(pnl)
	if l.account.Balance.IsNegative() {
		l.account.Balance = decimal.Zero
	}

	trade := model.ClosedTrade{
		ID:         uuid.New().String(),
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Leverage:   pos.Leverage,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		Notional:   pos.Notional,
		Margin:     pos.Margin,
		PnL:        pnl,
		ROEPercent: pnl.Div(pos.Margin).Mul(hundred),
		Cause:      cause,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   time.Now().UTC(),
	}
	l.prependHistory(trade)
	l.position = nil

	l.market.ApplyImpact(trade.Symbol, trade.Notional, closeDirection(trade.Side))

	return trade
}

// liquidate force-closes at zero recovery: the position is cleared, the
// loss is pinned to exactly the margin, and the balance is wiped to zero.
func (l *Ledger) liquidate(price decimal.Decimal) model.ClosedTrade {
	pos := l.position

	trade := model.ClosedTrade{
		ID:          uuid.New().String(),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Leverage:    pos.Leverage,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Notional:    pos.Notional,
		Margin:      pos.Margin,
		PnL:         pos.Margin.Neg(),
		ROEPercent:  hundred.Neg(),
		Liquidation: true,
		Cause:       model.CauseLiquidation,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    time.Now().UTC(),
	}
	l.prependHistory(trade)
	l.position = nil
	l.account.Balance = decimal.Zero

	return trade
}

// RequestTopUp registers intent to buy balance from the external payment
// channel. It does not touch the ledger; CreditTopUp moves the money when
// the payment confirmation arrives.
func (l *Ledger) RequestTopUp(amount decimal.Decimal) (model.TopUpRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.TopUpRequest{}, fmt.Errorf("%w: top-up amount must be positive", ErrInvalidParameter)
	}
	return model.TopUpRequest{
		ID:        uuid.New().String(),
		PlayerID:  l.account.PlayerID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CreditTopUp credits a confirmed external payment to the balance.
func (l *Ledger) CreditTopUp(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: top-up amount must be positive", ErrInvalidParameter)
	}
	l.account.Balance = l.account.Balance.Add(amount)
	return nil
}

// CreditStars adds to the auxiliary stars balance.
func (l *Ledger) CreditStars(n int64) error {
	if n <= 0 {
		return fmt.Errorf("%w: stars must be positive", ErrInvalidParameter)
	}
	l.account.Stars += n
	return nil
}

// Reset wipes position and history and sets the balance to startBalance.
func (l *Ledger) Reset(startBalance decimal.Decimal) error {
	if startBalance.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: start balance must be positive", ErrInvalidParameter)
	}
	l.account.Balance = startBalance
	l.account.Stars = 0
	l.position = nil
	l.history = nil
	return nil
}

// Account returns a copy of the account.
func (l *Ledger) Account() model.Account {
	return l.account
}

// Position returns a copy of the open position, or nil.
func (l *Ledger) Position() *model.Position {
	if l.position == nil {
		return nil
	}
	cp := *l.position
	if l.position.StopPrice != nil {
		s := *l.position.StopPrice
		cp.StopPrice = &s
	}
	return &cp
}

// History returns a copy of the closed trades, newest first.
func (l *Ledger) History() []model.ClosedTrade {
	return append([]model.ClosedTrade(nil), l.history...)
}

// UnrealizedPnL marks the open position to the given price.
func (l *Ledger) UnrealizedPnL(price decimal.Decimal) (decimal.Decimal, error) {
	if l.position == nil {
		return decimal.Zero, ErrNoOpenPosition
	}
	return pnlAt(l.position, price), nil
}

// Restore replaces account, position, and history from a saved game.
func (l *Ledger) Restore(account model.Account, position *model.Position, history []model.ClosedTrade) error {
	if account.Balance.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative", ErrInvalidParameter)
	}
	l.account = account
	l.position = nil
	if position != nil {
		cp := *position
		if position.StopPrice != nil {
			s := *position.StopPrice
			cp.StopPrice = &s
		}
		l.position = &cp
	}
	l.history = append([]model.ClosedTrade(nil), history...)
	if len(l.history) > l.historyLimit {
		l.history = l.history[:l.historyLimit]
	}
	return nil
}

func (l *Ledger) prependHistory(trade model.ClosedTrade) {
	l.history = append([]model.ClosedTrade{trade}, l.history...)
	if len(l.history) > l.historyLimit {
		l.history = l.history[:l.historyLimit]
	}
}

// pnlAt computes realized-or-unrealized pnl of pos at price:
// priceChangePct * notional, sign-inverted for shorts.
func pnlAt(pos *model.Position, price decimal.Decimal) decimal.Decimal {
	pct := price.Sub(pos.EntryPrice).Div(pos.EntryPrice)
	if pos.Side == model.SideShort {
		pct = pct.Neg()
	}
	return pct.Mul(pos.Notional)
}

// stopCrossed reports whether price has reached the far side of the stop
// line relative to entry. Crossing in either direction counts.
func stopCrossed(entry, stop, price decimal.Decimal) bool {
	if entry.GreaterThanOrEqual(stop) {
		return price.LessThanOrEqual(stop)
	}
	return price.GreaterThanOrEqual(stop)
}

func openDirection(side model.Side) engine.Direction {
	if side == model.SideShort {
		return engine.Sell
	}
	return engine.Buy
}

func closeDirection(side model.Side) engine.Direction {
	if side == model.SideShort {
		return engine.Buy
	}
	return engine.Sell
}
