// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// CloseCause records why a position left the book.
type CloseCause string

const (
	CauseManual      CloseCause = "manual"
	CauseStopLoss    CloseCause = "stop_loss"
	CauseLiquidation CloseCause = "liquidation"
)

// Asset is one tradable synthetic coin. Price history is bounded; the
// oldest point is evicted first. Demand accumulates net recent buy/sell
// pressure and decays toward zero each tick.
type Asset struct {
	Symbol        string            `json:"symbol" db:"symbol"`
	Name          string            `json:"name" db:"name"`
	Price         decimal.Decimal   `json:"price" db:"price"`
	History       []decimal.Decimal `json:"history"`
	Demand        float64           `json:"demand"`
	LiquidityMult float64           `json:"liquidity_mult"` // illiquid assets move more per unit size
}

// MarketState is the full mutable state of the price engine: every asset
// plus the shared volatility scalar.
type MarketState struct {
	Assets     map[string]*Asset `json:"assets"`
	Volatility float64           `json:"volatility"`
}

// Position is the single active leveraged bet. It is created by an open,
// never partially modified, and destroyed on close or liquidation.
// Notional is the leveraged exposure; Margin = Notional / Leverage is the
// collateral escrowed out of the account balance while the position lives.
type Position struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Side       Side             `json:"side"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Notional   decimal.Decimal  `json:"notional"`
	Leverage   int64            `json:"leverage"`
	Margin     decimal.Decimal  `json:"margin"`
	StopPrice  *decimal.Decimal `json:"stop_price,omitempty"`
	OpenedAt   time.Time        `json:"opened_at"`
}

// ClosedTrade is an immutable record written when a position closes.
// History keeps these newest-first with bounded retention.
type ClosedTrade struct {
	ID          string          `json:"id" db:"id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Side        Side            `json:"side" db:"side"`
	Leverage    int64           `json:"leverage" db:"leverage"`
	EntryPrice  decimal.Decimal `json:"entry_price" db:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price" db:"exit_price"`
	Notional    decimal.Decimal `json:"notional" db:"notional"`
	Margin      decimal.Decimal `json:"margin" db:"margin"`
	PnL         decimal.Decimal `json:"pnl" db:"pnl"`
	ROEPercent  decimal.Decimal `json:"roe_percent" db:"roe_percent"`
	Liquidation bool            `json:"liquidation" db:"liquidation"`
	Cause       CloseCause      `json:"cause" db:"cause"`
	OpenedAt    time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at" db:"closed_at"`
}

// Account is the player's cash state. Balance is the single source of
// truth for available margin and never rests below zero; margin reserved
// for the open position is already debited from it.
type Account struct {
	PlayerID string          `json:"player_id" db:"player_id"`
	Name     string          `json:"name" db:"name"`
	Balance  decimal.Decimal `json:"balance" db:"balance"`
	Stars    int64           `json:"stars" db:"stars"` // auxiliary top-up currency
}

// MarketEvent is one scripted market shock.
type MarketEvent struct {
	Title    string  `json:"title"`
	Impact   float64 `json:"impact"`    // signed fractional price move, e.g. -0.18
	VolBoost float64 `json:"vol_boost"` // volatility raised by |impact| * boost
}

// AppliedEvent is a MarketEvent that hit a concrete asset, kept for display.
type AppliedEvent struct {
	Event     MarketEvent `json:"event"`
	Symbol    string      `json:"symbol"`
	AppliedAt time.Time   `json:"applied_at"`
}

// TopUpRequest is a pending external payment. Creating one does not touch
// the ledger; the balance moves only when the payment confirmation calls
// CreditTopUp.
type TopUpRequest struct {
	ID        string          `json:"id"`
	PlayerID  string          `json:"player_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// GameState is the entire serializable state of one game session:
// market + account + optional open position + history + applied events.
// Persisting and restoring it reproduces an identical tick sequence given
// the same random source.
type GameState struct {
	Market   MarketState    `json:"market"`
	Account  Account        `json:"account"`
	Position *Position      `json:"position,omitempty"`
	History  []ClosedTrade  `json:"history"`
	Events   []AppliedEvent `json:"events"`
	SavedAt  time.Time      `json:"saved_at"`
}

// LeaderboardEntry is one row of the shared score table.
type LeaderboardEntry struct {
	PlayerID  string          `json:"player_id" db:"player_id"`
	Name      string          `json:"name" db:"name"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// AssetView is the read-only per-asset slice of a Snapshot.
type AssetView struct {
	Symbol  string            `json:"symbol"`
	Name    string            `json:"name"`
	Price   decimal.Decimal   `json:"price"`
	History []decimal.Decimal `json:"history"`
}

// PositionView decorates the open position with mark-to-market numbers.
type PositionView struct {
	Position         Position        `json:"position"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	ROEPercent       decimal.Decimal `json:"roe_percent"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
}

// Snapshot is the immutable view the simulator publishes for rendering.
// Consumers never mutate engine state through it.
type Snapshot struct {
	Assets     []AssetView     `json:"assets"`
	Volatility float64         `json:"volatility"`
	Balance    decimal.Decimal `json:"balance"`
	Stars      int64           `json:"stars"`
	Position   *PositionView   `json:"position,omitempty"`
	History    []ClosedTrade   `json:"history"`
	Events     []AppliedEvent  `json:"events"`
	TakenAt    time.Time       `json:"taken_at"`
}
