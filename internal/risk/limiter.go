// Package risk enforces per-trade limits on leverage and exposure so a
// single open cannot blow past what the game considers sane.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrLeverageLimitExceeded is returned when requested leverage is
	// above the configured maximum.
	ErrLeverageLimitExceeded = errors.New("risk: leverage limit exceeded")

	// ErrNotionalLimitExceeded is returned when a single trade's notional
	// exposure is above the configured maximum.
	ErrNotionalLimitExceeded = errors.New("risk: notional limit exceeded")

	// ErrMarginFractionExceeded is returned when one trade would escrow
	// more than the allowed fraction of the current balance.
	ErrMarginFractionExceeded = errors.New("risk: margin fraction limit exceeded")
)

// TradeLimiter validates trade parameters against static limits.
// It is pure: all state (balance) is passed in by the caller.
type TradeLimiter struct {
	// MaxLeverage is the highest leverage a position may use.
	MaxLeverage int64

	// MaxNotional is the largest leveraged exposure one trade may take.
	MaxNotional decimal.Decimal

	// MaxMarginFraction is the largest share of the balance a single
	// open may escrow as margin, in (0, 1]. Zero disables the check.
	MaxMarginFraction decimal.Decimal
}

// NewTradeLimiter creates a limiter with the given caps.
func NewTradeLimiter(maxLeverage int64, maxNotional, maxMarginFraction decimal.Decimal) *TradeLimiter {
	if maxLeverage < 1 {
		maxLeverage = 1
	}
	return &TradeLimiter{
		MaxLeverage:       maxLeverage,
		MaxNotional:       maxNotional,
		MaxMarginFraction: maxMarginFraction,
	}
}

// CheckTrade validates an open request. Margin is the collateral the trade
// would escrow; balance is the player's current free balance.
// Returns nil if the trade is within limits, or an error naming the
// violated limit.
func (l *TradeLimiter) CheckTrade(notional, margin, balance decimal.Decimal, leverage int64) error {
	if leverage > l.MaxLeverage {
		return ErrLeverageLimitExceeded
	}
	if l.MaxNotional.IsPositive() && notional.GreaterThan(l.MaxNotional) {
		return ErrNotionalLimitExceeded
	}
	if l.MaxMarginFraction.IsPositive() && balance.IsPositive() {
		if margin.Div(balance).GreaterThan(l.MaxMarginFraction) {
			return ErrMarginFractionExceeded
		}
	}
	return nil
}
