// Package catalog holds the static tables of the game: the tradable
// assets with their starting prices and the scripted market shocks, plus
// symbol validation for inbound commands.
package catalog

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/model"
)

var (
	ErrInvalidSymbol = errors.New("catalog: invalid asset symbol")
	ErrEmptyCatalog  = errors.New("catalog: no entries to pick from")
)

// symbolRegex matches the COIN-{tag} symbols the game trades.
// Example: COIN-A
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,11}(-[A-Z0-9]{1,8})?$`)

// ValidateSymbol checks an asset symbol's shape. Whether the symbol is
// actually part of the market is the engine's call.
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// DefaultAssets returns the three starting coins of the game.
func DefaultAssets() []model.Asset {
	return []model.Asset{
		{Symbol: "COIN-A", Name: "Coin A", Price: decimal.NewFromFloat(0.50), LiquidityMult: 1.0},
		{Symbol: "COIN-B", Name: "Coin B", Price: decimal.NewFromFloat(1.20), LiquidityMult: 0.8},
		{Symbol: "COIN-C", Name: "Coin C", Price: decimal.NewFromFloat(0.08), LiquidityMult: 2.5},
	}
}

// Events is the fixed table of scripted market shocks. Impact is the
// signed fractional price move; VolBoost scales the volatility jump.
var Events = []model.MarketEvent{
	{Title: "Exchange hack rumors", Impact: -0.18, VolBoost: 2.0},
	{Title: "Whale accumulation spotted", Impact: 0.12, VolBoost: 1.5},
	{Title: "Regulatory crackdown", Impact: -0.25, VolBoost: 2.5},
	{Title: "Mainnet launch hype", Impact: 0.20, VolBoost: 1.8},
	{Title: "Stablecoin depeg panic", Impact: -0.12, VolBoost: 2.2},
	{Title: "Celebrity endorsement", Impact: 0.08, VolBoost: 1.2},
	{Title: "Flash crash", Impact: -0.30, VolBoost: 3.0},
	{Title: "Short squeeze", Impact: 0.25, VolBoost: 2.0},
}

// Picker supplies the randomness for event selection. *rand.Rand from
// math/rand/v2 satisfies it.
type Picker interface {
	IntN(n int) int
}

// PickRandom returns a uniformly chosen event together with a uniformly
// chosen target symbol. Stateless; the caller supplies the source so tests
// stay deterministic.
func PickRandom(src Picker, symbols []string) (model.MarketEvent, string, error) {
	if len(Events) == 0 || len(symbols) == 0 {
		return model.MarketEvent{}, "", ErrEmptyCatalog
	}
	ev := Events[src.IntN(len(Events))]
	sym := symbols[src.IntN(len(symbols))]
	return ev, sym, nil
}
