// Package engine implements the synthetic market price engine: a seeded
// random walk per asset with demand-driven drift, trade impact, scripted
// event shocks, and mean-reverting volatility.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The stochastic math runs in float64 (Gaussian draws, tanh drift) with
// results immediately converted back to decimal.
//
// The engine owns no timers and no global randomness: the caller controls
// tick cadence and supplies the random source, so a seeded source makes
// every tick sequence reproducible.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/model"
)

var (
	// ErrUnknownAsset is returned when a symbol is not part of the market.
	ErrUnknownAsset = errors.New("engine: unknown asset")

	// ErrNoAssets is returned when an engine is constructed or restored
	// with an empty market.
	ErrNoAssets = errors.New("engine: market must contain at least one asset")
)

// PriceScale is the number of decimal places prices are rounded to.
var PriceScale int32 = 8

// Source supplies the randomness for price evolution. *rand.Rand from
// math/rand/v2 satisfies it; tests inject fixed-seed sources.
type Source interface {
	NormFloat64() float64
	Float64() float64
}

// Direction is the side of a market impact.
type Direction int

const (
	Buy Direction = iota
	Sell
)

// Config holds the tuning constants of the price walk.
type Config struct {
	MinVolatility  float64 // hard floor for the volatility scalar
	MaxVolatility  float64 // hard cap for the volatility scalar
	BaseVolatility float64 // level volatility decays back toward
	VolDecay       float64 // per-tick pull toward BaseVolatility, in (0,1)
	DemandDecay    float64 // per-tick geometric decay of demand, in (0,1)
	DemandNorm     float64 // K in tanh(demand/K); bounds demand drift
	DriftScale     float64 // max per-tick drift contributed by demand
	Jitter         float64 // amplitude of the uniform jitter term
	ImpactCoeff    float64 // fractional price move per unit notional
	HistoryLimit   int     // bounded price history length, FIFO eviction
	PriceFloor     float64 // below this the price is halved, not zeroed
}

// DefaultConfig returns the tuning used by the production game.
func DefaultConfig() Config {
	return Config{
		MinVolatility:  0.0003,
		MaxVolatility:  0.08,
		BaseVolatility: 0.005,
		VolDecay:       0.95,
		DemandDecay:    0.85,
		DemandNorm:     5000,
		DriftScale:     0.002,
		Jitter:         0.001,
		ImpactCoeff:    0.0000005,
		HistoryLimit:   80,
		PriceFloor:     0.000001,
	}
}

// Engine owns the MarketState exclusively. It is not safe for concurrent
// use; the simulator serializes all access.
type Engine struct {
	cfg     Config
	rnd     Source
	state   model.MarketState
	symbols []string // stable iteration order for deterministic ticks
}

// New creates an engine over the given assets. Each asset's history is
// seeded with its starting price. Volatility starts at the baseline.
func New(cfg Config, rnd Source, assets []model.Asset) (*Engine, error) {
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}

	state := model.MarketState{
		Assets:     make(map[string]*model.Asset, len(assets)),
		Volatility: cfg.BaseVolatility,
	}
	for _, a := range assets {
		if a.Price.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("engine: asset %s has non-positive price", a.Symbol)
		}
		cp := a
		if cp.LiquidityMult <= 0 {
			cp.LiquidityMult = 1
		}
		if len(cp.History) == 0 {
			cp.History = []decimal.Decimal{cp.Price}
		}
		state.Assets[cp.Symbol] = &cp
	}

	e := &Engine{cfg: cfg, rnd: rnd, state: state}
	e.reindex()
	return e, nil
}

// reindex rebuilds the sorted symbol list. Map iteration order is not
// deterministic; ticks must be.
func (e *Engine) reindex() {
	e.symbols = e.symbols[:0]
	for sym := range e.state.Assets {
		e.symbols = append(e.symbols, sym)
	}
	sort.Strings(e.symbols)
}

// Tick advances every asset's price by one simulation step:
//
//	shock = N(0,1)*vol + uniform jitter + tanh(demand/K)*driftScale
//	price *= (1 + shock)
//
// A price that would fall to or below the floor is halved instead of
// collapsing, so no asset ever reaches zero. Demand decays geometrically
// and volatility reverts toward its baseline.
func (e *Engine) Tick() {
	vol := e.state.Volatility

	for _, sym := range e.symbols {
		a := e.state.Assets[sym]

		gaussian := e.rnd.NormFloat64() * vol
		jitter := (e.rnd.Float64() - 0.5) * 2 * e.cfg.Jitter
		drift := math.Tanh(a.Demand/e.cfg.DemandNorm) * e.cfg.DriftScale

		e.movePrice(a, 1+gaussian+jitter+drift)
		e.appendHistory(a)

		a.Demand *= e.cfg.DemandDecay
	}

	e.state.Volatility = e.clampVol(
		e.cfg.BaseVolatility + (vol-e.cfg.BaseVolatility)*e.cfg.VolDecay,
	)
}

// ApplyImpact models the price-moving effect of a trade: the price moves
// by impactCoeff * notional * liquidityMult in the trade's direction, and
// the signed notional is added to the asset's demand accumulator.
// Zero or negative notional is a no-op.
func (e *Engine) ApplyImpact(symbol string, notional decimal.Decimal, dir Direction) error {
	a, ok := e.state.Assets[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	size := notional.InexactFloat64()
	if size <= 0 {
		return nil
	}

	move := e.cfg.ImpactCoeff * size * a.LiquidityMult
	if dir == Sell {
		move = -move
	}
	e.movePrice(a, 1+move)

	if dir == Sell {
		a.Demand -= size
	} else {
		a.Demand += size
	}
	return nil
}

// ApplyEvent applies a scripted shock to one asset: the price moves by the
// event's impact and volatility jumps by |impact| * volBoost, capped at the
// configured maximum. The elevated volatility decays back toward baseline
// on subsequent ticks.
func (e *Engine) ApplyEvent(symbol string, ev model.MarketEvent) error {
	a, ok := e.state.Assets[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}

	e.movePrice(a, 1+ev.Impact)
	e.state.Volatility = e.clampVol(
		e.state.Volatility + math.Abs(ev.Impact)*ev.VolBoost,
	)
	return nil
}

// PriceOf returns the current price of one asset. Pure read.
func (e *Engine) PriceOf(symbol string) (decimal.Decimal, error) {
	a, ok := e.state.Assets[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return a.Price, nil
}

// Symbols returns all asset symbols in stable order.
func (e *Engine) Symbols() []string {
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// Volatility returns the current volatility scalar.
func (e *Engine) Volatility() float64 {
	return e.state.Volatility
}

// State returns a deep copy of the market state for snapshots and
// persistence.
func (e *Engine) State() model.MarketState {
	out := model.MarketState{
		Assets:     make(map[string]*model.Asset, len(e.state.Assets)),
		Volatility: e.state.Volatility,
	}
	for sym, a := range e.state.Assets {
		cp := *a
		cp.History = append([]decimal.Decimal(nil), a.History...)
		out.Assets[sym] = &cp
	}
	return out
}

// Restore replaces the market state with a previously serialized one.
// Volatility is re-clamped in case the configuration changed between runs.
func (e *Engine) Restore(state model.MarketState) error {
	if len(state.Assets) == 0 {
		return ErrNoAssets
	}
	assets := make(map[string]*model.Asset, len(state.Assets))
	for sym, a := range state.Assets {
		if a.Price.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("engine: asset %s has non-positive price", sym)
		}
		cp := *a
		if cp.LiquidityMult <= 0 {
			cp.LiquidityMult = 1
		}
		cp.History = append([]decimal.Decimal(nil), a.History...)
		assets[sym] = &cp
	}

	e.state = model.MarketState{
		Assets:     assets,
		Volatility: e.clampVol(state.Volatility),
	}
	e.reindex()
	return nil
}

// movePrice applies a multiplicative factor in float64 and stores the
// rounded decimal result. If the new price would hit the floor, the
// previous price is halved instead — the market stays alive.
func (e *Engine) movePrice(a *model.Asset, factor float64) {
	prev := a.Price.InexactFloat64()
	next := prev * factor
	if next <= e.cfg.PriceFloor {
		next = prev / 2
	}
	rounded := decimal.NewFromFloat(next).Round(PriceScale)
	if rounded.LessThanOrEqual(decimal.Zero) {
		// Sub-scale price: keep full precision rather than rounding to zero.
		rounded = decimal.NewFromFloat(next)
	}
	a.Price = rounded
}

func (e *Engine) appendHistory(a *model.Asset) {
	a.History = append(a.History, a.Price)
	if n := len(a.History); n > e.cfg.HistoryLimit {
		a.History = a.History[n-e.cfg.HistoryLimit:]
	}
}

func (e *Engine) clampVol(v float64) float64 {
	if v < e.cfg.MinVolatility {
		return e.cfg.MinVolatility
	}
	if v > e.cfg.MaxVolatility {
		return e.cfg.MaxVolatility
	}
	return v
}
