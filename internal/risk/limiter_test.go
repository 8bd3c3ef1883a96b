package risk_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/risk"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckTrade_WithinLimits(t *testing.T) {
	l := risk.NewTradeLimiter(100, d(1_000_000), d(0.5))

	if err := l.CheckTrade(d(500), d(50), d(1000), 10); err != nil {
		t.Fatalf("expected trade within limits, got %v", err)
	}
}

func TestCheckTrade_LeverageLimit(t *testing.T) {
	l := risk.NewTradeLimiter(100, d(1_000_000), d(0.5))

	if err := l.CheckTrade(d(500), d(5), d(1000), 101); !errors.Is(err, risk.ErrLeverageLimitExceeded) {
		t.Fatalf("expected ErrLeverageLimitExceeded, got %v", err)
	}
	// Exactly at the cap is allowed.
	if err := l.CheckTrade(d(500), d(5), d(1000), 100); err != nil {
		t.Fatalf("leverage at cap should pass, got %v", err)
	}
}

func TestCheckTrade_NotionalLimit(t *testing.T) {
	l := risk.NewTradeLimiter(100, d(1000), d(1))

	if err := l.CheckTrade(d(1001), d(100), d(5000), 10); !errors.Is(err, risk.ErrNotionalLimitExceeded) {
		t.Fatalf("expected ErrNotionalLimitExceeded, got %v", err)
	}
	if err := l.CheckTrade(d(1000), d(100), d(5000), 10); err != nil {
		t.Fatalf("notional at cap should pass, got %v", err)
	}
}

func TestCheckTrade_MarginFraction(t *testing.T) {
	l := risk.NewTradeLimiter(100, d(1_000_000), d(0.25))

	// 300 of 1000 is 30% > 25%.
	if err := l.CheckTrade(d(600), d(300), d(1000), 2); !errors.Is(err, risk.ErrMarginFractionExceeded) {
		t.Fatalf("expected ErrMarginFractionExceeded, got %v", err)
	}
	// Exactly 25% passes.
	if err := l.CheckTrade(d(500), d(250), d(1000), 2); err != nil {
		t.Fatalf("margin at fraction cap should pass, got %v", err)
	}
}

func TestCheckTrade_DisabledChecks(t *testing.T) {
	// Zero notional cap and zero margin fraction disable those checks.
	l := risk.NewTradeLimiter(100, decimal.Zero, decimal.Zero)

	if err := l.CheckTrade(d(10_000_000), d(10_000_000), d(1), 1); err != nil {
		t.Fatalf("disabled checks should pass everything, got %v", err)
	}
}

func TestNewTradeLimiter_LeverageFloor(t *testing.T) {
	l := risk.NewTradeLimiter(0, decimal.Zero, decimal.Zero)
	if l.MaxLeverage != 1 {
		t.Fatalf("expected leverage floor 1, got %d", l.MaxLeverage)
	}
}
