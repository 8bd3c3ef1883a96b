package catalog_test

import (
	"errors"
	"testing"

	"github.com/leverplay/game-engine/internal/catalog"
)

func TestValidateSymbol(t *testing.T) {
	cases := []struct {
		symbol string
		valid  bool
	}{
		{"COIN-A", true},
		{"COIN-B", true},
		{"BTC", true},
		{"DOGE2", true},
		{"MEME-42", true},
		{"", false},
		{"coin-a", false},
		{"COIN_A", false},
		{"C", false},
		{"-COIN", false},
		{"COIN-", false},
		{"COIN-A-B", false},
		{"TOOLONGSYMBOLNAME", false},
	}
	for _, tc := range cases {
		err := catalog.ValidateSymbol(tc.symbol)
		if tc.valid && err != nil {
			t.Errorf("%q: expected valid, got %v", tc.symbol, err)
		}
		if !tc.valid && !errors.Is(err, catalog.ErrInvalidSymbol) {
			t.Errorf("%q: expected ErrInvalidSymbol, got %v", tc.symbol, err)
		}
	}
}

func TestDefaultAssets(t *testing.T) {
	assets := catalog.DefaultAssets()
	if len(assets) != 3 {
		t.Fatalf("expected 3 starting assets, got %d", len(assets))
	}
	for _, a := range assets {
		if err := catalog.ValidateSymbol(a.Symbol); err != nil {
			t.Errorf("default asset %q fails its own validation: %v", a.Symbol, err)
		}
		if !a.Price.IsPositive() {
			t.Errorf("%s: non-positive starting price %s", a.Symbol, a.Price)
		}
		if a.LiquidityMult <= 0 {
			t.Errorf("%s: non-positive liquidity multiplier %f", a.Symbol, a.LiquidityMult)
		}
	}
}

func TestEventsTableSane(t *testing.T) {
	if len(catalog.Events) == 0 {
		t.Fatal("event table must not be empty")
	}
	for _, ev := range catalog.Events {
		if ev.Title == "" {
			t.Error("event with empty title")
		}
		if ev.Impact <= -1 || ev.Impact == 0 || ev.Impact >= 1 {
			t.Errorf("%s: impact %f outside (-1,0)∪(0,1)", ev.Title, ev.Impact)
		}
		if ev.VolBoost <= 0 {
			t.Errorf("%s: non-positive vol boost %f", ev.Title, ev.VolBoost)
		}
	}
}

// fixedPicker returns scripted values in order, then zeros.
type fixedPicker struct {
	values []int
	i      int
}

func (p *fixedPicker) IntN(n int) int {
	if p.i >= len(p.values) {
		return 0
	}
	v := p.values[p.i] % n
	p.i++
	return v
}

func TestPickRandom_Deterministic(t *testing.T) {
	symbols := []string{"COIN-A", "COIN-B", "COIN-C"}

	ev, sym, err := catalog.PickRandom(&fixedPicker{values: []int{2, 1}}, symbols)
	if err != nil {
		t.Fatalf("PickRandom: %v", err)
	}
	if ev.Title != catalog.Events[2].Title {
		t.Errorf("expected event %q, got %q", catalog.Events[2].Title, ev.Title)
	}
	if sym != "COIN-B" {
		t.Errorf("expected COIN-B, got %s", sym)
	}
}

func TestPickRandom_NoSymbols(t *testing.T) {
	_, _, err := catalog.PickRandom(&fixedPicker{}, nil)
	if !errors.Is(err, catalog.ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}
