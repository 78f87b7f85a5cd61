package risk

import (
	"errors"
	"math"
	"testing"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/regime"
)

func testSpec() broker.SymbolSpec {
	return broker.SymbolSpec{
		Symbol:    "ETHUSDT",
		TickSize:  0.01,
		TickValue: 0.01,
		MinLot:    0.001,
		MaxLot:    1000,
		LotStep:   0.001,
	}
}

func TestSizeBasicFormula(t *testing.T) {
	s := NewSizer(nil)
	account := broker.AccountInfo{Balance: 10000}
	profile := Profile{RiskMultiplier: 1.0, StopATRMult: 2.0, TPLadder: []float64{1.5, 2.5, 4.0}}

	// ATR 1.0 -> stop distance 2.0 -> 200 ticks. Confidence 0.8 -> mult 1.0.
	// risk = 10000 * 1% * 1.0 = 100. qty = 100 / (200 * 0.01) = 50.
	plan, err := s.Size(account, testSpec(), broker.Buy, 2000, 1.0, 0.8, profile)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if math.Abs(plan.Quantity-50) > 1e-9 {
		t.Errorf("quantity = %v, want 50", plan.Quantity)
	}
	if plan.StopLoss != 1998 {
		t.Errorf("stop = %v, want 1998", plan.StopLoss)
	}
	if math.Abs(plan.RiskAmount-100) > 1e-6 {
		t.Errorf("risk amount = %v, want 100", plan.RiskAmount)
	}
}

func TestSizeSellSideLevels(t *testing.T) {
	s := NewSizer(nil)
	profile := Profile{RiskMultiplier: 1.0, StopATRMult: 2.0, TPLadder: []float64{1.5}}

	plan, err := s.Size(broker.AccountInfo{Balance: 10000}, testSpec(), broker.Sell, 2000, 1.0, 0.8, profile)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if plan.StopLoss != 2002 {
		t.Errorf("sell stop = %v, want 2002", plan.StopLoss)
	}
	if plan.TakeProfits[0] != 1997 {
		t.Errorf("sell TP1 = %v, want 1997", plan.TakeProfits[0])
	}
}

func TestSizeTPCapScalesByRung(t *testing.T) {
	s := NewSizer(nil)
	spec := testSpec()
	spec.TPCap = 2.0
	profile := Profile{RiskMultiplier: 1.0, StopATRMult: 2.0, TPLadder: []float64{1.5, 2.5, 4.0}}

	plan, err := s.Size(broker.AccountInfo{Balance: 10000}, spec, broker.Buy, 2000, 1.0, 0.8, profile)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	// Stop distance 2.0. Uncapped rungs would be 3, 5, 8 away; the cap allows
	// 2 for rung 1 and 4 for every later rung.
	want := []float64{2002, 2004, 2004}
	for i, w := range want {
		if math.Abs(plan.TakeProfits[i]-w) > 1e-9 {
			t.Errorf("TP%d = %v, want %v", i+1, plan.TakeProfits[i], w)
		}
	}
}

func TestSizeFixedStopDistanceOverridesATR(t *testing.T) {
	s := NewSizer(nil)
	spec := testSpec()
	spec.FixedStopDistance = 5.0
	profile := Profile{RiskMultiplier: 1.0, StopATRMult: 2.0, TPLadder: []float64{1.0}}

	plan, err := s.Size(broker.AccountInfo{Balance: 10000}, spec, broker.Buy, 2000, 1.0, 0.8, profile)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if plan.StopDistance != 5.0 {
		t.Errorf("stop distance = %v, want fixed 5.0", plan.StopDistance)
	}
	if plan.StopLoss != 1995 {
		t.Errorf("stop = %v, want 1995", plan.StopLoss)
	}
}

func TestSizeInfeasible(t *testing.T) {
	s := NewSizer(nil)
	profile := Profile{RiskMultiplier: 1.0, StopATRMult: 2.0, TPLadder: []float64{1.0}}

	cases := []struct {
		name    string
		account broker.AccountInfo
		spec    broker.SymbolSpec
		atr     float64
	}{
		{"zero atr", broker.AccountInfo{Balance: 10000}, testSpec(), 0},
		{"zero balance", broker.AccountInfo{Balance: 0}, testSpec(), 1.0},
		{"below min lot", broker.AccountInfo{Balance: 1}, func() broker.SymbolSpec {
			sp := testSpec()
			sp.MinLot = 10
			return sp
		}(), 1.0},
	}
	for _, tc := range cases {
		_, err := s.Size(tc.account, tc.spec, broker.Buy, 2000, tc.atr, 0.8, profile)
		if !errors.Is(err, ErrSizingInfeasible) {
			t.Errorf("%s: err = %v, want ErrSizingInfeasible", tc.name, err)
		}
	}
}

func TestSizeLotStepFloor(t *testing.T) {
	s := NewSizer(nil)
	spec := testSpec()
	spec.LotStep = 1.0
	profile := Profile{RiskMultiplier: 1.0, StopATRMult: 2.0, TPLadder: []float64{1.0}}

	// Raw qty would be 37.5 at this balance; the lot step floors it to 37.
	plan, err := s.Size(broker.AccountInfo{Balance: 7500}, spec, broker.Buy, 2000, 1.0, 0.8, profile)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if plan.Quantity != 37 {
		t.Errorf("quantity = %v, want 37 (floored)", plan.Quantity)
	}
}

func TestConfidenceMultiplierClamp(t *testing.T) {
	s := NewSizer(nil)
	if m := s.confidenceMultiplier(0.1); m != 0.5 {
		t.Errorf("low confidence mult = %v, want floor 0.5", m)
	}
	if m := s.confidenceMultiplier(1.0); m != 1.25 {
		t.Errorf("full confidence mult = %v, want ceiling 1.25", m)
	}
	if m := s.confidenceMultiplier(0.8); m != 1.0 {
		t.Errorf("mid confidence mult = %v, want 1.0", m)
	}
}

func TestProfileTableValidate(t *testing.T) {
	table := DefaultProfileTable()
	validated, err := table.Validate()
	if err != nil {
		t.Fatalf("default table should validate: %v", err)
	}
	for rt, p := range validated {
		if p.RiskMultiplier < MinRiskMultiplier || p.RiskMultiplier > MaxRiskMultiplier {
			t.Errorf("%s multiplier %v outside hard bounds", rt, p.RiskMultiplier)
		}
	}

	// Out-of-bounds multipliers clamp instead of erroring.
	hot := DefaultProfileTable()
	p := hot[regime.StrongTrend]
	p.RiskMultiplier = 10
	hot[regime.StrongTrend] = p
	validated, err = hot.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := validated[regime.StrongTrend].RiskMultiplier; got != MaxRiskMultiplier {
		t.Errorf("clamped multiplier = %v, want %v", got, MaxRiskMultiplier)
	}

	// A missing regime is a config error.
	partial := DefaultProfileTable()
	delete(partial, regime.Volatile)
	if _, err := partial.Validate(); err == nil {
		t.Error("expected error for missing regime entry")
	}

	// Non-increasing ladder is a config error.
	bad := DefaultProfileTable()
	p = bad[regime.Ranging]
	p.TPLadder = []float64{2.0, 1.5}
	bad[regime.Ranging] = p
	if _, err := bad.Validate(); err == nil {
		t.Error("expected error for non-increasing ladder")
	}
}

func TestProfileForInsufficientRegime(t *testing.T) {
	table := DefaultProfileTable()
	got := table.For(&regime.MarketRegime{Type: regime.StrongTrend, Insufficient: true})
	if got.RiskMultiplier != table[regime.Ranging].RiskMultiplier {
		t.Error("insufficient regime should fall back to ranging profile")
	}
}
