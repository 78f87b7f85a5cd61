package position

import (
	"math"
	"testing"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/regime"
)

func friendlyRegime(long bool) *regime.MarketRegime {
	dir := regime.BiasUp
	if !long {
		dir = regime.BiasDown
	}
	return &regime.MarketRegime{Type: regime.StrongTrend, Direction: dir, Strength: 40, Consistency: 90}
}

func TestTPTrendDetectorExtends(t *testing.T) {
	p := longPosition() // TP 2008, eight points past entry.
	mctx := ctxAt(2006)
	mctx.Regime = friendlyRegime(true)

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected an extension behind a strong trend")
	}
	// Current target distance stretched by 1.5.
	if math.Abs(prop.TakeProfit-2012) > 1e-9 {
		t.Errorf("tp = %v, want 2012", prop.TakeProfit)
	}
	if !p.Extends(prop.TakeProfit) {
		t.Error("proposal must extend")
	}
}

func TestTPTrendGateOnConsistency(t *testing.T) {
	p := longPosition()
	mctx := ctxAt(2006)
	r := friendlyRegime(true)
	r.Consistency = 80 // Strong trend, but not persistent enough.
	mctx.Regime = r

	if _, ok := NewTPManager(nil).Evaluate(p, mctx); ok {
		t.Error("trend extension requires consistency above the gate")
	}
}

func TestTPFurthestWins(t *testing.T) {
	p := longPosition()
	mctx := ctxAt(2006)
	mctx.Regime = friendlyRegime(true) // x1.5 -> 2012
	mctx.Patterns = []PatternHint{{Bullish: true, Continuation: true, Kind: "bullish_flag"}} // x1.2 -> 2009.6

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected a proposal")
	}
	if math.Abs(prop.TakeProfit-2012) > 1e-9 {
		t.Errorf("tp = %v, want the furthest candidate 2012", prop.TakeProfit)
	}
}

func TestTPOnlyWhileProfitable(t *testing.T) {
	p := longPosition()
	mctx := ctxAt(1998) // Under water.
	mctx.Regime = friendlyRegime(true)

	if _, ok := NewTPManager(nil).Evaluate(p, mctx); ok {
		t.Error("no extension should apply while the position is losing")
	}
}

func TestTPCapBlocksExtension(t *testing.T) {
	p := longPosition() // TP already 2008, eight past entry.
	mctx := ctxAt(2006)
	mctx.Spec.TPCap = 3 // Far-rung limit is entry + 6.
	mctx.Regime = friendlyRegime(true)

	if _, ok := NewTPManager(nil).Evaluate(p, mctx); ok {
		t.Error("capped target cannot extend past the existing one")
	}
}

func TestTPCapBoundsExtension(t *testing.T) {
	p := longPosition()
	p.TakeProfit = 2009
	mctx := ctxAt(2006)
	mctx.Spec.TPCap = 5 // Far-rung limit is entry + 10.
	mctx.Regime = friendlyRegime(true)

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected a capped extension")
	}
	if math.Abs(prop.TakeProfit-2010) > 1e-9 {
		t.Errorf("tp = %v, want the cap at 2010", prop.TakeProfit)
	}
}

func TestTPShortSideSymmetry(t *testing.T) {
	p := shortPosition() // TP 1992, eight under entry.
	mctx := ctxAt(1994)
	mctx.Regime = friendlyRegime(false)

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected a proposal")
	}
	if math.Abs(prop.TakeProfit-1988) > 1e-9 {
		t.Errorf("tp = %v, want 1988", prop.TakeProfit)
	}
}

func TestTPAccelerationDetector(t *testing.T) {
	p := longPosition()
	mctx := ctxAt(2006)
	// Closes creep by 0.5 a bar, then sprint by 2: the recent window runs
	// at four times the prior window's velocity.
	mctx.Snapshot = mustSnapshot(t, barSeries(120, func(i int) broker.Bar {
		close := 2000.0
		switch {
		case i >= 115:
			close = 2002.5 + 2*float64(i-114)
		case i >= 110:
			close = 2000 + 0.5*float64(i-109)
		}
		return broker.Bar{Open: close, High: close + 0.5, Low: close - 0.5, Close: close, Volume: 1000}
	}))

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected an extension on accelerating momentum")
	}
	if math.Abs(prop.TakeProfit-2011.2) > 1e-9 {
		t.Errorf("tp = %v, want 2011.2 (distance stretched by 1.4)", prop.TakeProfit)
	}
}

func TestTPBreakoutDetector(t *testing.T) {
	p := longPosition()
	// A swing high at 2010, then a steady climb through it on doubled volume.
	snap := mustSnapshot(t, barSeries(120, func(i int) broker.Bar {
		bar := broker.Bar{Open: 2000, High: 2002, Low: 1998, Close: 2000, Volume: 1000}
		switch {
		case i == 100:
			bar = broker.Bar{Open: 2000, High: 2010, Low: 1998, Close: 2004, Volume: 1000}
		case i > 100 && i <= 105:
			bar = broker.Bar{Open: 2004, High: 2006, Low: 2002, Close: 2004, Volume: 1000}
		case i > 105:
			close := 2004 + (2012-2004)*float64(i-105)/14
			bar = broker.Bar{Open: close, High: close + 2, Low: close - 2, Close: close, Volume: 1000}
		}
		if i >= 115 {
			bar.Volume = 2000
		}
		return bar
	}))
	mctx := ctxAt(2012)
	mctx.Snapshot = snap

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected an extension on a confirmed breakout")
	}
	want := 2010 + snap.ATR*2.0
	if math.Abs(prop.TakeProfit-want) > 1e-9 {
		t.Errorf("tp = %v, want %v (two ATR past the broken level)", prop.TakeProfit, want)
	}
}

func TestTPExpansionDetector(t *testing.T) {
	p := longPosition()
	mctx := ctxAt(2006)
	mctx.Snapshot = mustSnapshot(t, barSeries(120, func(i int) broker.Bar {
		spread := 1.0
		if i >= 110 {
			spread = 5.0
		}
		return broker.Bar{Open: 2000, High: 2000 + spread, Low: 2000 - spread, Close: 2000, Volume: 1000}
	}))
	if mctx.Snapshot.VolatilityRatio <= 1.2 {
		t.Fatalf("fixture volatility ratio %v, want an expansion above 1.2", mctx.Snapshot.VolatilityRatio)
	}

	prop, ok := NewTPManager(nil).Evaluate(p, mctx)
	if !ok {
		t.Fatal("expected an extension on expanding volatility")
	}
	if math.Abs(prop.TakeProfit-2010.4) > 1e-9 {
		t.Errorf("tp = %v, want 2010.4 (distance stretched by 1.3)", prop.TakeProfit)
	}
}

// The target never moves backward across repeated evaluations.
func TestTPMonotonicExtension(t *testing.T) {
	p := longPosition()
	m := NewTPManager(nil)

	prev := p.TakeProfit
	for i := 0; i < 10; i++ {
		mctx := ctxAt(2006 + float64(i))
		p.UpdateHighWater(mctx.Price)
		if i%2 == 0 {
			mctx.Regime = friendlyRegime(true)
		} else {
			mctx.Patterns = []PatternHint{{Bullish: true, Continuation: true, Kind: "ascending_triangle"}}
		}
		if prop, ok := m.Evaluate(p, mctx); ok {
			if prop.TakeProfit <= prev {
				t.Fatalf("step %d: tp %v did not extend from %v", i, prop.TakeProfit, prev)
			}
			p.TakeProfit = prop.TakeProfit
			prev = prop.TakeProfit
		}
	}
	if prev == longPosition().TakeProfit {
		t.Fatal("expected at least one extension over the run")
	}
}
