package patterns

import (
	"testing"
	"time"

	"adaptive-trading-bot/internal/broker"
)

func bar(open, high, low, close float64) broker.Bar {
	return broker.Bar{
		OpenTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   1000,
	}
}

func hasKind(found []Pattern, kind Kind) bool {
	for _, p := range found {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

func TestDetectMorningStar(t *testing.T) {
	bars := []broker.Bar{
		bar(100, 100.5, 89.5, 90),   // Long bearish
		bar(90, 90.8, 89, 89.8),     // Small indecision body
		bar(90, 98.5, 89.8, 98),     // Long bullish closing above c1 midpoint
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	if !hasKind(found, MorningStar) {
		t.Errorf("morning star not detected in %v", found)
	}
	for _, p := range found {
		if p.Kind == MorningStar && p.Bias != Bullish {
			t.Errorf("morning star bias = %s, want bullish", p.Bias)
		}
	}
}

func TestDetectEveningStar(t *testing.T) {
	bars := []broker.Bar{
		bar(90, 100.5, 89.5, 100),  // Long bullish
		bar(100, 101, 99.2, 100.2), // Small body
		bar(100, 100.2, 91.5, 92),  // Long bearish closing below c1 midpoint
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	if !hasKind(found, EveningStar) {
		t.Errorf("evening star not detected in %v", found)
	}
}

func TestDetectHammerNeedsPriorDownBar(t *testing.T) {
	hammer := bar(100, 100.3, 95, 100.9)
	hammer.High = 101 // Tight upper wick, long lower wick

	withDown := []broker.Bar{bar(104, 104.5, 99.5, 100), hammer}
	if found := NewDetector(nil).Detect("ETHUSDT", "15m", withDown); !hasKind(found, Hammer) {
		t.Error("hammer not detected after a down bar")
	}

	withUp := []broker.Bar{bar(96, 100.5, 95.5, 100), hammer}
	if found := NewDetector(nil).Detect("ETHUSDT", "15m", withUp); hasKind(found, Hammer) {
		t.Error("hammer should require a prior down bar")
	}
}

func TestDetectEngulfing(t *testing.T) {
	bars := []broker.Bar{
		bar(100, 100.5, 97.5, 98), // Bearish
		bar(97.5, 101.5, 97, 101), // Bullish body wrapping the previous body
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	if !hasKind(found, BullishEngulfing) {
		t.Errorf("bullish engulfing not detected in %v", found)
	}
}

func TestDetectBullishFlag(t *testing.T) {
	var bars []broker.Bar
	price := 100.0
	// Pole: ten strong up bars.
	for i := 0; i < 10; i++ {
		bars = append(bars, bar(price, price+2.2, price-0.2, price+2))
		price += 2
	}
	// Flag: five bars drifting slightly down.
	for i := 0; i < 5; i++ {
		bars = append(bars, bar(price, price+0.3, price-0.6, price-0.4))
		price -= 0.4
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	if !hasKind(found, BullishFlag) {
		t.Errorf("bullish flag not detected in %v", found)
	}
}

func TestDetectBearishFlag(t *testing.T) {
	var bars []broker.Bar
	price := 200.0
	for i := 0; i < 10; i++ {
		bars = append(bars, bar(price, price+0.2, price-2.2, price-2))
		price -= 2
	}
	for i := 0; i < 5; i++ {
		bars = append(bars, bar(price, price+0.6, price-0.3, price+0.4))
		price += 0.4
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	if !hasKind(found, BearishFlag) {
		t.Errorf("bearish flag not detected in %v", found)
	}
}

func TestDetectAscendingTriangle(t *testing.T) {
	var bars []broker.Bar
	low := 95.0
	for i := 0; i < 10; i++ {
		// Highs pinned near 100, lows stepping up.
		bars = append(bars, bar(low, 100, low-0.1, 99))
		low += 0.4
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	if !hasKind(found, AscendingTriangle) {
		t.Errorf("ascending triangle not detected in %v", found)
	}
}

func TestDetectNothingOnQuietBars(t *testing.T) {
	var bars []broker.Bar
	for i := 0; i < 20; i++ {
		// Alternating small bars with no formation geometry.
		if i%2 == 0 {
			bars = append(bars, bar(100, 100.6, 99.7, 100.3))
		} else {
			bars = append(bars, bar(100.3, 100.7, 99.8, 100))
		}
	}
	found := NewDetector(nil).Detect("ETHUSDT", "15m", bars)
	for _, p := range found {
		if p.Continuation() {
			t.Errorf("unexpected continuation pattern %s on flat bars", p.Kind)
		}
	}
}

func TestDetectEmptyBars(t *testing.T) {
	if found := NewDetector(nil).Detect("ETHUSDT", "15m", nil); found != nil {
		t.Errorf("expected nil for empty series, got %v", found)
	}
}
