package regime

import (
	"testing"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
)

func trendingBars(count int, start, step float64) []broker.Bar {
	bars := make([]broker.Bar, count)
	price := start
	open := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		next := price + step
		bars[i] = broker.Bar{
			OpenTime: open.Add(time.Duration(i) * time.Minute),
			Open:     price,
			High:     next + 0.2,
			Low:      price - 0.2,
			Close:    next,
			Volume:   1000,
		}
		price = next
	}
	return bars
}

func TestClassifyInsufficientData(t *testing.T) {
	cfg := market.DefaultIndicatorConfig()
	snap := market.NewSnapshot("ETHUSDT", "15m", trendingBars(10, 2000, 1), cfg)

	r := NewClassifier(nil).Classify(snap)
	if !r.Insufficient {
		t.Fatal("expected insufficient regime")
	}
	if r.Type != Ranging {
		t.Errorf("insufficient regime type = %s, want ranging", r.Type)
	}
	if r.Strength != 0 || r.Consistency != 0 {
		t.Errorf("insufficient regime should be neutral, got strength=%v consistency=%v", r.Strength, r.Consistency)
	}
	if r.VolatilityRatio != 1.0 {
		t.Errorf("insufficient regime volatility = %v, want 1.0", r.VolatilityRatio)
	}
}

func TestClassifySteadyUptrend(t *testing.T) {
	cfg := market.DefaultIndicatorConfig()
	bars := trendingBars(cfg.WarmupBars()+20, 2000, 2)
	snap := market.NewSnapshot("ETHUSDT", "15m", bars, cfg)

	r := NewClassifier(nil).Classify(snap)
	if r.Insufficient {
		t.Fatal("unexpected insufficient regime")
	}
	if r.Type != StrongTrend {
		t.Errorf("type = %s, want strong_trend (strength=%.1f consistency=%.1f)", r.Type, r.Strength, r.Consistency)
	}
	if r.Direction != BiasUp {
		t.Errorf("direction = %s, want up", r.Direction)
	}
	if r.Posture != PostureAboveMAs {
		t.Errorf("posture = %s, want above_mas", r.Posture)
	}
	if r.Consistency != 100 {
		t.Errorf("consistency = %v, want 100 for monotone closes", r.Consistency)
	}
}

func TestClassifyDowntrendBias(t *testing.T) {
	cfg := market.DefaultIndicatorConfig()
	bars := trendingBars(cfg.WarmupBars()+20, 3000, -2)
	snap := market.NewSnapshot("ETHUSDT", "15m", bars, cfg)

	r := NewClassifier(nil).Classify(snap)
	if r.Direction != BiasDown {
		t.Errorf("direction = %s, want down", r.Direction)
	}
	if r.Posture != PostureBelowMAs {
		t.Errorf("posture = %s, want below_mas", r.Posture)
	}
}

func TestLabelOrdering(t *testing.T) {
	c := NewClassifier(nil)
	cases := []struct {
		name                           string
		strength, consistency, volRatio float64
		want                           Type
	}{
		{"strong trend", 35, 85, 1.0, StrongTrend},
		{"weak trend", 25, 55, 1.0, WeakTrend},
		{"volatile", 10, 40, 1.8, Volatile},
		{"ranging", 10, 40, 1.0, Ranging},
		// Trend checks outrank the volatility check.
		{"strong trend with high vol", 35, 85, 2.0, StrongTrend},
		{"weak trend with high vol", 25, 55, 2.0, WeakTrend},
		// Thresholds are strict inequalities.
		{"at strong boundary", 30, 70, 1.0, Ranging},
		{"at weak boundary", 20, 50, 1.0, Ranging},
		{"at volatile boundary", 10, 40, 1.5, Ranging},
		{"strong strength, weak consistency", 35, 60, 1.0, WeakTrend},
	}
	for _, tc := range cases {
		if got := c.label(tc.strength, tc.consistency, tc.volRatio); got != tc.want {
			t.Errorf("%s: label(%v, %v, %v) = %s, want %s", tc.name, tc.strength, tc.consistency, tc.volRatio, got, tc.want)
		}
	}
}
