package ml

import (
	"testing"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
)

func snapshotFromTrend(n int, start, step float64) *market.Snapshot {
	bars := make([]broker.Bar, n)
	t := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range bars {
		bars[i] = broker.Bar{
			OpenTime: t.Add(time.Duration(i) * time.Minute),
			Open:     price,
			High:     price + step + 0.2,
			Low:      price - 0.2,
			Close:    price + step,
			Volume:   1000,
		}
		price += step
	}
	return market.NewSnapshot("BTCUSDT", "15m", bars, nil)
}

func TestPredictNilBelowMinBars(t *testing.T) {
	p := NewPredictor(nil)
	if got := p.Predict(snapshotFromTrend(10, 100, 1)); got != nil {
		t.Fatalf("expected nil for 10 bars, got %+v", got)
	}
	if got := p.Predict(nil); got != nil {
		t.Fatalf("expected nil for nil snapshot, got %+v", got)
	}
}

func TestPredictUptrendLeansUp(t *testing.T) {
	p := NewPredictor(nil)
	pred := p.Predict(snapshotFromTrend(100, 100, 1))
	if pred == nil {
		t.Fatal("nil prediction with 100 bars")
	}
	// Momentum and trend heads pull up; mean reversion fades the overbought
	// RSI. The ensemble should still not call a steady uptrend "down".
	if pred.Direction == DirectionDown {
		t.Errorf("direction = %s on steady uptrend", pred.Direction)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		t.Errorf("confidence %v out of range", pred.Confidence)
	}
	if len(pred.Components) != 4 {
		t.Errorf("components = %v, want 4 heads", pred.Components)
	}
}

func TestPredictedMoveIsCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPredictedMove = 0.2
	p := NewPredictor(cfg)
	pred := p.Predict(snapshotFromTrend(100, 100, 5))
	if pred == nil {
		t.Fatal("nil prediction")
	}
	if pred.PredictedMove > 0.2 || pred.PredictedMove < -0.2 {
		t.Errorf("move %v exceeds cap 0.2", pred.PredictedMove)
	}
}

func TestLatestCachesPerSymbol(t *testing.T) {
	p := NewPredictor(nil)
	if p.Latest("BTCUSDT") != nil {
		t.Fatal("cache not empty at start")
	}
	pred := p.Predict(snapshotFromTrend(100, 100, 1))
	if got := p.Latest("BTCUSDT"); got != pred {
		t.Error("Latest did not return the cached prediction")
	}
	if p.Latest("ETHUSDT") != nil {
		t.Error("cache leaked across symbols")
	}
}

func TestStatsAccuracy(t *testing.T) {
	s := &Stats{}
	if s.Accuracy() != 0 {
		t.Error("accuracy nonzero before outcomes")
	}
	s.Record(true)
	s.Record(true)
	s.Record(false)
	if got := s.Accuracy(); got < 0.66 || got > 0.67 {
		t.Errorf("accuracy = %v, want 2/3", got)
	}
}

func TestAgreementSplitEnsembleIsLowConfidence(t *testing.T) {
	p := NewPredictor(nil)
	split := p.agreement(map[string]float64{"a": 1, "b": -1, "c": 0.5, "d": -0.5})
	unanimous := p.agreement(map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1})
	if split >= unanimous {
		t.Errorf("split %v >= unanimous %v", split, unanimous)
	}
	if p.agreement(map[string]float64{}) != 0 {
		t.Error("empty ensemble not zero confidence")
	}
}
