package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
)

func barsWithSlope(count int, start, step float64) []broker.Bar {
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
			Volume:   1000 + float64(i)*10,
		}
		price = next
	}
	return bars
}

func TestTechnicalEvaluateUptrend(t *testing.T) {
	cfg := market.DefaultIndicatorConfig()
	snap := market.NewSnapshot("ETHUSDT", "15m", barsWithSlope(cfg.WarmupBars()+30, 2000, 1.5), cfg)

	src := NewTechnicalSource(nil)
	sig, err := src.Evaluate(context.Background(), &Input{Snapshot: snap})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Direction != Buy {
		t.Errorf("direction = %s, want buy in a steady uptrend", sig.Direction)
	}
	if sig.Confidence <= 0 {
		t.Errorf("confidence = %v, want positive", sig.Confidence)
	}
}

func TestTechnicalEvaluateDowntrend(t *testing.T) {
	cfg := market.DefaultIndicatorConfig()
	snap := market.NewSnapshot("ETHUSDT", "15m", barsWithSlope(cfg.WarmupBars()+30, 4000, -1.5), cfg)

	src := NewTechnicalSource(nil)
	sig, err := src.Evaluate(context.Background(), &Input{Snapshot: snap})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Direction != Sell {
		t.Errorf("direction = %s, want sell in a steady downtrend", sig.Direction)
	}
}

func TestTechnicalInsufficientHistory(t *testing.T) {
	cfg := market.DefaultIndicatorConfig()
	snap := market.NewSnapshot("ETHUSDT", "15m", barsWithSlope(10, 2000, 1), cfg)

	src := NewTechnicalSource(nil)
	_, err := src.Evaluate(context.Background(), &Input{Snapshot: snap})
	if !errors.Is(err, broker.ErrInsufficientHistory) {
		t.Errorf("err = %v, want ErrInsufficientHistory", err)
	}
}
