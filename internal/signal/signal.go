// Package signal defines trade signal sources and the fusion layer that
// combines them into one decision per symbol per cycle.
package signal

import (
	"context"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/regime"
)

// Direction is a source's directional opinion.
type Direction string

const (
	Buy     Direction = "buy"
	Sell    Direction = "sell"
	Neutral Direction = "neutral"
)

// sign maps a direction onto the signed axis used by fusion.
func (d Direction) sign() float64 {
	switch d {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

// entrySide converts a non-neutral direction to an order side.
func (d Direction) entrySide() broker.Direction {
	if d == Sell {
		return broker.Sell
	}
	return broker.Buy
}

// Signal is one source's output for one symbol and cycle.
type Signal struct {
	Source     string    `json:"source"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0 to 1
	Reason     string    `json:"reason,omitempty"`
}

// Input is everything a source may consult.
type Input struct {
	Snapshot *market.Snapshot
	Regime   *regime.MarketRegime
}

// Source produces a signal from market data. Optional sources may fail; the
// fusion layer degrades instead of aborting the cycle.
type Source interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) (*Signal, error)
}

// Decision is the fused output for one symbol.
type Decision struct {
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"` // Neutral means no trade
	Score       float64   `json:"score"`     // Signed weighted sum, -1 to 1
	Confidence  float64   `json:"confidence"`
	Signals     []Signal  `json:"signals"`        // Contributions, in evaluation order
	Degradation int       `json:"degradations"`   // Disagreeing optional sources
	Failed      []string  `json:"failed,omitempty"` // Sources that errored this cycle
	Time        time.Time `json:"time"`
}

// Actionable reports whether the decision clears both entry gates.
func (d *Decision) Actionable() bool {
	return d.Direction != Neutral
}

// EntrySide returns the order side for an actionable decision.
func (d *Decision) EntrySide() broker.Direction {
	return d.Direction.entrySide()
}
