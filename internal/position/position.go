// Package position holds the stateful side of the engine: per-position
// metadata the broker does not keep (initial stop distance, breakeven state,
// high-water marks, split groups) and the managers that adjust stops and
// targets over a position's life.
package position

import (
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/regime"
)

// Position is one managed position: the broker record plus engine metadata.
type Position struct {
	Ticket     int64            `json:"ticket"`
	Symbol     string           `json:"symbol"`
	Direction  broker.Direction `json:"direction"`
	EntryPrice float64          `json:"entry_price"`
	Quantity   float64          `json:"quantity"`
	StopLoss   float64          `json:"stop_loss"`
	TakeProfit float64          `json:"take_profit"`
	OpenTime   time.Time        `json:"open_time"`

	// Engine metadata, not known to the broker.
	InitialStop      float64   `json:"initial_stop"`
	InitialTP        float64   `json:"initial_tp"`
	StopDistance     float64   `json:"stop_distance"` // Entry to initial stop
	BreakevenApplied bool      `json:"breakeven_applied"`
	TrailingActive   bool      `json:"trailing_active"`
	HighWaterMark    float64   `json:"high_water_mark"` // Best price seen in the profit direction
	GroupID          string    `json:"group_id,omitempty"`
	Adjustments      int       `json:"adjustments"`
	LastAdjusted     time.Time `json:"last_adjusted,omitempty"`
}

// NewPosition builds the managed record for a freshly filled order.
func NewPosition(rec broker.PositionRecord, stopDistance float64, groupID string) *Position {
	return &Position{
		Ticket:        rec.Ticket,
		Symbol:        rec.Symbol,
		Direction:     rec.Direction,
		EntryPrice:    rec.EntryPrice,
		Quantity:      rec.Quantity,
		StopLoss:      rec.StopLoss,
		TakeProfit:    rec.TakeProfit,
		OpenTime:      rec.OpenTime,
		InitialStop:   rec.StopLoss,
		InitialTP:     rec.TakeProfit,
		StopDistance:  stopDistance,
		HighWaterMark: rec.EntryPrice,
		GroupID:       groupID,
	}
}

// Long reports whether the position profits from rising prices.
func (p *Position) Long() bool { return p.Direction == broker.Buy }

// ProfitDistance is the signed distance from entry to price in the profit
// direction; positive means in profit.
func (p *Position) ProfitDistance(price float64) float64 {
	if p.Long() {
		return price - p.EntryPrice
	}
	return p.EntryPrice - price
}

// UnrealizedPnL values the open position at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.ProfitDistance(price) * p.Quantity
}

// UpdateHighWater advances the high-water mark if price improved.
func (p *Position) UpdateHighWater(price float64) {
	if p.Long() {
		if price > p.HighWaterMark {
			p.HighWaterMark = price
		}
		return
	}
	if p.HighWaterMark == 0 || price < p.HighWaterMark {
		p.HighWaterMark = price
	}
}

// Tightens reports whether candidate is a strictly tighter stop than current,
// meaning closer to price on the protecting side. This is the monotonic
// invariant every stop adjustment must satisfy.
func (p *Position) Tightens(candidate float64) bool {
	if p.Long() {
		return candidate > p.StopLoss
	}
	return candidate < p.StopLoss
}

// Extends reports whether candidate moves the take-profit further into profit
// than the current target.
func (p *Position) Extends(candidate float64) bool {
	if p.Long() {
		return candidate > p.TakeProfit
	}
	return candidate < p.TakeProfit
}

// Clone returns a deep copy safe to hand to monitoring.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}

// Context carries the per-cycle market state the managers evaluate against.
type Context struct {
	Price    float64
	Spec     broker.SymbolSpec
	Snapshot *market.Snapshot
	Regime   *regime.MarketRegime
	// PrevRegime is the symbol's classification from the previous cycle,
	// empty on the first cycle after start.
	PrevRegime regime.Type
	Patterns   []PatternHint
	Now        time.Time
}

// PatternHint is the slice of pattern detection the managers care about.
type PatternHint struct {
	Bullish      bool
	Continuation bool
	Confidence   float64
	Kind         string
}

// AdjustmentKind labels a position change for the adjustment log.
type AdjustmentKind string

const (
	AdjustStopTighten AdjustmentKind = "stop_tighten"
	AdjustTPExtend    AdjustmentKind = "tp_extend"
	AdjustBreakeven   AdjustmentKind = "breakeven"
	AdjustTrailing    AdjustmentKind = "trailing"
	AdjustTimeExit    AdjustmentKind = "time_exit"
)

// Adjustment records one applied change for audit.
type Adjustment struct {
	Ticket int64          `json:"ticket"`
	Symbol string         `json:"symbol"`
	Kind   AdjustmentKind `json:"kind"`
	From   float64        `json:"from"`
	To     float64        `json:"to"`
	Reason string         `json:"reason"`
	Time   time.Time      `json:"time"`
}
