package risk

import (
	"errors"
	"fmt"
	"math"

	"adaptive-trading-bot/internal/broker"
)

// ErrSizingInfeasible means no valid order size exists for the inputs, for
// example a stop distance of zero or a computed quantity below the symbol's
// minimum lot. Callers skip the trade; this is not a fault.
var ErrSizingInfeasible = errors.New("risk: position sizing infeasible")

// SizerConfig controls position sizing.
type SizerConfig struct {
	BaseRiskPercent float64 `json:"base_risk_percent"` // Percent of balance risked per trade at multiplier 1.0. Default 1.0
	MinConfMult     float64 `json:"min_conf_mult"`     // Confidence multiplier floor. Default 0.5
	MaxConfMult     float64 `json:"max_conf_mult"`     // Confidence multiplier ceiling. Default 1.25
}

// DefaultSizerConfig returns standard sizing parameters.
func DefaultSizerConfig() *SizerConfig {
	return &SizerConfig{
		BaseRiskPercent: 1.0,
		MinConfMult:     0.5,
		MaxConfMult:     1.25,
	}
}

// Validate rejects sizing parameters that cannot produce a valid order.
func (c *SizerConfig) Validate() error {
	if c.BaseRiskPercent <= 0 || c.BaseRiskPercent > 10 {
		return fmt.Errorf("risk: base risk percent %v outside (0, 10]", c.BaseRiskPercent)
	}
	if c.MinConfMult <= 0 || c.MaxConfMult < c.MinConfMult {
		return fmt.Errorf("risk: confidence multiplier bounds [%v, %v] invalid", c.MinConfMult, c.MaxConfMult)
	}
	return nil
}

// OrderPlan is a fully sized order: quantity, initial stop, and the expanded
// take-profit ladder as absolute prices.
type OrderPlan struct {
	Symbol       string
	Direction    broker.Direction
	Quantity     float64
	EntryPrice   float64
	StopLoss     float64
	TakeProfits  []float64
	StopDistance float64
	RiskAmount   float64 // Balance actually at risk at the initial stop
}

// Sizer converts a trade decision into an order plan.
type Sizer struct {
	config *SizerConfig
}

// NewSizer creates a sizer.
func NewSizer(config *SizerConfig) *Sizer {
	if config == nil {
		config = DefaultSizerConfig()
	}
	return &Sizer{config: config}
}

// SetConfig swaps the sizing parameters. Only called between cycles.
func (s *Sizer) SetConfig(config *SizerConfig) {
	s.config = config
}

// confidenceMultiplier maps fused signal confidence (0.6 to 1.0 by the time a
// trade is taken) onto a size multiplier clamped to [MinConfMult, MaxConfMult].
func (s *Sizer) confidenceMultiplier(confidence float64) float64 {
	m := confidence * s.config.MaxConfMult
	if m < s.config.MinConfMult {
		m = s.config.MinConfMult
	}
	if m > s.config.MaxConfMult {
		m = s.config.MaxConfMult
	}
	return m
}

// Size produces an order plan, or ErrSizingInfeasible when no valid size
// exists. Stop distance is profile.StopATRMult times the current ATR unless
// the symbol pins a fixed stop distance; the quantity formula is
//
//	qty = balance * risk% * multipliers / (stopTicks * tickValue)
//
// floored to the symbol lot step and clamped into [MinLot, MaxLot].
func (s *Sizer) Size(
	account broker.AccountInfo,
	spec broker.SymbolSpec,
	direction broker.Direction,
	entryPrice, atr, confidence float64,
	profile Profile,
) (*OrderPlan, error) {
	stopDist := profile.StopATRMult * atr
	if spec.FixedStopDistance > 0 {
		stopDist = spec.FixedStopDistance
	}
	if stopDist <= 0 {
		return nil, fmt.Errorf("%w: non-positive stop distance (atr=%v)", ErrSizingInfeasible, atr)
	}
	if spec.TickSize <= 0 || spec.TickValue <= 0 {
		return nil, fmt.Errorf("%w: symbol %s has invalid tick spec", ErrSizingInfeasible, spec.Symbol)
	}
	if account.Balance <= 0 {
		return nil, fmt.Errorf("%w: non-positive balance", ErrSizingInfeasible)
	}

	riskPct := s.config.BaseRiskPercent * profile.RiskMultiplier / 100
	confMult := s.confidenceMultiplier(confidence)
	riskAmount := account.Balance * riskPct * confMult

	stopTicks := stopDist / spec.TickSize
	qty := riskAmount / (stopTicks * spec.TickValue)

	if spec.LotStep > 0 {
		qty = math.Floor(qty/spec.LotStep) * spec.LotStep
	}
	if spec.MaxLot > 0 && qty > spec.MaxLot {
		qty = spec.MaxLot
	}
	if qty < spec.MinLot || qty <= 0 {
		return nil, fmt.Errorf("%w: quantity %v below minimum lot %v", ErrSizingInfeasible, qty, spec.MinLot)
	}

	stop, tps := expandLevels(direction, entryPrice, stopDist, profile.TPLadder, spec.TPCap)

	return &OrderPlan{
		Symbol:       spec.Symbol,
		Direction:    direction,
		Quantity:     qty,
		EntryPrice:   entryPrice,
		StopLoss:     stop,
		TakeProfits:  tps,
		StopDistance: stopDist,
		RiskAmount:   qty * (stopDist / spec.TickSize) * spec.TickValue,
	}, nil
}

// expandLevels turns the ladder of stop-distance multiples into absolute
// prices. Each rung's distance from entry is capped at the symbol TP cap
// scaled by the rung index, so far rungs get proportionally more room while
// near rungs stay tight:
//
//	dist(i) = min(ladder[i] * stopDist, cap * min(i, 2))   (i is 1-based)
//
// A zero cap disables capping.
func expandLevels(direction broker.Direction, entry, stopDist float64, ladder []float64, cap float64) (stop float64, tps []float64) {
	sign := 1.0
	if direction == broker.Sell {
		sign = -1.0
	}
	stop = entry - sign*stopDist

	tps = make([]float64, len(ladder))
	for i, mult := range ladder {
		dist := mult * stopDist
		if cap > 0 {
			limit := cap * rungScale(i + 1)
			if dist > limit {
				dist = limit
			}
		}
		tps[i] = entry + sign*dist
	}
	return stop, tps
}

func rungScale(rung int) float64 {
	if rung > 2 {
		rung = 2
	}
	return float64(rung)
}
