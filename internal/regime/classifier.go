// Package regime classifies the current market condition of one symbol from a
// per-cycle snapshot. The regime label drives risk parameters and the dynamic
// SL/TP managers; it is derived fresh every cycle and never persisted.
package regime

import (
	"adaptive-trading-bot/internal/market"
)

// Type is the discrete market-condition label.
type Type string

const (
	StrongTrend Type = "strong_trend"
	WeakTrend   Type = "weak_trend"
	Ranging     Type = "ranging"
	Volatile    Type = "volatile"
)

// BiasDirection is the directional bias of the regime.
type BiasDirection string

const (
	BiasUp   BiasDirection = "up"
	BiasDown BiasDirection = "down"
)

// PricePosture describes price relative to the fast and slow moving averages.
type PricePosture string

const (
	PostureAboveMAs PricePosture = "above_mas"
	PostureBelowMAs PricePosture = "below_mas"
	PostureBetween  PricePosture = "between"
)

// MarketRegime is the classifier output.
type MarketRegime struct {
	Type            Type          `json:"type"`
	Direction       BiasDirection `json:"direction"`
	Strength        float64       `json:"strength"`    // 0-100, ADX-style
	VolatilityRatio float64       `json:"volatility"`  // Current ATR vs its own average
	Consistency     float64       `json:"consistency"` // 0-100
	Posture         PricePosture  `json:"posture"`
	HigherHighPct   float64       `json:"higher_high_pct"` // Fraction of recent bars making higher highs
	LowerLowPct     float64       `json:"lower_low_pct"`

	// Insufficient marks the neutral regime returned when the snapshot has
	// not left its indicator warm-up window.
	Insufficient bool `json:"insufficient"`
}

// Config holds classification thresholds. The classification order is fixed;
// only the numbers are tunable.
type Config struct {
	ConsistencyBars      int     `json:"consistency_bars"`       // Default 20
	StrongStrength       float64 `json:"strong_strength"`        // Default 30
	StrongConsistency    float64 `json:"strong_consistency"`     // Default 70
	WeakStrength         float64 `json:"weak_strength"`          // Default 20
	WeakConsistency      float64 `json:"weak_consistency"`       // Default 50
	VolatileRatio        float64 `json:"volatile_ratio"`         // Default 1.5
	PriceActionLookback  int     `json:"price_action_lookback"`  // Default 10
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() *Config {
	return &Config{
		ConsistencyBars:     20,
		StrongStrength:      30,
		StrongConsistency:   70,
		WeakStrength:        20,
		WeakConsistency:     50,
		VolatileRatio:       1.5,
		PriceActionLookback: 10,
	}
}

// Classifier derives a MarketRegime from a snapshot. Pure: no side effects,
// no state across cycles.
type Classifier struct {
	config *Config
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(config *Config) *Classifier {
	if config == nil {
		config = DefaultConfig()
	}
	return &Classifier{config: config}
}

// Classify labels the snapshot. A snapshot still inside its warm-up window
// yields the neutral insufficient-data regime instead of an error.
func (c *Classifier) Classify(snap *market.Snapshot) *MarketRegime {
	if snap == nil || !snap.Sufficient() {
		return &MarketRegime{
			Type:            Ranging,
			Direction:       BiasUp,
			VolatilityRatio: 1.0,
			Posture:         PostureBetween,
			Insufficient:    true,
		}
	}

	strength := snap.DMI.ADX
	consistency := c.trendConsistency(snap)
	posture := c.posture(snap)
	hhPct, llPct := c.priceAction(snap)
	direction := c.bias(snap, hhPct, llPct)

	r := &MarketRegime{
		Direction:       direction,
		Strength:        strength,
		VolatilityRatio: snap.VolatilityRatio,
		Consistency:     consistency,
		Posture:         posture,
		HigherHighPct:   hhPct,
		LowerLowPct:     llPct,
	}

	r.Type = c.label(strength, consistency, snap.VolatilityRatio)
	return r
}

// label applies the classification rules. First match wins; the order is part
// of the contract: trend checks run before the volatility check, so a strong
// trend with elevated ATR is still a trend.
func (c *Classifier) label(strength, consistency, volRatio float64) Type {
	switch {
	case strength > c.config.StrongStrength && consistency > c.config.StrongConsistency:
		return StrongTrend
	case strength > c.config.WeakStrength && consistency > c.config.WeakConsistency:
		return WeakTrend
	case volRatio > c.config.VolatileRatio:
		return Volatile
	default:
		return Ranging
	}
}

// trendConsistency is the percentage of the last N bars whose close-to-close
// direction matches the most recent bar's direction.
func (c *Classifier) trendConsistency(snap *market.Snapshot) float64 {
	bars := snap.Bars
	n := c.config.ConsistencyBars
	if len(bars) < n+1 {
		n = len(bars) - 1
	}
	if n < 2 {
		return 0
	}

	label := func(i int) int {
		diff := bars[i].Close - bars[i-1].Close
		switch {
		case diff > 0:
			return 1
		case diff < 0:
			return -1
		default:
			return 0
		}
	}

	latest := label(len(bars) - 1)
	if latest == 0 {
		return 0
	}

	matches := 0
	for i := len(bars) - n; i < len(bars); i++ {
		if label(i) == latest {
			matches++
		}
	}
	return float64(matches) / float64(n) * 100
}

func (c *Classifier) posture(snap *market.Snapshot) PricePosture {
	switch {
	case snap.Close > snap.FastMA && snap.Close > snap.SlowMA:
		return PostureAboveMAs
	case snap.Close < snap.FastMA && snap.Close < snap.SlowMA:
		return PostureBelowMAs
	default:
		return PostureBetween
	}
}

// priceAction returns the fraction of recent bars making higher highs and the
// fraction making lower lows.
func (c *Classifier) priceAction(snap *market.Snapshot) (hhPct, llPct float64) {
	bars := snap.Bars
	n := c.config.PriceActionLookback
	if len(bars) < n+1 {
		n = len(bars) - 1
	}
	if n < 1 {
		return 0, 0
	}

	hh, ll := 0, 0
	for i := len(bars) - n; i < len(bars); i++ {
		if bars[i].High > bars[i-1].High {
			hh++
		}
		if bars[i].Low < bars[i-1].Low {
			ll++
		}
	}
	return float64(hh) / float64(n), float64(ll) / float64(n)
}

func (c *Classifier) bias(snap *market.Snapshot, hhPct, llPct float64) BiasDirection {
	// DI dominance first, price action as a tie break.
	if snap.DMI.PlusDI > snap.DMI.MinusDI {
		return BiasUp
	}
	if snap.DMI.MinusDI > snap.DMI.PlusDI {
		return BiasDown
	}
	if hhPct >= llPct {
		return BiasUp
	}
	return BiasDown
}
