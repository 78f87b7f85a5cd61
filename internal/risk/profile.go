// Package risk maps market regimes to risk parameters and turns a trade
// decision into an order size. Profiles are a fixed table keyed by regime
// type; the multipliers are clamped to hard bounds at load so a bad config
// can widen risk only so far.
package risk

import (
	"fmt"

	"adaptive-trading-bot/internal/regime"
)

// Hard bounds on the per-regime risk multiplier. Applied on load, not per
// trade, so the effective table is always within them.
const (
	MinRiskMultiplier = 0.25
	MaxRiskMultiplier = 2.0
)

// Profile is the set of risk parameters used for one regime.
type Profile struct {
	RiskMultiplier  float64   `json:"risk_multiplier"`  // Scales the base per-trade risk percent
	StopATRMult     float64   `json:"stop_atr_mult"`    // Initial stop distance in ATR multiples
	TPLadder        []float64 `json:"tp_ladder"`        // Take-profit rungs in stop-distance multiples
	TrailActivation float64   `json:"trail_activation"` // Profit (in stop distances) that arms the trailing stop
	TrailDistance   float64   `json:"trail_distance"`   // Trailing distance in ATR multiples
}

// ProfileTable maps each regime type to its profile.
type ProfileTable map[regime.Type]Profile

// DefaultProfileTable returns the standard regime-to-risk mapping. Strong
// trends risk more with wider targets; volatile markets risk half size with
// wide stops so noise does not shake the position out.
func DefaultProfileTable() ProfileTable {
	return ProfileTable{
		regime.StrongTrend: {
			RiskMultiplier:  1.5,
			StopATRMult:     2.5,
			TPLadder:        []float64{2.0, 3.0, 5.0},
			TrailActivation: 1.0,
			TrailDistance:   2.0,
		},
		regime.WeakTrend: {
			RiskMultiplier:  1.0,
			StopATRMult:     2.0,
			TPLadder:        []float64{1.5, 2.5, 4.0},
			TrailActivation: 1.0,
			TrailDistance:   1.5,
		},
		regime.Ranging: {
			RiskMultiplier:  0.7,
			StopATRMult:     1.5,
			TPLadder:        []float64{1.0, 1.5, 2.0},
			TrailActivation: 0.8,
			TrailDistance:   1.0,
		},
		regime.Volatile: {
			RiskMultiplier:  0.5,
			StopATRMult:     3.0,
			TPLadder:        []float64{2.0, 3.5, 5.0},
			TrailActivation: 1.2,
			TrailDistance:   2.5,
		},
	}
}

// Validate checks the table covers every regime type and clamps each
// multiplier into the hard bounds. Returns the clamped table.
func (t ProfileTable) Validate() (ProfileTable, error) {
	required := []regime.Type{regime.StrongTrend, regime.WeakTrend, regime.Ranging, regime.Volatile}
	out := make(ProfileTable, len(required))
	for _, rt := range required {
		p, ok := t[rt]
		if !ok {
			return nil, fmt.Errorf("risk profile table missing regime %q", rt)
		}
		if p.StopATRMult <= 0 {
			return nil, fmt.Errorf("risk profile %q: stop_atr_mult must be positive, got %v", rt, p.StopATRMult)
		}
		if len(p.TPLadder) == 0 {
			return nil, fmt.Errorf("risk profile %q: tp_ladder must not be empty", rt)
		}
		prev := 0.0
		for i, rung := range p.TPLadder {
			if rung <= prev {
				return nil, fmt.Errorf("risk profile %q: tp_ladder rung %d (%v) must exceed previous (%v)", rt, i, rung, prev)
			}
			prev = rung
		}
		if p.RiskMultiplier < MinRiskMultiplier {
			p.RiskMultiplier = MinRiskMultiplier
		}
		if p.RiskMultiplier > MaxRiskMultiplier {
			p.RiskMultiplier = MaxRiskMultiplier
		}
		out[rt] = p
	}
	return out, nil
}

// For returns the profile for a regime. Insufficient-data regimes fall back
// to the ranging profile, which is also the table's most conservative trend
// entry.
func (t ProfileTable) For(r *regime.MarketRegime) Profile {
	if r == nil || r.Insufficient {
		return t[regime.Ranging]
	}
	return t[r.Type]
}
