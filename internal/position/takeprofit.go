package position

import (
	"fmt"
	"math"

	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/regime"
)

// TPConfig tunes the extension detectors. Factor fields multiply the current
// target's distance from entry; the breakout detector instead projects an
// absolute level past the broken swing extreme.
type TPConfig struct {
	TrendFactor      float64 `json:"trend_factor"`      // Strong aligned trend. Default 1.5
	AccelFactor      float64 `json:"accel_factor"`      // Momentum acceleration. Default 1.4
	ExpansionFactor  float64 `json:"expansion_factor"`  // Volatility expansion. Default 1.3
	PatternFactor    float64 `json:"pattern_factor"`    // Continuation formation. Default 1.2
	BreakoutATR      float64 `json:"breakout_atr"`      // ATR multiples past a confirmed breakout level. Default 2.0
	TrendConsistency float64 `json:"trend_consistency"` // Regime consistency the trend factor needs. Default 85
	TrendStrength    float64 `json:"trend_strength"`    // Regime strength the trend factor needs. Default 30
	AccelRatio       float64 `json:"accel_ratio"`       // Recent vs prior-window velocity counting as acceleration. Default 1.3
	ExpansionTrip    float64 `json:"expansion_trip"`    // ATR expansion vs its average that fires the detector. Default 0.2
	VelocityWindow   int     `json:"velocity_window"`   // Bars per velocity window. Default 5
}

// DefaultTPConfig returns the standard detector tuning.
func DefaultTPConfig() *TPConfig {
	return &TPConfig{
		TrendFactor:      1.5,
		AccelFactor:      1.4,
		ExpansionFactor:  1.3,
		PatternFactor:    1.2,
		BreakoutATR:      2.0,
		TrendConsistency: 85,
		TrendStrength:    30,
		AccelRatio:       1.3,
		ExpansionTrip:    0.2,
		VelocityWindow:   5,
	}
}

// TPProposal is one detector's candidate target.
type TPProposal struct {
	TakeProfit float64
	Reason     string
}

// TPManager proposes take-profit extensions. Extensions only apply while the
// position is in profit, only ever move the target further out, and respect
// the symbol's target cap.
type TPManager struct {
	config *TPConfig
	volume *market.VolumeAnalyzer
}

// NewTPManager creates a take-profit manager.
func NewTPManager(config *TPConfig) *TPManager {
	if config == nil {
		config = DefaultTPConfig()
	}
	return &TPManager{config: config, volume: market.NewVolumeAnalyzer(nil)}
}

// Evaluate runs every detector and returns the furthest capped proposal that
// still extends the target, or ok=false.
func (m *TPManager) Evaluate(p *Position, mctx *Context) (TPProposal, bool) {
	if p.ProfitDistance(mctx.Price) <= 0 {
		return TPProposal{}, false
	}
	if p.ProfitDistance(p.TakeProfit) <= 0 {
		return TPProposal{}, false
	}

	detectors := []func(*Position, *Context) (float64, string, bool){
		m.trendDetector,
		m.accelerationDetector,
		m.breakoutDetector,
		m.expansionDetector,
		m.patternDetector,
	}

	var best TPProposal
	found := false
	for _, detect := range detectors {
		target, reason, ok := detect(p, mctx)
		if !ok {
			continue
		}
		target = m.capTarget(p, mctx, target)
		if !p.Extends(target) {
			continue
		}
		if !found || further(p, target, best.TakeProfit) {
			best = TPProposal{TakeProfit: target, Reason: reason}
			found = true
		}
	}
	return best, found
}

// scaleTarget stretches the current target's distance from entry by factor.
func scaleTarget(p *Position, factor float64) float64 {
	dist := math.Abs(p.TakeProfit-p.EntryPrice) * factor
	if p.Long() {
		return p.EntryPrice + dist
	}
	return p.EntryPrice - dist
}

// capTarget bounds the target's distance from entry at twice the symbol cap,
// matching the far rung of the entry ladder. A zero cap disables bounding.
func (m *TPManager) capTarget(p *Position, mctx *Context, target float64) float64 {
	tpCap := mctx.Spec.TPCap
	if tpCap <= 0 {
		return target
	}
	limit := tpCap * 2
	if p.Long() {
		if far := p.EntryPrice + limit; target > far {
			return far
		}
		return target
	}
	if far := p.EntryPrice - limit; target < far {
		return far
	}
	return target
}

func further(p *Position, a, b float64) bool {
	if p.Long() {
		return a > b
	}
	return a < b
}

// trendDetector extends when the market strengthened into a persistent trend
// behind the position.
func (m *TPManager) trendDetector(p *Position, mctx *Context) (float64, string, bool) {
	r := mctx.Regime
	if r == nil || r.Insufficient || r.Type != regime.StrongTrend {
		return 0, "", false
	}
	aligned := (p.Long() && r.Direction == regime.BiasUp) ||
		(!p.Long() && r.Direction == regime.BiasDown)
	if !aligned {
		return 0, "", false
	}
	if r.Consistency <= m.config.TrendConsistency || r.Strength <= m.config.TrendStrength {
		return 0, "", false
	}
	return scaleTarget(p, m.config.TrendFactor), "strong trend behind position", true
}

// accelerationDetector extends when price is covering ground faster than it
// was a window ago, in the profit direction.
func (m *TPManager) accelerationDetector(p *Position, mctx *Context) (float64, string, bool) {
	snap := mctx.Snapshot
	if snap == nil || !snap.Sufficient() {
		return 0, "", false
	}
	w := m.config.VelocityWindow
	if len(snap.Bars) < 2*w+1 {
		return 0, "", false
	}
	recent := market.PriceVelocity(snap.Bars, w)
	prior := market.PriceVelocity(snap.Bars[:len(snap.Bars)-w], w)
	if prior <= 0 || recent <= prior*m.config.AccelRatio {
		return 0, "", false
	}
	last := snap.Bars[len(snap.Bars)-1].Close - snap.Bars[len(snap.Bars)-2].Close
	aligned := (p.Long() && last > 0) || (!p.Long() && last < 0)
	if !aligned {
		return 0, "", false
	}
	return scaleTarget(p, m.config.AccelFactor), "momentum accelerating in profit direction", true
}

// breakoutDetector projects a fresh absolute target once price clears the
// latest swing extreme on confirmed volume.
func (m *TPManager) breakoutDetector(p *Position, mctx *Context) (float64, string, bool) {
	atr, ok := snapshotATR(mctx)
	if !ok {
		return 0, "", false
	}
	snap := mctx.Snapshot

	var level float64
	if p.Long() {
		swing, ok := market.LatestSwing(snap.SwingHighs)
		if !ok || mctx.Price <= swing.Price {
			return 0, "", false
		}
		level = swing.Price
	} else {
		swing, ok := market.LatestSwing(snap.SwingLows)
		if !ok || mctx.Price >= swing.Price {
			return 0, "", false
		}
		level = swing.Price
	}

	vc := m.volume.Analyze(snap.Bars)
	if vc == nil || !vc.Confirmed {
		return 0, "", false
	}

	target := level + atr*m.config.BreakoutATR
	if !p.Long() {
		target = level - atr*m.config.BreakoutATR
	}
	return target, fmt.Sprintf("breakout past %.4f on %.1fx volume", level, vc.Ratio), true
}

// expansionDetector extends when the market's range opened up behind a
// profitable position.
func (m *TPManager) expansionDetector(p *Position, mctx *Context) (float64, string, bool) {
	snap := mctx.Snapshot
	if snap == nil || !snap.Sufficient() {
		return 0, "", false
	}
	if snap.VolatilityRatio <= 1+m.config.ExpansionTrip {
		return 0, "", false
	}
	return scaleTarget(p, m.config.ExpansionFactor),
		fmt.Sprintf("volatility expanded to %.0f%% of average", snap.VolatilityRatio*100), true
}

// patternDetector extends on a continuation formation agreeing with the
// position.
func (m *TPManager) patternDetector(p *Position, mctx *Context) (float64, string, bool) {
	for _, hint := range mctx.Patterns {
		if !hint.Continuation {
			continue
		}
		if hint.Bullish != p.Long() {
			continue
		}
		return scaleTarget(p, m.config.PatternFactor),
			fmt.Sprintf("continuation formation %s", hint.Kind), true
	}
	return 0, "", false
}
