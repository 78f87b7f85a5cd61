package position

import (
	"fmt"

	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/regime"
)

// StopConfig tunes the tightening detectors. Market-driven distances are in
// ATR multiples so candidates scale with current volatility; the pattern and
// giveback detectors work off price and the initial stop distance alone, so
// they keep running when the snapshot is degraded.
type StopConfig struct {
	ReversalATR    float64 `json:"reversal_atr"`     // Kept behind price after an opposing price-structure reversal. Default 0.5
	CrossoverATR   float64 `json:"crossover_atr"`    // Kept behind price after an opposing MA crossover. Default 1.0
	WeakenATR      float64 `json:"weaken_atr"`       // Kept behind price after a regime downgrade. Default 1.0
	ContractTrip   float64 `json:"contract_trip"`    // ATR contraction vs its average that fires the detector. Default 0.3
	ContractATR    float64 `json:"contract_atr"`     // Kept behind price after a contraction. Default 1.5
	SwingSignifATR float64 `json:"swing_signif_atr"` // Swing distance from price below which the level is noise. Default 0.5
	SwingBufferATR float64 `json:"swing_buffer_atr"` // Kept beyond the swing level. Default 0.3
	PatternFrac    float64 `json:"pattern_frac"`     // Stop distance kept after an opposing reversal formation. Default 0.6
	GivebackArm    float64 `json:"giveback_arm"`     // Profit (stop distances) arming the giveback guard. Default 1.0
	GivebackFrac   float64 `json:"giveback_frac"`    // Retrace fraction that trips it. Default 0.5
	MinGapTicks    float64 `json:"min_gap_ticks"`    // Stop never moves closer to price than this. Default 2
}

// DefaultStopConfig returns the standard detector tuning.
func DefaultStopConfig() *StopConfig {
	return &StopConfig{
		ReversalATR:    0.5,
		CrossoverATR:   1.0,
		WeakenATR:      1.0,
		ContractTrip:   0.3,
		ContractATR:    1.5,
		SwingSignifATR: 0.5,
		SwingBufferATR: 0.3,
		PatternFrac:    0.6,
		GivebackArm:    1.0,
		GivebackFrac:   0.5,
		MinGapTicks:    2,
	}
}

// StopProposal is one detector's candidate stop.
type StopProposal struct {
	Stop   float64
	Reason string
}

// StopManager proposes stop tightenings. A proposal is only ever tighter
// than the current stop; the manager never loosens and never crosses price.
type StopManager struct {
	config *StopConfig
}

// NewStopManager creates a stop manager.
func NewStopManager(config *StopConfig) *StopManager {
	if config == nil {
		config = DefaultStopConfig()
	}
	return &StopManager{config: config}
}

// Evaluate runs every detector and returns the most conservative proposal
// that still tightens the stop, or ok=false when nothing fires. Most
// conservative means closest to current price on the protecting side.
func (m *StopManager) Evaluate(p *Position, mctx *Context) (StopProposal, bool) {
	detectors := []func(*Position, *Context) (StopProposal, bool){
		m.reversalDetector,
		m.crossoverDetector,
		m.weakeningDetector,
		m.volatilityDetector,
		m.swingDetector,
		m.patternDetector,
		m.givebackDetector,
	}

	var best StopProposal
	found := false
	for _, detect := range detectors {
		prop, ok := detect(p, mctx)
		if !ok {
			continue
		}
		prop.Stop = m.capAtPrice(p, mctx, prop.Stop)
		if !p.Tightens(prop.Stop) {
			continue
		}
		if !found || tighter(p, prop.Stop, best.Stop) {
			best = prop
			found = true
		}
	}
	return best, found
}

// tighter reports whether a is closer to price than b on the protecting side.
func tighter(p *Position, a, b float64) bool {
	if p.Long() {
		return a > b
	}
	return a < b
}

// capAtPrice keeps the candidate at least MinGapTicks away from price on the
// protecting side.
func (m *StopManager) capAtPrice(p *Position, mctx *Context, candidate float64) float64 {
	gap := m.config.MinGapTicks * mctx.Spec.TickSize
	if p.Long() {
		if limit := mctx.Price - gap; candidate > limit {
			return limit
		}
		return candidate
	}
	if limit := mctx.Price + gap; candidate < limit {
		return limit
	}
	return candidate
}

// withdraw converts "keep dist behind price" into an absolute stop for the
// position's side.
func withdraw(p *Position, price, dist float64) float64 {
	if p.Long() {
		return price - dist
	}
	return price + dist
}

// snapshotATR returns the snapshot's ATR when the indicator window is warm.
func snapshotATR(mctx *Context) (float64, bool) {
	if mctx.Snapshot == nil || !mctx.Snapshot.Sufficient() || mctx.Snapshot.ATR <= 0 {
		return 0, false
	}
	return mctx.Snapshot.ATR, true
}

// reversalDetector tightens when the last bars put in lower highs and lower
// lows against a long (or higher highs and higher lows against a short).
func (m *StopManager) reversalDetector(p *Position, mctx *Context) (StopProposal, bool) {
	atr, ok := snapshotATR(mctx)
	if !ok {
		return StopProposal{}, false
	}
	bars := mctx.Snapshot.Bars
	if len(bars) < 3 {
		return StopProposal{}, false
	}
	a, b, c := bars[len(bars)-3], bars[len(bars)-2], bars[len(bars)-1]
	var against bool
	if p.Long() {
		against = c.High < b.High && b.High < a.High && c.Low < b.Low && b.Low < a.Low
	} else {
		against = c.High > b.High && b.High > a.High && c.Low > b.Low && b.Low > a.Low
	}
	if !against {
		return StopProposal{}, false
	}
	return StopProposal{
		Stop:   withdraw(p, mctx.Price, atr*m.config.ReversalATR),
		Reason: "price structure reversing against position",
	}, true
}

// crossoverDetector tightens when the fast average has crossed to the wrong
// side of the slow one for the position's direction.
func (m *StopManager) crossoverDetector(p *Position, mctx *Context) (StopProposal, bool) {
	atr, ok := snapshotATR(mctx)
	if !ok {
		return StopProposal{}, false
	}
	snap := mctx.Snapshot
	against := (p.Long() && snap.FastMA < snap.SlowMA) ||
		(!p.Long() && snap.FastMA > snap.SlowMA)
	if !against {
		return StopProposal{}, false
	}
	return StopProposal{
		Stop:   withdraw(p, mctx.Price, atr*m.config.CrossoverATR),
		Reason: "moving averages crossed against position",
	}, true
}

// weakeningDetector tightens when the regime was downgraded a step since the
// last classification: strong trend to weak, or weak trend to ranging.
func (m *StopManager) weakeningDetector(p *Position, mctx *Context) (StopProposal, bool) {
	r := mctx.Regime
	if r == nil || r.Insufficient {
		return StopProposal{}, false
	}
	atr, ok := snapshotATR(mctx)
	if !ok {
		return StopProposal{}, false
	}
	downgraded := (mctx.PrevRegime == regime.StrongTrend && r.Type == regime.WeakTrend) ||
		(mctx.PrevRegime == regime.WeakTrend && r.Type == regime.Ranging)
	if !downgraded {
		return StopProposal{}, false
	}
	return StopProposal{
		Stop:   withdraw(p, mctx.Price, atr*m.config.WeakenATR),
		Reason: fmt.Sprintf("trend weakening, regime downgraded %s to %s", mctx.PrevRegime, r.Type),
	}, true
}

// volatilityDetector tightens after a sharp contraction; the market no longer
// moves enough to need the entry's wide stop.
func (m *StopManager) volatilityDetector(p *Position, mctx *Context) (StopProposal, bool) {
	atr, ok := snapshotATR(mctx)
	if !ok {
		return StopProposal{}, false
	}
	snap := mctx.Snapshot
	if snap.VolatilityRatio <= 0 || snap.VolatilityRatio > 1-m.config.ContractTrip {
		return StopProposal{}, false
	}
	return StopProposal{
		Stop:   withdraw(p, mctx.Price, atr*m.config.ContractATR),
		Reason: fmt.Sprintf("volatility contracted to %.0f%% of average", snap.VolatilityRatio*100),
	}, true
}

// swingDetector snugs the stop just beyond the latest swing level on the
// position's protecting side, ignoring swings too close to price to matter.
func (m *StopManager) swingDetector(p *Position, mctx *Context) (StopProposal, bool) {
	atr, ok := snapshotATR(mctx)
	if !ok {
		return StopProposal{}, false
	}
	snap := mctx.Snapshot
	buffer := atr * m.config.SwingBufferATR
	signif := atr * m.config.SwingSignifATR

	if p.Long() {
		swing, ok := market.LatestSwing(snap.SwingLows)
		if !ok || mctx.Price-swing.Price <= signif {
			return StopProposal{}, false
		}
		return StopProposal{Stop: swing.Price - buffer, Reason: "stop snugged behind latest swing low"}, true
	}

	swing, ok := market.LatestSwing(snap.SwingHighs)
	if !ok || swing.Price-mctx.Price <= signif {
		return StopProposal{}, false
	}
	return StopProposal{Stop: swing.Price + buffer, Reason: "stop snugged behind latest swing high"}, true
}

// patternDetector tightens on a reversal formation against the position.
func (m *StopManager) patternDetector(p *Position, mctx *Context) (StopProposal, bool) {
	for _, hint := range mctx.Patterns {
		if hint.Continuation {
			continue
		}
		if hint.Bullish == p.Long() {
			continue
		}
		return StopProposal{
			Stop:   withdraw(p, mctx.Price, p.StopDistance*m.config.PatternFrac),
			Reason: fmt.Sprintf("opposing reversal formation %s", hint.Kind),
		}, true
	}
	return StopProposal{}, false
}

// givebackDetector locks in profit once a well-advanced position retraces a
// large share of its best excursion.
func (m *StopManager) givebackDetector(p *Position, mctx *Context) (StopProposal, bool) {
	if p.StopDistance <= 0 {
		return StopProposal{}, false
	}
	peak := p.ProfitDistance(p.HighWaterMark)
	if peak < p.StopDistance*m.config.GivebackArm {
		return StopProposal{}, false
	}
	current := p.ProfitDistance(mctx.Price)
	if peak-current < peak*m.config.GivebackFrac {
		return StopProposal{}, false
	}
	return StopProposal{
		Stop:   withdraw(p, p.HighWaterMark, peak*m.config.GivebackFrac),
		Reason: fmt.Sprintf("gave back %.0f%% of peak profit", (peak-current)/peak*100),
	}, true
}
