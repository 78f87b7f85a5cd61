package position

import (
	"fmt"
	"time"
)

// LifecycleConfig tunes the trailing stop, breakeven move, and time exit.
type LifecycleConfig struct {
	BreakevenArm    float64       `json:"breakeven_arm"`    // Profit (ATR multiples) that triggers breakeven. Default 0.75
	BreakevenBuffer float64       `json:"breakeven_buffer"` // Fallback buffer in ticks when the symbol spec carries no spread. Default 2
	MaxHolding      time.Duration `json:"max_holding"`      // Zero disables the time exit. Default 48h
}

// DefaultLifecycleConfig returns the standard lifecycle tuning.
func DefaultLifecycleConfig() *LifecycleConfig {
	return &LifecycleConfig{
		BreakevenArm:    0.75,
		BreakevenBuffer: 2,
		MaxHolding:      48 * time.Hour,
	}
}

// LifecycleAction is what the lifecycle manager wants done this cycle.
type LifecycleAction struct {
	Kind   AdjustmentKind // AdjustTrailing, AdjustBreakeven, or AdjustTimeExit
	Stop   float64        // New stop for the adjust kinds
	Close  bool           // True for the time exit
	Reason string
}

// LifecycleManager handles the per-position state machine that is neither
// signal- nor detector-driven: arming and advancing the trailing stop, the
// one-shot breakeven move, and the stale-position time exit.
type LifecycleManager struct {
	config *LifecycleConfig
}

// NewLifecycleManager creates a lifecycle manager.
func NewLifecycleManager(config *LifecycleConfig) *LifecycleManager {
	if config == nil {
		config = DefaultLifecycleConfig()
	}
	return &LifecycleManager{config: config}
}

// Evaluate returns at most one action, checked in priority order: time exit,
// breakeven, trailing. The caller applies the action and records it.
//
// Trailing parameters come from the regime risk profile at entry, carried on
// the context. Activation, trail distance, and the breakeven arm are all in
// multiples of current ATR; the initial stop distance stands in when the
// snapshot is degraded.
func (m *LifecycleManager) Evaluate(p *Position, mctx *Context, trailActivation, trailDistance float64) (LifecycleAction, bool) {
	if act, ok := m.timeExit(p, mctx); ok {
		return act, true
	}
	if act, ok := m.breakeven(p, mctx); ok {
		return act, true
	}
	return m.trail(p, mctx, trailActivation, trailDistance)
}

// timeExit force-closes positions older than the maximum holding time,
// profitable or not.
func (m *LifecycleManager) timeExit(p *Position, mctx *Context) (LifecycleAction, bool) {
	if m.config.MaxHolding <= 0 {
		return LifecycleAction{}, false
	}
	if mctx.Now.Sub(p.OpenTime) < m.config.MaxHolding {
		return LifecycleAction{}, false
	}
	return LifecycleAction{
		Kind:   AdjustTimeExit,
		Close:  true,
		Reason: fmt.Sprintf("held %s, past maximum holding time", mctx.Now.Sub(p.OpenTime).Round(time.Minute)),
	}, true
}

// breakeven moves the stop to entry plus the spread exactly once.
func (m *LifecycleManager) breakeven(p *Position, mctx *Context) (LifecycleAction, bool) {
	if p.BreakevenApplied || p.StopDistance <= 0 {
		return LifecycleAction{}, false
	}
	if p.ProfitDistance(mctx.Price) < m.referenceATR(p, mctx)*m.config.BreakevenArm {
		return LifecycleAction{}, false
	}
	buffer := mctx.Spec.Spread
	if buffer <= 0 {
		buffer = m.config.BreakevenBuffer * mctx.Spec.TickSize
	}
	stop := p.EntryPrice + buffer
	if !p.Long() {
		stop = p.EntryPrice - buffer
	}
	if !p.Tightens(stop) {
		return LifecycleAction{}, false
	}
	return LifecycleAction{
		Kind:   AdjustBreakeven,
		Stop:   stop,
		Reason: "profit reached breakeven threshold",
	}, true
}

// referenceATR is the snapshot ATR, or the initial stop distance when the
// snapshot is missing or cold.
func (m *LifecycleManager) referenceATR(p *Position, mctx *Context) float64 {
	if mctx.Snapshot != nil && mctx.Snapshot.ATR > 0 {
		return mctx.Snapshot.ATR
	}
	return p.StopDistance
}

// trail arms at the activation profit and then follows the high-water mark at
// the trail distance, only ever tightening.
func (m *LifecycleManager) trail(p *Position, mctx *Context, activation, distance float64) (LifecycleAction, bool) {
	if p.StopDistance <= 0 || distance <= 0 {
		return LifecycleAction{}, false
	}
	atr := m.referenceATR(p, mctx)
	if !p.TrailingActive {
		if p.ProfitDistance(mctx.Price) < atr*activation {
			return LifecycleAction{}, false
		}
		p.TrailingActive = true
	}

	trailDist := distance * atr

	stop := p.HighWaterMark - trailDist
	if !p.Long() {
		stop = p.HighWaterMark + trailDist
	}
	if !p.Tightens(stop) {
		return LifecycleAction{}, false
	}
	return LifecycleAction{
		Kind:   AdjustTrailing,
		Stop:   stop,
		Reason: fmt.Sprintf("trailing %.4f behind high-water mark", trailDist),
	}, true
}
