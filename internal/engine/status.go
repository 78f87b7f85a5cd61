package engine

import (
	"time"

	"adaptive-trading-bot/internal/position"
	"adaptive-trading-bot/internal/regime"
	"adaptive-trading-bot/internal/signal"
)

// Status is the engine snapshot served by the API.
type Status struct {
	Running       bool                   `json:"running"`
	Symbols       []string               `json:"symbols"`
	Timeframe     string                 `json:"timeframe"`
	DryRun        bool                   `json:"dry_run"`
	Cycles        int64                  `json:"cycles"`
	LastCycle     time.Time              `json:"last_cycle,omitempty"`
	OpenPositions int                    `json:"open_positions"`
	Regimes       map[string]regime.Type `json:"regimes"`
	ConfigStaged  bool                   `json:"config_staged"`
}

// Status reports the current loop state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	regimes := make(map[string]regime.Type, len(e.lastRegime))
	for symbol, t := range e.lastRegime {
		regimes[symbol] = t
	}
	return Status{
		Running:       e.running,
		Symbols:       append([]string(nil), e.config.Symbols...),
		Timeframe:     e.config.Timeframe,
		DryRun:        e.config.DryRun,
		Cycles:        e.cycles,
		LastCycle:     e.lastCycle,
		OpenPositions: e.tracker.Count(),
		Regimes:       regimes,
		ConfigStaged:  e.pending != nil,
	}
}

// Config returns a copy of the active loop config.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cfg := *e.config
	cfg.Symbols = append([]string(nil), e.config.Symbols...)
	return cfg
}

// RecentDecisions returns up to limit fused decisions, newest last.
func (e *Engine) RecentDecisions(limit int) []*signal.Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.decisions)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*signal.Decision, n)
	copy(out, e.decisions[len(e.decisions)-n:])
	return out
}

// RecentAdjustments returns up to limit applied adjustments, newest last.
func (e *Engine) RecentAdjustments(limit int) []position.Adjustment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.adjustLog)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]position.Adjustment, n)
	copy(out, e.adjustLog[len(e.adjustLog)-n:])
	return out
}
