package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/events"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/patterns"
	"adaptive-trading-bot/internal/position"
	"adaptive-trading-bot/internal/regime"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/signal"
)

// Config controls the trading loop.
type Config struct {
	Symbols               []string      `json:"symbols"`
	Timeframe             string        `json:"timeframe"`
	CycleInterval         time.Duration `json:"cycle_interval"`
	HistoryBars           int           `json:"history_bars"`
	MaxPositionsPerSymbol int           `json:"max_positions_per_symbol"`
	MaxOpenPositions      int           `json:"max_open_positions"`
	DryRun                bool          `json:"dry_run"`
}

// DefaultConfig returns conservative loop settings.
func DefaultConfig() *Config {
	return &Config{
		Symbols:               []string{"BTCUSDT", "ETHUSDT"},
		Timeframe:             "15m",
		CycleInterval:         30 * time.Second,
		HistoryBars:           200,
		MaxPositionsPerSymbol: 1,
		MaxOpenPositions:      6,
		DryRun:                false,
	}
}

// Validate rejects settings the loop cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive")
	}
	if c.HistoryBars < 50 {
		return fmt.Errorf("history bars must be at least 50, got %d", c.HistoryBars)
	}
	return nil
}

// Dependencies bundles the collaborators the engine orchestrates. Repo and
// States may be nil; the engine then skips persistence and state mirroring.
type Dependencies struct {
	Client     broker.Client
	Classifier *regime.Classifier
	Profiles   risk.ProfileTable
	Sizer      *risk.Sizer
	Fuser      *signal.Fuser
	Patterns   *patterns.Detector
	Stops      *position.StopManager
	TPs        *position.TPManager
	Lifecycle  *position.LifecycleManager
	Planner    *position.Planner
	Repo       *database.Repository
	States     *database.StateStore
	Bus        *events.Bus
}

// Engine runs the decision cycle: classify each symbol's regime, fuse entry
// signals, size and place orders, then walk every open position through the
// stop, target and lifecycle managers.
type Engine struct {
	config *Config
	deps   Dependencies

	tracker    *position.Tracker
	indicators *market.IndicatorConfig
	logger     zerolog.Logger

	mu         sync.RWMutex
	pending    *Update // staged revision, applied at the next cycle boundary
	running    bool
	cycles     int64
	lastCycle  time.Time
	lastRegime map[string]regime.Type
	decisions  []*signal.Decision
	adjustLog  []position.Adjustment
	published  []*position.Position // position copies frozen at the last cycle boundary

	stopChan chan struct{}
	done     chan struct{}
}

// New assembles an engine. Missing optional deps are tolerated; a nil
// required dep is a programming error caught on the first cycle.
func New(config *Config, deps Dependencies, logger zerolog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		config:     config,
		deps:       deps,
		tracker:    position.NewTracker(logger),
		indicators: market.DefaultIndicatorConfig(),
		logger:     logger.With().Str("component", "engine").Logger(),
		lastRegime: make(map[string]regime.Type),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Positions returns the deep copies published at the last cycle boundary.
// The monitoring interface only ever sees these copies; live tracker records
// belong to the trading loop alone.
func (e *Engine) Positions() []*position.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published
}

// publishPositions freezes the current tracker contents for monitoring.
// Only the trading loop calls this, so the clone happens with no concurrent
// field writes in flight.
func (e *Engine) publishPositions() {
	snap := e.tracker.Snapshot()
	e.mu.Lock()
	e.published = snap
	e.mu.Unlock()
}

// Start launches the trading loop. Recovery runs first so a restart resumes
// managing positions the previous process opened.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	if err := e.config.Validate(); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	e.recover(ctx)
	e.publishPositions()

	e.logger.Info().
		Strs("symbols", e.config.Symbols).
		Str("timeframe", e.config.Timeframe).
		Dur("interval", e.config.CycleInterval).
		Bool("dry_run", e.config.DryRun).
		Msg("engine starting")
	e.deps.Bus.Publish(events.Event{Type: events.EventEngineStarted, Data: map[string]interface{}{
		"symbols":   e.config.Symbols,
		"timeframe": e.config.Timeframe,
	}})

	go e.runLoop(ctx)
	return nil
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)
	<-e.done
	e.deps.Bus.Publish(events.Event{Type: events.EventEngineStopped, Data: map[string]interface{}{}})
	e.logger.Info().Msg("engine stopped")
}

func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.config.CycleInterval)
	defer ticker.Stop()

	// Run one cycle immediately instead of idling a full interval.
	e.cycle(ctx)

	for {
		select {
		case <-ticker.C:
			e.cycle(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Update is one staged configuration revision. Nil sections leave the
// current settings untouched, so callers can change fusion weights without
// restating the loop config.
type Update struct {
	Loop     *Config              `json:"loop,omitempty"`
	Fusion   *signal.FusionConfig `json:"fusion,omitempty"`
	Sizing   *risk.SizerConfig    `json:"sizing,omitempty"`
	Profiles risk.ProfileTable    `json:"profiles,omitempty"`
}

// ApplyConfig stages a new loop config. It takes effect at the start of the
// next cycle so a half-evaluated cycle never mixes two configurations.
func (e *Engine) ApplyConfig(cfg *Config) error {
	return e.ApplyUpdate(&Update{Loop: cfg})
}

// ApplyUpdate validates and stages a configuration revision. Successive calls
// before the next cycle replace the pending revision wholesale.
func (e *Engine) ApplyUpdate(u *Update) error {
	if u.Loop == nil && u.Fusion == nil && u.Sizing == nil && u.Profiles == nil {
		return fmt.Errorf("empty config update")
	}
	if u.Loop != nil {
		if err := u.Loop.Validate(); err != nil {
			return err
		}
	}
	if u.Fusion != nil {
		if err := u.Fusion.Validate(e.deps.Fuser.SourceNames()); err != nil {
			return err
		}
	}
	if u.Sizing != nil {
		if err := u.Sizing.Validate(); err != nil {
			return err
		}
	}
	if u.Profiles != nil {
		clamped, err := u.Profiles.Validate()
		if err != nil {
			return err
		}
		u.Profiles = clamped
	}
	e.mu.Lock()
	e.pending = u
	e.mu.Unlock()
	e.logger.Info().
		Bool("loop", u.Loop != nil).
		Bool("fusion", u.Fusion != nil).
		Bool("sizing", u.Sizing != nil).
		Bool("profiles", u.Profiles != nil).
		Msg("config staged for next cycle")
	return nil
}

func (e *Engine) swapConfig() {
	e.mu.Lock()
	u := e.pending
	e.pending = nil
	if u != nil && u.Loop != nil {
		e.config = u.Loop
	}
	e.mu.Unlock()
	if u == nil {
		return
	}
	if u.Fusion != nil {
		e.deps.Fuser.SetConfig(u.Fusion)
	}
	if u.Sizing != nil {
		e.deps.Sizer.SetConfig(u.Sizing)
	}
	if u.Profiles != nil {
		e.deps.Profiles = u.Profiles
	}
	e.logger.Info().Strs("symbols", e.config.Symbols).Msg("staged config applied")
	e.deps.Bus.Publish(events.Event{Type: events.EventConfigApplied, Data: map[string]interface{}{
		"symbols":   e.config.Symbols,
		"timeframe": e.config.Timeframe,
	}})
}

// cycle is one full pass: positions first so exits and protective moves are
// never starved by slow signal evaluation, then entries.
func (e *Engine) cycle(ctx context.Context) {
	e.swapConfig()

	e.managePositions(ctx)

	for _, symbol := range e.config.Symbols {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}
		e.evaluateSymbol(ctx, symbol)
	}

	e.publishPositions()

	e.mu.Lock()
	e.cycles++
	e.lastCycle = time.Now().UTC()
	e.mu.Unlock()
}

// recover rebuilds the tracker from broker records, enriched with the
// engine-side state the store mirrored before the restart.
func (e *Engine) recover(ctx context.Context) {
	records, err := e.deps.Client.ListOpenPositions(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("recovery: cannot list open positions")
		return
	}
	if len(records) == 0 {
		return
	}

	saved := make(map[int64]*database.PositionState)
	if e.deps.States != nil {
		for _, st := range e.deps.States.LoadAll(ctx) {
			saved[st.Ticket] = st
		}
	}

	for _, rec := range records {
		st := saved[rec.Ticket]
		stopDist := fallbackStopDistance(rec)
		groupID := ""
		if st != nil {
			if st.StopDistance > 0 {
				stopDist = st.StopDistance
			}
			groupID = st.GroupID
		}
		p := position.NewPosition(rec, stopDist, groupID)
		if st != nil {
			p.InitialStop = st.InitialStop
			p.InitialTP = st.InitialTP
			p.BreakevenApplied = st.BreakevenApplied
			p.TrailingActive = st.TrailingActive
			if st.HighWaterMark != 0 {
				p.HighWaterMark = st.HighWaterMark
			}
		}
		e.tracker.Track(p)
		e.logger.Info().
			Int64("ticket", rec.Ticket).
			Str("symbol", rec.Symbol).
			Bool("state_recovered", st != nil).
			Msg("recovered open position")
	}
}

// fallbackStopDistance derives a stop distance from the live stop when no
// mirrored state survives a restart.
func fallbackStopDistance(rec broker.PositionRecord) float64 {
	if rec.StopLoss <= 0 {
		return 0
	}
	if rec.Direction == broker.Buy {
		return rec.EntryPrice - rec.StopLoss
	}
	return rec.StopLoss - rec.EntryPrice
}

func (e *Engine) saveState(ctx context.Context, p *position.Position) {
	if e.deps.States == nil {
		return
	}
	e.deps.States.Save(ctx, &database.PositionState{
		Ticket:           p.Ticket,
		Symbol:           p.Symbol,
		Direction:        string(p.Direction),
		EntryPrice:       p.EntryPrice,
		Quantity:         p.Quantity,
		StopLoss:         p.StopLoss,
		TakeProfit:       p.TakeProfit,
		InitialStop:      p.InitialStop,
		InitialTP:        p.InitialTP,
		StopDistance:     p.StopDistance,
		BreakevenApplied: p.BreakevenApplied,
		TrailingActive:   p.TrailingActive,
		HighWaterMark:    p.HighWaterMark,
		GroupID:          p.GroupID,
		OpenTime:         p.OpenTime,
	})
}

func (e *Engine) logAdjustment(adj position.Adjustment) {
	e.mu.Lock()
	e.adjustLog = append(e.adjustLog, adj)
	if len(e.adjustLog) > 500 {
		e.adjustLog = e.adjustLog[len(e.adjustLog)-400:]
	}
	e.mu.Unlock()
}
