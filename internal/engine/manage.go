package engine

import (
	"context"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/events"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/patterns"
	"adaptive-trading-bot/internal/position"
)

// managePositions syncs the tracker with the broker, then walks every open
// position through the stop, target and lifecycle managers. Group members
// share the tightest stop afterwards.
func (e *Engine) managePositions(ctx context.Context) {
	records, err := e.deps.Client.ListOpenPositions(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("cannot list open positions, management skipped this cycle")
		e.publishBrokerHealth()
		return
	}
	e.reconcile(ctx, records)

	if e.tracker.Count() == 0 {
		return
	}

	// One snapshot per symbol serves every position on it.
	contexts := make(map[string]*position.Context)
	for _, p := range e.tracker.Snapshot() {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		mctx, ok := contexts[p.Symbol]
		if !ok {
			mctx = e.buildContext(ctx, p.Symbol)
			contexts[p.Symbol] = mctx
		}
		if mctx == nil {
			continue
		}

		live := e.tracker.Get(p.Ticket)
		if live == nil {
			continue
		}
		e.managePosition(ctx, live, mctx)
	}

	e.propagateGroupStops(ctx, contexts)
}

// publishBrokerHealth surfaces the transport's own view of connectivity.
// A client without health tracking is reported degraded on the strength of
// the one failure observed.
func (e *Engine) publishBrokerHealth() {
	if hr, ok := e.deps.Client.(broker.HealthReporter); ok {
		e.deps.Bus.PublishBrokerHealth(string(hr.Health()), hr.ConsecutiveFailures())
		return
	}
	e.deps.Bus.PublishBrokerHealth(string(broker.HealthDegraded), 1)
}

// reconcile drops tracked positions the broker no longer reports (stop hit,
// target hit, manual close) and adopts unknown broker positions.
func (e *Engine) reconcile(ctx context.Context, records []broker.PositionRecord) {
	open := make(map[int64]broker.PositionRecord, len(records))
	for _, rec := range records {
		open[rec.Ticket] = rec
	}

	for _, ticket := range e.tracker.Tickets() {
		if _, still := open[ticket]; still {
			continue
		}
		p := e.tracker.Remove(ticket)
		if p == nil {
			continue
		}
		exitPrice, err := e.deps.Client.GetCurrentPrice(ctx, p.Symbol)
		if err != nil {
			exitPrice = p.EntryPrice
		}
		pnl := p.UnrealizedPnL(exitPrice)
		e.logger.Info().
			Int64("ticket", ticket).
			Str("symbol", p.Symbol).
			Float64("pnl", pnl).
			Msg("position closed at broker")
		e.deps.Bus.PublishPositionClosed(ticket, p.Symbol, "broker_close", p.EntryPrice, exitPrice, p.Quantity, pnl)
		if e.deps.Repo != nil {
			if err := e.deps.Repo.RecordClose(ctx, ticket, exitPrice, pnl, time.Now().UTC(), "broker_close"); err != nil {
				e.logger.Warn().Err(err).Int64("ticket", ticket).Msg("trade close not persisted")
			}
		}
		if e.deps.States != nil {
			e.deps.States.Delete(ctx, ticket)
		}
	}

	for _, rec := range records {
		if e.tracker.Get(rec.Ticket) != nil {
			p := e.tracker.Get(rec.Ticket)
			// The broker is authoritative for levels it executed.
			p.StopLoss = rec.StopLoss
			p.TakeProfit = rec.TakeProfit
			continue
		}
		p := position.NewPosition(rec, fallbackStopDistance(rec), "")
		e.tracker.Track(p)
		e.logger.Info().Int64("ticket", rec.Ticket).Str("symbol", rec.Symbol).Msg("adopted externally opened position")
	}
}

// buildContext fetches market data for a symbol's management pass. A nil
// return means this symbol's positions are skipped this cycle.
func (e *Engine) buildContext(ctx context.Context, symbol string) *position.Context {
	price, err := e.deps.Client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("no price, positions unmanaged this cycle")
		return nil
	}
	spec, err := e.deps.Client.GetSymbolSpec(ctx, symbol)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("no symbol spec, positions unmanaged this cycle")
		return nil
	}

	mctx := &position.Context{
		Price: price,
		Spec:  *spec,
		Now:   time.Now().UTC(),
	}

	// Indicator context is best effort: the managers degrade to their
	// price-only detectors when history is unavailable.
	bars, err := e.deps.Client.GetHistory(ctx, symbol, e.config.Timeframe, e.config.HistoryBars)
	if err != nil {
		e.logger.Debug().Err(err).Str("symbol", symbol).Msg("no history for management context")
		return mctx
	}
	snap := market.NewSnapshot(symbol, e.config.Timeframe, bars, e.indicators)
	mctx.Snapshot = snap
	mctx.Regime = e.deps.Classifier.Classify(snap)
	e.mu.RLock()
	mctx.PrevRegime = e.lastRegime[symbol]
	e.mu.RUnlock()
	for _, pat := range e.deps.Patterns.Detect(symbol, e.config.Timeframe, bars) {
		mctx.Patterns = append(mctx.Patterns, position.PatternHint{
			Bullish:      pat.Bias == patterns.Bullish,
			Continuation: pat.Continuation(),
			Confidence:   pat.Confidence,
			Kind:         string(pat.Kind),
		})
	}
	return mctx
}

// managePosition applies one cycle of protective logic in fixed order:
// high-water tracking, lifecycle (exit, breakeven, trailing), stop
// tightening, target extension.
func (e *Engine) managePosition(ctx context.Context, p *position.Position, mctx *position.Context) {
	p.UpdateHighWater(mctx.Price)

	profile := e.deps.Profiles.For(mctx.Regime)
	if action, ok := e.deps.Lifecycle.Evaluate(p, mctx, profile.TrailActivation, profile.TrailDistance); ok {
		if action.Close {
			if e.closePosition(ctx, p, mctx, string(position.AdjustTimeExit)) {
				adj := position.Adjustment{
					Ticket: p.Ticket,
					Symbol: p.Symbol,
					Kind:   position.AdjustTimeExit,
					Reason: action.Reason,
					Time:   time.Now().UTC(),
				}
				e.logAdjustment(adj)
				e.persistAdjustment(ctx, adj)
			}
			return
		}
		e.applyStop(ctx, p, mctx, action.Stop, action.Kind, action.Reason)
	}

	if prop, ok := e.deps.Stops.Evaluate(p, mctx); ok {
		e.applyStop(ctx, p, mctx, prop.Stop, position.AdjustStopTighten, prop.Reason)
	}

	if prop, ok := e.deps.TPs.Evaluate(p, mctx); ok {
		e.applyTakeProfit(ctx, p, prop.TakeProfit, prop.Reason)
	}

	e.saveState(ctx, p)
}

// propagateGroupStops enforces the shared-stop invariant: every member of a
// split group carries the tightest stop any member reached.
func (e *Engine) propagateGroupStops(ctx context.Context, contexts map[string]*position.Context) {
	seen := make(map[string]bool)
	for _, p := range e.tracker.Snapshot() {
		if p.GroupID == "" || seen[p.GroupID] {
			continue
		}
		seen[p.GroupID] = true

		members := e.tracker.Group(p.GroupID)
		shared, ok := position.SharedStop(members)
		if !ok {
			continue
		}
		mctx := contexts[p.Symbol]
		for _, m := range members {
			if !m.Tightens(shared) {
				continue
			}
			live := e.tracker.Get(m.Ticket)
			if live == nil || mctx == nil {
				continue
			}
			e.applyStop(ctx, live, mctx, shared, position.AdjustStopTighten, "group shared stop")
		}
	}
}

func (e *Engine) applyStop(ctx context.Context, p *position.Position, mctx *position.Context, stop float64, kind position.AdjustmentKind, reason string) {
	if !p.Tightens(stop) {
		return
	}
	if err := e.deps.Client.ModifyPosition(ctx, p.Ticket, stop, 0); err != nil {
		e.logger.Error().Err(err).Int64("ticket", p.Ticket).Float64("stop", stop).Msg("stop modify rejected")
		e.deps.Bus.PublishError("engine", "stop modify rejected", err)
		return
	}
	from := p.StopLoss
	p.StopLoss = stop
	p.Adjustments++
	p.LastAdjusted = time.Now().UTC()
	if kind == position.AdjustBreakeven {
		// The move is one-shot; the flag survives restarts via the state store.
		p.BreakevenApplied = true
	}

	adj := position.Adjustment{
		Ticket: p.Ticket,
		Symbol: p.Symbol,
		Kind:   kind,
		From:   from,
		To:     stop,
		Reason: reason,
		Time:   p.LastAdjusted,
	}
	e.logAdjustment(adj)
	e.persistAdjustment(ctx, adj)
	e.deps.Bus.PublishAdjustment(eventForKind(kind), p.Ticket, p.Symbol, from, stop, reason)
	e.logger.Info().
		Int64("ticket", p.Ticket).
		Str("kind", string(kind)).
		Float64("from", from).
		Float64("to", stop).
		Str("reason", reason).
		Msg("stop adjusted")
	e.saveState(ctx, p)
}

func (e *Engine) applyTakeProfit(ctx context.Context, p *position.Position, tp float64, reason string) {
	if !p.Extends(tp) {
		return
	}
	if err := e.deps.Client.ModifyPosition(ctx, p.Ticket, 0, tp); err != nil {
		e.logger.Error().Err(err).Int64("ticket", p.Ticket).Float64("tp", tp).Msg("target modify rejected")
		e.deps.Bus.PublishError("engine", "target modify rejected", err)
		return
	}
	from := p.TakeProfit
	p.TakeProfit = tp
	p.Adjustments++
	p.LastAdjusted = time.Now().UTC()

	adj := position.Adjustment{
		Ticket: p.Ticket,
		Symbol: p.Symbol,
		Kind:   position.AdjustTPExtend,
		From:   from,
		To:     tp,
		Reason: reason,
		Time:   p.LastAdjusted,
	}
	e.logAdjustment(adj)
	e.persistAdjustment(ctx, adj)
	e.deps.Bus.PublishAdjustment(events.EventTPExtended, p.Ticket, p.Symbol, from, tp, reason)
	e.logger.Info().
		Int64("ticket", p.Ticket).
		Float64("from", from).
		Float64("to", tp).
		Str("reason", reason).
		Msg("target extended")
	e.saveState(ctx, p)
}

func (e *Engine) closePosition(ctx context.Context, p *position.Position, mctx *position.Context, reason string) bool {
	if err := e.deps.Client.ClosePosition(ctx, p.Ticket, 0); err != nil {
		e.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("close rejected")
		e.deps.Bus.PublishError("engine", "close rejected", err)
		return false
	}
	e.tracker.Remove(p.Ticket)
	pnl := p.UnrealizedPnL(mctx.Price)
	e.deps.Bus.PublishPositionClosed(p.Ticket, p.Symbol, reason, p.EntryPrice, mctx.Price, p.Quantity, pnl)
	if e.deps.Repo != nil {
		if err := e.deps.Repo.RecordClose(ctx, p.Ticket, mctx.Price, pnl, time.Now().UTC(), reason); err != nil {
			e.logger.Warn().Err(err).Int64("ticket", p.Ticket).Msg("trade close not persisted")
		}
	}
	if e.deps.States != nil {
		e.deps.States.Delete(ctx, p.Ticket)
	}
	e.logger.Info().
		Int64("ticket", p.Ticket).
		Str("symbol", p.Symbol).
		Str("reason", reason).
		Float64("pnl", pnl).
		Msg("position closed")
	return true
}

func (e *Engine) persistAdjustment(ctx context.Context, adj position.Adjustment) {
	if e.deps.Repo == nil {
		return
	}
	err := e.deps.Repo.RecordAdjustment(ctx, &database.AdjustmentRecord{
		Ticket:    adj.Ticket,
		Symbol:    adj.Symbol,
		Kind:      string(adj.Kind),
		FromValue: adj.From,
		ToValue:   adj.To,
		Reason:    adj.Reason,
		AppliedAt: adj.Time,
	})
	if err != nil {
		e.logger.Warn().Err(err).Int64("ticket", adj.Ticket).Msg("adjustment not persisted")
	}
}

func eventForKind(kind position.AdjustmentKind) events.EventType {
	switch kind {
	case position.AdjustBreakeven:
		return events.EventBreakevenSet
	case position.AdjustTrailing:
		return events.EventTrailingMoved
	default:
		return events.EventStopTightened
	}
}
