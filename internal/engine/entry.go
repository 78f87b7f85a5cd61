package engine

import (
	"context"
	"time"

	"adaptive-trading-bot/internal/broker"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/position"
	"adaptive-trading-bot/internal/regime"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/signal"
)

// evaluateSymbol runs the entry pipeline for one symbol: history, regime,
// fused decision, sizing, split planning, order placement.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string) {
	bars, err := e.deps.Client.GetHistory(ctx, symbol, e.config.Timeframe, e.config.HistoryBars)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("history fetch failed, skipping symbol")
		e.deps.Bus.PublishError("engine", "history fetch failed for "+symbol, err)
		return
	}

	snap := market.NewSnapshot(symbol, e.config.Timeframe, bars, e.indicators)
	reg := e.deps.Classifier.Classify(snap)
	e.noteRegime(ctx, symbol, reg)

	if reg.Insufficient {
		e.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("insufficient history, no entry")
		return
	}

	decision, err := e.deps.Fuser.Fuse(ctx, &signal.Input{Snapshot: snap, Regime: reg})
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("fusion failed")
		return
	}
	e.noteDecision(decision)
	e.deps.Bus.PublishDecision(symbol, string(decision.Direction), decision.Score, decision.Confidence, decision.Degradation)

	if !decision.Actionable() {
		return
	}
	if !e.hasCapacity(symbol) {
		e.logger.Debug().Str("symbol", symbol).Msg("position limits reached, decision not traded")
		return
	}

	e.openFromDecision(ctx, symbol, snap, reg, decision)
}

func (e *Engine) hasCapacity(symbol string) bool {
	if e.config.MaxOpenPositions > 0 && e.tracker.Count() >= e.config.MaxOpenPositions {
		return false
	}
	if e.config.MaxPositionsPerSymbol > 0 && e.tracker.CountForSymbol(symbol) >= e.config.MaxPositionsPerSymbol {
		return false
	}
	return true
}

func (e *Engine) openFromDecision(ctx context.Context, symbol string, snap *market.Snapshot, reg *regime.MarketRegime, decision *signal.Decision) {
	account, err := e.deps.Client.GetAccountInfo(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("account info fetch failed, entry skipped")
		return
	}
	spec, err := e.deps.Client.GetSymbolSpec(ctx, symbol)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", symbol).Msg("symbol spec fetch failed, entry skipped")
		return
	}
	price, err := e.deps.Client.GetCurrentPrice(ctx, symbol)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", symbol).Msg("price fetch failed, entry skipped")
		return
	}

	profile := e.deps.Profiles.For(reg)
	plan, err := e.deps.Sizer.Size(*account, *spec, decision.EntrySide(), price, snap.ATR, decision.Confidence, profile)
	if err != nil {
		e.logger.Info().Err(err).Str("symbol", symbol).Msg("sizing produced no tradable quantity")
		return
	}

	children, groupID := e.deps.Planner.Plan(plan.Quantity, plan.TakeProfits, *spec)

	if e.config.DryRun {
		e.logger.Info().
			Str("symbol", symbol).
			Str("direction", string(plan.Direction)).
			Float64("quantity", plan.Quantity).
			Float64("stop", plan.StopLoss).
			Int("children", len(children)).
			Msg("dry run: order suppressed")
		return
	}

	for i, child := range children {
		rec, err := e.deps.Client.PlaceOrder(ctx, orderRequest(plan, child, groupID))
		if err != nil {
			e.logger.Error().Err(err).
				Str("symbol", symbol).
				Int("child", i).
				Msg("order rejected")
			e.deps.Bus.PublishError("engine", "order rejected for "+symbol, err)
			// Children already placed stay; their shared stop still protects them.
			continue
		}

		p := position.NewPosition(*rec, plan.StopDistance, groupID)
		e.tracker.Track(p)
		e.saveState(ctx, p)
		e.deps.Bus.PublishPositionOpened(rec.Ticket, symbol, string(rec.Direction), rec.EntryPrice, rec.Quantity, rec.StopLoss, rec.TakeProfit, groupID)
		e.recordOpen(ctx, p, reg, decision)

		e.logger.Info().
			Int64("ticket", rec.Ticket).
			Str("symbol", symbol).
			Str("direction", string(rec.Direction)).
			Float64("quantity", rec.Quantity).
			Float64("entry", rec.EntryPrice).
			Float64("stop", rec.StopLoss).
			Float64("tp", rec.TakeProfit).
			Str("group", groupID).
			Msg("position opened")
	}
}

func (e *Engine) recordOpen(ctx context.Context, p *position.Position, reg *regime.MarketRegime, decision *signal.Decision) {
	if e.deps.Repo == nil {
		return
	}
	err := e.deps.Repo.RecordOpen(ctx, &database.TradeRecord{
		Ticket:     p.Ticket,
		Symbol:     p.Symbol,
		Direction:  string(p.Direction),
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Regime:     string(reg.Type),
		Score:      decision.Score,
		Confidence: decision.Confidence,
		GroupID:    p.GroupID,
		EntryTime:  p.OpenTime,
	})
	if err != nil {
		e.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("trade open not persisted")
	}
}

// noteRegime publishes and persists regime transitions. The first observation
// for a symbol is not a transition.
func (e *Engine) noteRegime(ctx context.Context, symbol string, reg *regime.MarketRegime) {
	e.mu.Lock()
	prev, seen := e.lastRegime[symbol]
	e.lastRegime[symbol] = reg.Type
	e.mu.Unlock()

	if !seen || prev == reg.Type {
		return
	}
	e.logger.Info().
		Str("symbol", symbol).
		Str("from", string(prev)).
		Str("to", string(reg.Type)).
		Float64("strength", reg.Strength).
		Msg("regime transition")
	e.deps.Bus.PublishRegimeChanged(symbol, string(prev), string(reg.Type), reg.Strength, reg.VolatilityRatio)
	if e.deps.Repo != nil {
		if err := e.deps.Repo.RecordRegimeTransition(ctx, symbol, string(prev), string(reg.Type), reg.Strength, reg.VolatilityRatio, time.Now().UTC()); err != nil {
			e.logger.Warn().Err(err).Msg("regime transition not persisted")
		}
	}
}

func (e *Engine) noteDecision(d *signal.Decision) {
	e.mu.Lock()
	e.decisions = append(e.decisions, d)
	if len(e.decisions) > 200 {
		e.decisions = e.decisions[len(e.decisions)-150:]
	}
	e.mu.Unlock()
}

func orderRequest(plan *risk.OrderPlan, child position.ChildOrder, groupID string) broker.OrderRequest {
	return broker.OrderRequest{
		Symbol:     plan.Symbol,
		Direction:  plan.Direction,
		Quantity:   child.Quantity,
		StopLoss:   plan.StopLoss,
		TakeProfit: child.TakeProfit,
		Comment:    groupID,
	}
}
