package database

import (
	"context"
	"fmt"
	"time"
)

// TradeRecord is one persisted trade row.
type TradeRecord struct {
	ID         int64
	Ticket     int64
	Symbol     string
	Direction  string
	EntryPrice float64
	ExitPrice  *float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Regime     string
	Score      float64
	Confidence float64
	GroupID    string
	EntryTime  time.Time
	ExitTime   *time.Time
	ExitReason string
	PnL        *float64
	Status     string
}

// AdjustmentRecord is one persisted stop or target change.
type AdjustmentRecord struct {
	ID        int64
	Ticket    int64
	Symbol    string
	Kind      string
	FromValue float64
	ToValue   float64
	Reason    string
	AppliedAt time.Time
}

// Repository persists trades and adjustments.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// RecordOpen inserts the row for a freshly opened trade.
func (r *Repository) RecordOpen(ctx context.Context, t *TradeRecord) error {
	query := `
		INSERT INTO trades (ticket, symbol, direction, entry_price, quantity,
			stop_loss, take_profit, regime, score, confidence, group_id, entry_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'OPEN')
		RETURNING id`
	err := r.db.Pool.QueryRow(ctx, query,
		t.Ticket, t.Symbol, t.Direction, t.EntryPrice, t.Quantity,
		t.StopLoss, t.TakeProfit, t.Regime, t.Score, t.Confidence, t.GroupID, t.EntryTime,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("record trade open: %w", err)
	}
	return nil
}

// RecordClose finalizes the open row for a ticket.
func (r *Repository) RecordClose(ctx context.Context, ticket int64, exitPrice, pnl float64, exitTime time.Time, reason string) error {
	query := `
		UPDATE trades
		SET exit_price = $2, pnl = $3, exit_time = $4, exit_reason = $5,
			status = 'CLOSED', updated_at = CURRENT_TIMESTAMP
		WHERE ticket = $1 AND status = 'OPEN'`
	if _, err := r.db.Pool.Exec(ctx, query, ticket, exitPrice, pnl, exitTime, reason); err != nil {
		return fmt.Errorf("record trade close: %w", err)
	}
	return nil
}

// RecordAdjustment appends one adjustment row.
func (r *Repository) RecordAdjustment(ctx context.Context, a *AdjustmentRecord) error {
	query := `
		INSERT INTO adjustments (ticket, symbol, kind, from_value, to_value, reason, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.Pool.QueryRow(ctx, query,
		a.Ticket, a.Symbol, a.Kind, a.FromValue, a.ToValue, a.Reason, a.AppliedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("record adjustment: %w", err)
	}
	return nil
}

// RecordRegimeTransition appends one regime change row.
func (r *Repository) RecordRegimeTransition(ctx context.Context, symbol, from, to string, strength, volatility float64, observedAt time.Time) error {
	query := `
		INSERT INTO regime_transitions (symbol, from_regime, to_regime, strength, volatility, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Pool.Exec(ctx, query, symbol, from, to, strength, volatility, observedAt); err != nil {
		return fmt.Errorf("record regime transition: %w", err)
	}
	return nil
}

// AdjustmentsForTicket returns a ticket's adjustment history, oldest first.
func (r *Repository) AdjustmentsForTicket(ctx context.Context, ticket int64) ([]AdjustmentRecord, error) {
	query := `
		SELECT id, ticket, symbol, kind, from_value, to_value, reason, applied_at
		FROM adjustments WHERE ticket = $1 ORDER BY applied_at ASC`
	rows, err := r.db.Pool.Query(ctx, query, ticket)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var out []AdjustmentRecord
	for rows.Next() {
		var a AdjustmentRecord
		if err := rows.Scan(&a.ID, &a.Ticket, &a.Symbol, &a.Kind, &a.FromValue, &a.ToValue, &a.Reason, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentTrades returns the latest closed trades.
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	query := `
		SELECT id, ticket, symbol, direction, entry_price, exit_price, quantity,
			stop_loss, take_profit, regime, score, confidence, group_id,
			entry_time, exit_time, COALESCE(exit_reason, ''), pnl, status
		FROM trades WHERE status = 'CLOSED'
		ORDER BY exit_time DESC LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.Ticket, &t.Symbol, &t.Direction, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.StopLoss, &t.TakeProfit, &t.Regime, &t.Score, &t.Confidence,
			&t.GroupID, &t.EntryTime, &t.ExitTime, &t.ExitReason, &t.PnL, &t.Status); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PerformanceSummary aggregates closed trades into headline stats.
type PerformanceSummary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	WinRate       float64 `json:"win_rate"`
}

// Performance summarizes closed trades since a cutoff.
func (r *Repository) Performance(ctx context.Context, since time.Time) (*PerformanceSummary, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE pnl > 0),
			COALESCE(SUM(pnl), 0)
		FROM trades WHERE status = 'CLOSED' AND exit_time >= $1`
	var s PerformanceSummary
	if err := r.db.Pool.QueryRow(ctx, query, since).Scan(&s.TotalTrades, &s.WinningTrades, &s.TotalPnL); err != nil {
		return nil, fmt.Errorf("query performance: %w", err)
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}
	return &s, nil
}
