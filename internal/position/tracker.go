package position

import (
	"sync"

	"github.com/rs/zerolog"
)

// Tracker is the in-memory table of managed positions, keyed by broker
// ticket. The trading loop is its only client: the loop alone mutates the
// records and alone takes snapshots, publishing the deep copies for any
// other goroutine to read.
type Tracker struct {
	mu        sync.RWMutex
	positions map[int64]*Position
	logger    zerolog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		positions: make(map[int64]*Position),
		logger:    logger.With().Str("component", "position_tracker").Logger(),
	}
}

// Track adds or replaces a managed position.
func (t *Tracker) Track(p *Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.Ticket] = p
	t.logger.Info().Int64("ticket", p.Ticket).Str("symbol", p.Symbol).
		Str("direction", string(p.Direction)).Float64("entry", p.EntryPrice).
		Float64("qty", p.Quantity).Msg("position tracked")
}

// Get returns the live record for mutation by the trading loop, or nil.
func (t *Tracker) Get(ticket int64) *Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[ticket]
}

// Remove forgets a closed position and returns its final record.
func (t *Tracker) Remove(ticket int64) *Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[ticket]
	if !ok {
		return nil
	}
	delete(t.positions, ticket)
	t.logger.Info().Int64("ticket", ticket).Str("symbol", p.Symbol).Msg("position untracked")
	return p
}

// Tickets returns the tracked tickets in unspecified order.
func (t *Tracker) Tickets() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int64, 0, len(t.positions))
	for ticket := range t.positions {
		out = append(out, ticket)
	}
	return out
}

// Count returns the number of tracked positions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// CountForSymbol returns the number of tracked positions on one symbol.
func (t *Tracker) CountForSymbol(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.positions {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

// Group returns the live members of a split group.
func (t *Tracker) Group(groupID string) []*Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Position
	for _, p := range t.positions {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot returns deep copies of every tracked position.
func (t *Tracker) Snapshot() []*Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p.Clone())
	}
	return out
}
