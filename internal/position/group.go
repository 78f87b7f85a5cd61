package position

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"adaptive-trading-bot/internal/broker"
)

// GroupConfig controls split-order entry. A sized entry is divided into
// children taking successive rungs of the take-profit ladder while sharing a
// single stop; the near rung carries the largest share.
type GroupConfig struct {
	Enabled bool      `json:"enabled"`
	Splits  []float64 `json:"splits"` // Quantity shares per ladder rung. Default [0.4, 0.3, 0.3]
}

// DefaultGroupConfig returns the standard 40/30/30 split.
func DefaultGroupConfig() *GroupConfig {
	return &GroupConfig{
		Enabled: true,
		Splits:  []float64{0.4, 0.3, 0.3},
	}
}

// Validate checks the shares form a distribution.
func (c *GroupConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Splits) == 0 {
		return fmt.Errorf("group: splits must not be empty")
	}
	var sum float64
	for i, s := range c.Splits {
		if s <= 0 {
			return fmt.Errorf("group: split %d must be positive, got %v", i, s)
		}
		sum += s
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("group: splits sum to %v, want 1.0", sum)
	}
	return nil
}

// ChildOrder is one member of a planned split entry.
type ChildOrder struct {
	Quantity   float64
	TakeProfit float64
}

// Planner divides sized entries into split groups.
type Planner struct {
	config *GroupConfig
}

// NewPlanner creates a group planner.
func NewPlanner(config *GroupConfig) *Planner {
	if config == nil {
		config = DefaultGroupConfig()
	}
	return &Planner{config: config}
}

// Plan divides quantity across the take-profit rungs. Children are floored
// to the lot step; the rounding remainder goes to the first child, and a
// child that would fall below the minimum lot folds into its predecessor.
// When splitting is disabled or the quantity cannot support more than one
// child, a single full-size child on the nearest rung is returned with an
// empty group id.
func (pl *Planner) Plan(quantity float64, takeProfits []float64, spec broker.SymbolSpec) ([]ChildOrder, string) {
	if len(takeProfits) == 0 {
		return nil, ""
	}
	single := []ChildOrder{{Quantity: quantity, TakeProfit: takeProfits[0]}}
	if !pl.config.Enabled || len(takeProfits) < 2 {
		return single, ""
	}

	n := len(pl.config.Splits)
	if len(takeProfits) < n {
		n = len(takeProfits)
	}

	children := make([]ChildOrder, 0, n)
	var allocated float64
	for i := 0; i < n; i++ {
		qty := quantity * pl.config.Splits[i]
		if spec.LotStep > 0 {
			qty = math.Floor(qty/spec.LotStep+1e-9) * spec.LotStep
		}
		if qty < spec.MinLot {
			// Fold the dust into the previous child.
			if len(children) > 0 && qty > 0 {
				children[len(children)-1].Quantity += qty
				allocated += qty
			}
			continue
		}
		children = append(children, ChildOrder{Quantity: qty, TakeProfit: takeProfits[i]})
		allocated += qty
	}

	if len(children) < 2 {
		return single, ""
	}

	// Rounding remainder onto the first child keeps total size intact.
	if rem := quantity - allocated; rem > 1e-9 {
		children[0].Quantity += rem
	}
	return children, uuid.NewString()
}

// SharedStop returns the tightest stop across live group members, which is
// the stop the whole group must converge to. Stops diverge only transiently,
// between a member's modification succeeding and its siblings' applying.
func SharedStop(members []*Position) (float64, bool) {
	if len(members) == 0 {
		return 0, false
	}
	stop := members[0].StopLoss
	for _, p := range members[1:] {
		if tighter(p, p.StopLoss, stop) {
			stop = p.StopLoss
		}
	}
	return stop, true
}
