package broker

import "time"

// Direction of a trade or signal.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Bar is a single OHLCV candle.
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// AccountInfo holds the account state used for sizing decisions.
type AccountInfo struct {
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	MarginLevel float64 `json:"margin_level"`
}

// SymbolSpec holds per-symbol trading constraints supplied by the venue.
type SymbolSpec struct {
	Symbol    string  `json:"symbol"`
	TickSize  float64 `json:"tick_size"`  // Smallest price increment
	TickValue float64 `json:"tick_value"` // Account-currency value of one tick per lot
	MinLot    float64 `json:"min_lot"`
	MaxLot    float64 `json:"max_lot"`
	LotStep   float64 `json:"lot_step"`
	Spread    float64 `json:"spread"` // Typical spread in price units

	// TPCap limits the reward distance per unit of rung scale, to avoid
	// unreachable targets on highly volatile instruments. Zero disables it.
	TPCap float64 `json:"tp_cap"`

	// FixedStopDistance overrides the ATR-derived stop distance when > 0.
	FixedStopDistance float64 `json:"fixed_stop_distance"`
}

// PositionRecord is an open position as reported by the venue.
type PositionRecord struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenTime   time.Time `json:"open_time"`
}

// UnrealizedPnL returns the open profit in price units per unit quantity,
// positive when the position is in the money.
func (p PositionRecord) UnrealizedPnL(currentPrice float64) float64 {
	if p.Direction == Buy {
		return currentPrice - p.EntryPrice
	}
	return p.EntryPrice - currentPrice
}

// OrderRequest describes a new market order.
type OrderRequest struct {
	Symbol     string
	Direction  Direction
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}
