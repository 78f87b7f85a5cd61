package broker

import (
	"context"
	"sync"
	"time"
)

// MockClient implements the Client interface in memory for dry-run mode and
// tests. History, specs and prices are scripted by the caller; orders mutate
// an in-memory position table.
type MockClient struct {
	mu          sync.RWMutex
	history     map[string][]Bar // key: symbol:timeframe
	historyErr  map[string]error
	specs       map[string]*SymbolSpec
	prices      map[string]float64
	positions   map[int64]*PositionRecord
	account     AccountInfo
	nextTicket  int64
	placeErr    error
	modifyErr   error
	closeErr    error
	connectErr  error

	// Call journals inspected by tests.
	Modifications []ModifyCall
	Closes        []CloseCall
	Orders        []OrderRequest
}

// ModifyCall records one ModifyPosition invocation.
type ModifyCall struct {
	Ticket     int64
	StopLoss   float64
	TakeProfit float64
}

// CloseCall records one ClosePosition invocation.
type CloseCall struct {
	Ticket   int64
	Quantity float64
}

// NewMockClient creates an empty mock with the given starting balance.
func NewMockClient(balance float64) *MockClient {
	return &MockClient{
		history:    make(map[string][]Bar),
		historyErr: make(map[string]error),
		specs:      make(map[string]*SymbolSpec),
		prices:     make(map[string]float64),
		positions:  make(map[int64]*PositionRecord),
		account:    AccountInfo{Balance: balance, Equity: balance, MarginLevel: 100},
		nextTicket: 1000,
	}
}

// SetHistory scripts the bars returned for a symbol/timeframe.
func (c *MockClient) SetHistory(symbol, timeframe string, bars []Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[symbol+":"+timeframe] = bars
}

// SetHistoryError scripts a history failure for a symbol.
func (c *MockClient) SetHistoryError(symbol string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyErr[symbol] = err
}

// SetSpec scripts the symbol spec.
func (c *MockClient) SetSpec(spec *SymbolSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs[spec.Symbol] = spec
}

// SetPrice scripts the current price for a symbol.
func (c *MockClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

// SetConnectError makes every call fail with the given transport error.
func (c *MockClient) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// SetPlaceError scripts a PlaceOrder failure.
func (c *MockClient) SetPlaceError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.placeErr = err
}

// SetModifyError scripts a ModifyPosition failure.
func (c *MockClient) SetModifyError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modifyErr = err
}

// SeedPosition installs an open position directly, as if adopted at startup.
func (c *MockClient) SeedPosition(pos PositionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := pos
	c.positions[pos.Ticket] = &p
	if pos.Ticket >= c.nextTicket {
		c.nextTicket = pos.Ticket + 1
	}
}

// GetHistory implements Client.
func (c *MockClient) GetHistory(ctx context.Context, symbol, timeframe string, barCount int) ([]Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	if err, ok := c.historyErr[symbol]; ok && err != nil {
		return nil, err
	}
	bars, ok := c.history[symbol+":"+timeframe]
	if !ok {
		return nil, ErrDataUnavailable
	}
	if len(bars) > barCount {
		bars = bars[len(bars)-barCount:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// GetAccountInfo implements Client.
func (c *MockClient) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	info := c.account
	return &info, nil
}

// GetSymbolSpec implements Client.
func (c *MockClient) GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	if spec, ok := c.specs[symbol]; ok {
		s := *spec
		return &s, nil
	}
	return nil, ErrDataUnavailable
}

// GetCurrentPrice implements Client.
func (c *MockClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connectErr != nil {
		return 0, c.connectErr
	}
	if price, ok := c.prices[symbol]; ok {
		return price, nil
	}
	return 0, ErrDataUnavailable
}

// PlaceOrder implements Client.
func (c *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*PositionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	if c.placeErr != nil {
		return nil, c.placeErr
	}
	price := c.prices[req.Symbol]
	ticket := c.nextTicket
	c.nextTicket++
	pos := &PositionRecord{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		EntryPrice: price,
		Quantity:   req.Quantity,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   time.Now(),
	}
	c.positions[ticket] = pos
	c.Orders = append(c.Orders, req)
	out := *pos
	return &out, nil
}

// ModifyPosition implements Client.
func (c *MockClient) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	if c.modifyErr != nil {
		return c.modifyErr
	}
	pos, ok := c.positions[ticket]
	if !ok {
		return NewRejection(ErrModifyRejected, "unknown ticket")
	}
	if stopLoss > 0 {
		pos.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		pos.TakeProfit = takeProfit
	}
	c.Modifications = append(c.Modifications, ModifyCall{Ticket: ticket, StopLoss: stopLoss, TakeProfit: takeProfit})
	return nil
}

// ClosePosition implements Client.
func (c *MockClient) ClosePosition(ctx context.Context, ticket int64, quantity float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	if c.closeErr != nil {
		return c.closeErr
	}
	pos, ok := c.positions[ticket]
	if !ok {
		return NewRejection(ErrCloseRejected, "unknown ticket")
	}
	if quantity <= 0 || quantity >= pos.Quantity {
		delete(c.positions, ticket)
	} else {
		pos.Quantity -= quantity
	}
	c.Closes = append(c.Closes, CloseCall{Ticket: ticket, Quantity: quantity})
	return nil
}

// ListOpenPositions implements Client.
func (c *MockClient) ListOpenPositions(ctx context.Context) ([]PositionRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	out := make([]PositionRecord, 0, len(c.positions))
	for _, pos := range c.positions {
		out = append(out, *pos)
	}
	return out, nil
}

var _ Client = (*MockClient)(nil)
