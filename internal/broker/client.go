package broker

import "context"

// Client defines the broker-connectivity contract consumed by the trading
// engine. Implementations are external collaborators; this package ships only
// the contract, a retrying wrapper and a mock for tests.
type Client interface {
	// GetHistory retrieves up to barCount bars for a symbol/timeframe, oldest
	// first. Near start-of-history the venue may return fewer bars than
	// requested; callers must handle short series. Fails with
	// ErrDataUnavailable when the market is closed or the symbol is invalid.
	GetHistory(ctx context.Context, symbol, timeframe string, barCount int) ([]Bar, error)

	// GetAccountInfo retrieves balance, equity and margin level.
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)

	// GetSymbolSpec retrieves per-symbol trading constraints.
	GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error)

	// GetCurrentPrice retrieves the last traded price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceOrder places a market order and returns the opened position.
	// Fails with ErrOrderRejected (wrapped with the venue reason).
	PlaceOrder(ctx context.Context, req OrderRequest) (*PositionRecord, error)

	// ModifyPosition updates stop-loss and/or take-profit for an open ticket.
	// A zero value leaves the corresponding level unchanged.
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error

	// ClosePosition closes an open ticket at market. Quantity zero closes the
	// full position.
	ClosePosition(ctx context.Context, ticket int64, quantity float64) error

	// ListOpenPositions enumerates all open positions on the account.
	ListOpenPositions(ctx context.Context) ([]PositionRecord, error)
}
