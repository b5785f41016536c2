package shared

import "context"

// ExchangeGateway defines the requirements for interacting with a market
// exchange. Implementations classify their failures with MarketError so
// callers can distinguish transient failures from permanent ones.
type ExchangeGateway interface {
	// LoadMarketRules returns the order constraints for the provided symbol.
	// Rules are loaded once per symbol and immutable thereafter.
	LoadMarketRules(ctx context.Context, symbol string) (*MarketRules, error)
	// FetchCandles returns the most recent candle window for the provided
	// symbol, ordered oldest first.
	FetchCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candlestick, error)
	// FetchAvailableBalance returns the free balance of the provided asset.
	FetchAvailableBalance(ctx context.Context, asset string) (float64, error)
	// FetchLastPrice returns the last traded price of the provided symbol.
	FetchLastPrice(ctx context.Context, symbol string) (float64, error)
	// SubmitMarketOrder submits a market order for the provided symbol.
	SubmitMarketOrder(ctx context.Context, symbol string, side Side, amount float64) (*OrderReceipt, error)
	// SubmitLimitOrder submits a limit order for the provided symbol.
	SubmitLimitOrder(ctx context.Context, symbol string, side Side, amount float64, price float64) (*OrderReceipt, error)
	// ListOpenOrders returns the currently open orders for the provided symbol.
	ListOpenOrders(ctx context.Context, symbol string) ([]*OrderReceipt, error)
	// CancelOrder cancels the identified open order.
	CancelOrder(ctx context.Context, id string, symbol string) error
}
