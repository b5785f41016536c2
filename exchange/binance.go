// Package exchange provides exchange gateway implementations: a live binance
// client and a file-backed replay client for dry runs.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/ewnd/pulse/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BinanceConfig represents the configuration for the binance client.
type BinanceConfig struct {
	// APIKey is the binance API key.
	APIKey string
	// APISecret is the binance API secret.
	APISecret string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *BinanceConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("api key cannot be an empty string"))
	}
	if cfg.APISecret == "" {
		errs = errors.Join(errs, fmt.Errorf("api secret cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// BinanceClient represents the binance exchange gateway.
type BinanceClient struct {
	cfg *BinanceConfig
	api *binance.Client

	// rules caches market rules per symbol, loaded once and immutable
	// thereafter.
	rules    map[string]*shared.MarketRules
	rulesMtx sync.Mutex
}

// Ensure the binance client implements the ExchangeGateway interface.
var _ shared.ExchangeGateway = (*BinanceClient)(nil)

// NewBinanceClient initializes a new binance exchange gateway.
func NewBinanceClient(cfg *BinanceConfig) (*BinanceClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &BinanceClient{
		cfg:   cfg,
		api:   binance.NewClient(cfg.APIKey, cfg.APISecret),
		rules: make(map[string]*shared.MarketRules),
	}, nil
}

// classifyError wraps the provided failure with its exchange failure kind.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		// Failures without an exchange response are transport level.
		return shared.NewMarketError(shared.NetworkError, err)
	}

	switch {
	case apiErr.Code == -2010 || apiErr.Code == -2019:
		// NEW_ORDER_REJECTED (balance) and MARGIN_NOT_SUFFICIENT.
		return shared.NewMarketError(shared.InsufficientFundsError, err)
	case apiErr.Code >= -1008 && apiErr.Code <= -1000:
		// UNKNOWN, DISCONNECTED, TOO_MANY_REQUESTS, TIMEOUT and friends.
		return shared.NewMarketError(shared.ExchangeTransientError, err)
	case apiErr.Code == -1021:
		// Timestamp drift recovers on a later attempt.
		return shared.NewMarketError(shared.ExchangeTransientError, err)
	default:
		return shared.NewMarketError(shared.InvalidParametersError, err)
	}
}

// stepPrecision derives the number of decimal places from an exchange filter
// step string, eg. "0.00100000" -> 3.
func stepPrecision(step string) int32 {
	step = strings.TrimRight(step, "0")
	idx := strings.Index(step, ".")
	if idx < 0 {
		return 0
	}

	return int32(len(step) - idx - 1)
}

// LoadMarketRules returns the order constraints for the provided symbol,
// fetching them from the exchange on first use.
func (c *BinanceClient) LoadMarketRules(ctx context.Context, symbol string) (*shared.MarketRules, error) {
	c.rulesMtx.Lock()
	defer c.rulesMtx.Unlock()

	if rules, ok := c.rules[symbol]; ok {
		return rules, nil
	}

	info, err := c.api.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return nil, classifyError(fmt.Errorf("fetching exchange info for %s: %w", symbol, err))
	}

	var found *binance.Symbol
	for idx := range info.Symbols {
		if info.Symbols[idx].Symbol == symbol {
			found = &info.Symbols[idx]
			break
		}
	}
	if found == nil {
		return nil, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("symbol %s not found in exchange info", symbol))
	}

	rules := &shared.MarketRules{Symbol: symbol}

	if lotSize := found.LotSizeFilter(); lotSize != nil {
		rules.AmountPrecision = stepPrecision(lotSize.StepSize)
		minAmount, err := decimal.NewFromString(lotSize.MinQuantity)
		if err != nil {
			return nil, fmt.Errorf("parsing min quantity for %s: %w", symbol, err)
		}
		rules.MinAmount = minAmount
	}

	if priceFilter := found.PriceFilter(); priceFilter != nil {
		rules.PricePrecision = stepPrecision(priceFilter.TickSize)
	}

	if minNotional := found.MinNotionalFilter(); minNotional != nil {
		notional, err := decimal.NewFromString(minNotional.MinNotional)
		if err != nil {
			return nil, fmt.Errorf("parsing min notional for %s: %w", symbol, err)
		}
		rules.MinNotional = notional
	}

	err = rules.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating market rules for %s: %w", symbol, err)
	}

	c.cfg.Logger.Info().Msgf("loaded market rules for %s: amount precision %d, price precision %d, "+
		"min amount %s, min notional %s", symbol, rules.AmountPrecision, rules.PricePrecision,
		rules.MinAmount, rules.MinNotional)

	c.rules[symbol] = rules

	return rules, nil
}

// FetchCandles returns the most recent candle window for the provided symbol,
// ordered oldest first.
func (c *BinanceClient) FetchCandles(ctx context.Context, symbol string, interval shared.Interval, limit int) ([]shared.Candlestick, error) {
	klines, err := c.api.NewKlinesService().Symbol(symbol).
		Interval(interval.String()).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classifyError(fmt.Errorf("fetching %s candles for %s: %w", interval.String(), symbol, err))
	}

	candles := make([]shared.Candlestick, 0, len(klines))
	for idx := range klines {
		candle, err := parseKline(klines[idx])
		if err != nil {
			return nil, fmt.Errorf("parsing kline for %s: %w", symbol, err)
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// parseKline parses a candlestick from the provided kline payload.
func parseKline(kline *binance.Kline) (shared.Candlestick, error) {
	var candle shared.Candlestick
	var err error

	candle.Open, err = strconv.ParseFloat(kline.Open, 64)
	if err != nil {
		return candle, fmt.Errorf("parsing open: %w", err)
	}
	candle.High, err = strconv.ParseFloat(kline.High, 64)
	if err != nil {
		return candle, fmt.Errorf("parsing high: %w", err)
	}
	candle.Low, err = strconv.ParseFloat(kline.Low, 64)
	if err != nil {
		return candle, fmt.Errorf("parsing low: %w", err)
	}
	candle.Close, err = strconv.ParseFloat(kline.Close, 64)
	if err != nil {
		return candle, fmt.Errorf("parsing close: %w", err)
	}
	candle.Volume, err = strconv.ParseFloat(kline.Volume, 64)
	if err != nil {
		return candle, fmt.Errorf("parsing volume: %w", err)
	}

	candle.Date = time.UnixMilli(kline.OpenTime).UTC()

	return candle, nil
}

// FetchAvailableBalance returns the free balance of the provided asset.
func (c *BinanceClient) FetchAvailableBalance(ctx context.Context, asset string) (float64, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classifyError(fmt.Errorf("fetching account balances: %w", err))
	}

	for idx := range account.Balances {
		if account.Balances[idx].Asset != asset {
			continue
		}

		free, err := strconv.ParseFloat(account.Balances[idx].Free, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing free balance for %s: %w", asset, err)
		}

		return free, nil
	}

	return 0, nil
}

// FetchLastPrice returns the last traded price of the provided symbol.
func (c *BinanceClient) FetchLastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classifyError(fmt.Errorf("fetching last price for %s: %w", symbol, err))
	}
	if len(prices) == 0 {
		return 0, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("no price returned for %s", symbol))
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing last price for %s: %w", symbol, err)
	}

	return price, nil
}

// sideType converts the provided side to its binance representation.
func sideType(side shared.Side) binance.SideType {
	if side == shared.Sell {
		return binance.SideTypeSell
	}

	return binance.SideTypeBuy
}

// receiptFromOrderResponse creates an order receipt from the provided order
// response.
func receiptFromOrderResponse(res *binance.CreateOrderResponse) (*shared.OrderReceipt, error) {
	filled, err := strconv.ParseFloat(res.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing executed quantity: %w", err)
	}

	return &shared.OrderReceipt{
		ID:            strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		FilledAmount:  filled,
		Status:        string(res.Status),
	}, nil
}

// SubmitMarketOrder submits a market order for the provided symbol. Every
// submission is stamped with a fresh client order id so a retried submission
// can be reconciled against open orders.
func (c *BinanceClient) SubmitMarketOrder(ctx context.Context, symbol string, side shared.Side, amount float64) (*shared.OrderReceipt, error) {
	res, err := c.api.NewCreateOrderService().Symbol(symbol).
		Side(sideType(side)).Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64)).
		NewClientOrderID(uuid.New().String()).
		Do(ctx)
	if err != nil {
		return nil, classifyError(fmt.Errorf("submitting market %s order for %s: %w",
			side.String(), symbol, err))
	}

	return receiptFromOrderResponse(res)
}

// SubmitLimitOrder submits a limit order for the provided symbol.
func (c *BinanceClient) SubmitLimitOrder(ctx context.Context, symbol string, side shared.Side, amount float64, price float64) (*shared.OrderReceipt, error) {
	res, err := c.api.NewCreateOrderService().Symbol(symbol).
		Side(sideType(side)).Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(amount, 'f', -1, 64)).
		Price(strconv.FormatFloat(price, 'f', -1, 64)).
		NewClientOrderID(uuid.New().String()).
		Do(ctx)
	if err != nil {
		return nil, classifyError(fmt.Errorf("submitting limit %s order for %s: %w",
			side.String(), symbol, err))
	}

	return receiptFromOrderResponse(res)
}

// ListOpenOrders returns the currently open orders for the provided symbol.
func (c *BinanceClient) ListOpenOrders(ctx context.Context, symbol string) ([]*shared.OrderReceipt, error) {
	orders, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, classifyError(fmt.Errorf("listing open orders for %s: %w", symbol, err))
	}

	receipts := make([]*shared.OrderReceipt, 0, len(orders))
	for idx := range orders {
		filled, err := strconv.ParseFloat(orders[idx].ExecutedQuantity, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing executed quantity: %w", err)
		}

		receipts = append(receipts, &shared.OrderReceipt{
			ID:            strconv.FormatInt(orders[idx].OrderID, 10),
			ClientOrderID: orders[idx].ClientOrderID,
			FilledAmount:  filled,
			Status:        string(orders[idx].Status),
		})
	}

	return receipts, nil
}

// CancelOrder cancels the identified open order.
func (c *BinanceClient) CancelOrder(ctx context.Context, id string, symbol string) error {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("parsing order id %s: %w", id, err))
	}

	_, err = c.api.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return classifyError(fmt.Errorf("cancelling order %s for %s: %w", id, symbol, err))
	}

	return nil
}
