package exchange

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ewnd/pulse/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// replayDateLayout is the format layout for parsing fixture candle dates.
	replayDateLayout = "2006-01-02 15:04:05"
)

// ErrReplayExhausted indicates the replay fixture has no further candles.
var ErrReplayExhausted = errors.New("replay data exhausted")

// ReplayConfig represents the configuration for the replay client.
type ReplayConfig struct {
	// FilePath is the filepath to the replay fixture.
	FilePath string
	// QuoteBalance is the starting paper balance of the quote asset.
	QuoteBalance float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *ReplayConfig) Validate() error {
	var errs error

	if cfg.FilePath == "" {
		errs = errors.Join(errs, fmt.Errorf("replay fixture filepath cannot be an empty string"))
	}
	if cfg.QuoteBalance <= 0 {
		errs = errors.Join(errs, fmt.Errorf("replay quote balance must be positive, got %f", cfg.QuoteBalance))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// ReplayClient represents a file-backed exchange gateway for dry runs. Each
// candle fetch reveals one more fixture candle and orders fill immediately
// against paper balances.
//
// A replay fixture is a json document of the form:
//
//	{
//	  "symbol": "XRPUSDT",
//	  "baseAsset": "XRP",
//	  "quoteAsset": "USDT",
//	  "rules": {"amountPrecision": 2, "pricePrecision": 4,
//	            "minAmount": "0.01", "minNotional": "10"},
//	  "candles": [{"date": "2024-03-01 10:00:00", "open": 0.61, "high": 0.62,
//	               "low": 0.60, "close": 0.615, "volume": 120500}, ...]
//	}
type ReplayClient struct {
	cfg        *ReplayConfig
	symbol     string
	baseAsset  string
	quoteAsset string
	rules      *shared.MarketRules
	candles    []shared.Candlestick

	mtx sync.Mutex
	// end is the exclusive index of the newest revealed candle.
	end      int
	balances map[string]float64
	orderSeq int64
}

// Ensure the replay client implements the ExchangeGateway interface.
var _ shared.ExchangeGateway = (*ReplayClient)(nil)

// parseReplayRules parses market rules from the provided fixture data.
func parseReplayRules(symbol string, data gjson.Result) (*shared.MarketRules, error) {
	minAmount, err := decimal.NewFromString(data.Get("minAmount").String())
	if err != nil {
		return nil, fmt.Errorf("parsing min amount: %w", err)
	}

	minNotional, err := decimal.NewFromString(data.Get("minNotional").String())
	if err != nil {
		return nil, fmt.Errorf("parsing min notional: %w", err)
	}

	rules := &shared.MarketRules{
		Symbol:          symbol,
		AmountPrecision: int32(data.Get("amountPrecision").Int()),
		PricePrecision:  int32(data.Get("pricePrecision").Int()),
		MinAmount:       minAmount,
		MinNotional:     minNotional,
	}

	err = rules.Validate()
	if err != nil {
		return nil, err
	}

	return rules, nil
}

// parseReplayCandles parses fixture candles from the provided fixture data.
func parseReplayCandles(data []gjson.Result) ([]shared.Candlestick, error) {
	candles := make([]shared.Candlestick, 0, len(data))
	for idx := range data {
		date, err := time.Parse(replayDateLayout, data[idx].Get("date").String())
		if err != nil {
			return nil, fmt.Errorf("parsing candle date: %w", err)
		}

		candles = append(candles, shared.Candlestick{
			Open:   data[idx].Get("open").Float(),
			High:   data[idx].Get("high").Float(),
			Low:    data[idx].Get("low").Float(),
			Close:  data[idx].Get("close").Float(),
			Volume: data[idx].Get("volume").Float(),
			Date:   date,
		})
	}

	return candles, nil
}

// NewReplayClient initializes a new replay exchange gateway from the
// configured fixture.
func NewReplayClient(cfg *ReplayConfig) (*ReplayClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	readb, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading replay fixture from '%s': %w", cfg.FilePath, err)
	}

	b := gjson.ParseBytes(readb)

	symbol := b.Get("symbol").String()
	baseAsset := b.Get("baseAsset").String()
	quoteAsset := b.Get("quoteAsset").String()
	if symbol == "" || baseAsset == "" || quoteAsset == "" {
		return nil, fmt.Errorf("replay fixture must set symbol, baseAsset and quoteAsset")
	}

	rules, err := parseReplayRules(symbol, b.Get("rules"))
	if err != nil {
		return nil, fmt.Errorf("parsing replay rules: %w", err)
	}

	candles, err := parseReplayCandles(b.Get("candles").Array())
	if err != nil {
		return nil, fmt.Errorf("parsing replay candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("replay fixture has no candles")
	}

	return &ReplayClient{
		cfg:        cfg,
		symbol:     symbol,
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		rules:      rules,
		candles:    candles,
		balances: map[string]float64{
			quoteAsset: cfg.QuoteBalance,
		},
	}, nil
}

// LoadMarketRules returns the fixture market rules.
func (c *ReplayClient) LoadMarketRules(_ context.Context, symbol string) (*shared.MarketRules, error) {
	if symbol != c.symbol {
		return nil, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	return c.rules, nil
}

// FetchCandles reveals the next fixture candle and returns the trailing window
// ending at it.
func (c *ReplayClient) FetchCandles(_ context.Context, symbol string, _ shared.Interval, limit int) ([]shared.Candlestick, error) {
	if symbol != c.symbol {
		return nil, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	switch {
	case c.end == 0:
		c.end = min(limit, len(c.candles))
	default:
		c.end++
	}

	if c.end > len(c.candles) {
		return nil, ErrReplayExhausted
	}

	start := c.end - limit
	if start < 0 {
		start = 0
	}

	window := make([]shared.Candlestick, c.end-start)
	copy(window, c.candles[start:c.end])

	return window, nil
}

// lastPrice returns the close of the newest revealed candle.
func (c *ReplayClient) lastPrice() float64 {
	if c.end == 0 {
		return c.candles[0].Close
	}

	return c.candles[c.end-1].Close
}

// FetchAvailableBalance returns the paper balance of the provided asset.
func (c *ReplayClient) FetchAvailableBalance(_ context.Context, asset string) (float64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.balances[asset], nil
}

// FetchLastPrice returns the close of the newest revealed candle.
func (c *ReplayClient) FetchLastPrice(_ context.Context, symbol string) (float64, error) {
	if symbol != c.symbol {
		return 0, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.lastPrice(), nil
}

// fill executes a paper fill at the provided price, adjusting balances.
func (c *ReplayClient) fill(side shared.Side, amount float64, price float64) (*shared.OrderReceipt, error) {
	cost := amount * price

	switch side {
	case shared.Buy:
		if cost > c.balances[c.quoteAsset] {
			return nil, shared.NewMarketError(shared.InsufficientFundsError,
				fmt.Errorf("buy cost %f exceeds %s balance %f", cost, c.quoteAsset, c.balances[c.quoteAsset]))
		}
		c.balances[c.quoteAsset] -= cost
		c.balances[c.baseAsset] += amount
	case shared.Sell:
		if amount > c.balances[c.baseAsset] {
			return nil, shared.NewMarketError(shared.InsufficientFundsError,
				fmt.Errorf("sell amount %f exceeds %s balance %f", amount, c.baseAsset, c.balances[c.baseAsset]))
		}
		c.balances[c.baseAsset] -= amount
		c.balances[c.quoteAsset] += cost
	}

	c.orderSeq++
	receipt := &shared.OrderReceipt{
		ID:            strconv.FormatInt(c.orderSeq, 10),
		ClientOrderID: uuid.New().String(),
		FilledAmount:  amount,
		Status:        shared.OrderStatusFilled,
	}

	c.cfg.Logger.Info().Msgf("paper %s fill: %f %s @ %f (order %s)",
		side.String(), amount, c.symbol, price, receipt.ID)

	return receipt, nil
}

// SubmitMarketOrder fills a paper market order at the newest revealed close.
func (c *ReplayClient) SubmitMarketOrder(_ context.Context, symbol string, side shared.Side, amount float64) (*shared.OrderReceipt, error) {
	if symbol != c.symbol {
		return nil, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.fill(side, amount, c.lastPrice())
}

// SubmitLimitOrder fills a paper limit order immediately at its limit price.
func (c *ReplayClient) SubmitLimitOrder(_ context.Context, symbol string, side shared.Side, amount float64, price float64) (*shared.OrderReceipt, error) {
	if symbol != c.symbol {
		return nil, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.fill(side, amount, price)
}

// ListOpenOrders returns no orders, paper orders fill immediately.
func (c *ReplayClient) ListOpenOrders(_ context.Context, symbol string) ([]*shared.OrderReceipt, error) {
	if symbol != c.symbol {
		return nil, shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	return nil, nil
}

// CancelOrder is a no-op, paper orders fill immediately.
func (c *ReplayClient) CancelOrder(_ context.Context, id string, symbol string) error {
	if symbol != c.symbol {
		return shared.NewMarketError(shared.InvalidParametersError,
			fmt.Errorf("unknown replay symbol: %s", symbol))
	}

	c.cfg.Logger.Debug().Msgf("ignoring cancel for paper order %s", id)

	return nil
}
