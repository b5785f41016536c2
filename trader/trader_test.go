package trader

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/ewnd/pulse/engine"
	"github.com/ewnd/pulse/retry"
	"github.com/ewnd/pulse/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// fakeOrder records an order submitted to the fake gateway.
type fakeOrder struct {
	side   shared.Side
	amount float64
	price  float64
}

// fakeGateway represents an in-memory exchange gateway for trader tests.
type fakeGateway struct {
	rules      *shared.MarketRules
	candles    []shared.Candlestick
	candlesErr error
	fetchCalls int
	balance    float64
	lastPrice  float64
	open       []*shared.OrderReceipt
	fillStatus string
	submitErr  error

	marketOrders []fakeOrder
	limitOrders  []fakeOrder
	cancelled    []string
	orderSeq     int
}

var _ shared.ExchangeGateway = (*fakeGateway)(nil)

func (g *fakeGateway) LoadMarketRules(_ context.Context, _ string) (*shared.MarketRules, error) {
	return g.rules, nil
}

func (g *fakeGateway) FetchCandles(_ context.Context, _ string, _ shared.Interval, _ int) ([]shared.Candlestick, error) {
	g.fetchCalls++
	if g.candlesErr != nil {
		return nil, g.candlesErr
	}

	return g.candles, nil
}

func (g *fakeGateway) FetchAvailableBalance(_ context.Context, _ string) (float64, error) {
	return g.balance, nil
}

func (g *fakeGateway) FetchLastPrice(_ context.Context, _ string) (float64, error) {
	return g.lastPrice, nil
}

func (g *fakeGateway) receipt(amount float64) *shared.OrderReceipt {
	g.orderSeq++

	status := g.fillStatus
	filled := amount
	if status == "" {
		status = shared.OrderStatusFilled
	}
	if status != shared.OrderStatusFilled {
		filled = 0
	}

	return &shared.OrderReceipt{
		ID:           strconv.Itoa(g.orderSeq),
		FilledAmount: filled,
		Status:       status,
	}
}

func (g *fakeGateway) SubmitMarketOrder(_ context.Context, _ string, side shared.Side, amount float64) (*shared.OrderReceipt, error) {
	if g.submitErr != nil {
		return nil, g.submitErr
	}

	g.marketOrders = append(g.marketOrders, fakeOrder{side: side, amount: amount})

	return g.receipt(amount), nil
}

func (g *fakeGateway) SubmitLimitOrder(_ context.Context, _ string, side shared.Side, amount float64, price float64) (*shared.OrderReceipt, error) {
	if g.submitErr != nil {
		return nil, g.submitErr
	}

	g.limitOrders = append(g.limitOrders, fakeOrder{side: side, amount: amount, price: price})

	return g.receipt(amount), nil
}

func (g *fakeGateway) ListOpenOrders(_ context.Context, _ string) ([]*shared.OrderReceipt, error) {
	return g.open, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, id string, _ string) error {
	g.cancelled = append(g.cancelled, id)
	return nil
}

// testRules creates market rules matching a typical spot pair.
func testRules() *shared.MarketRules {
	return &shared.MarketRules{
		Symbol:          "XRPUSDT",
		AmountPrecision: 2,
		PricePrecision:  4,
		MinAmount:       decimal.RequireFromString("0.01"),
		MinNotional:     decimal.RequireFromString("10"),
	}
}

// risingCandles creates n candles with strictly increasing closes. A rising
// window drives the smoothed RSI to 100, past the upper band bound.
func risingCandles(n int) []shared.Candlestick {
	candles := make([]shared.Candlestick, 0, n)
	for idx := 0; idx < n; idx++ {
		close := float64(idx + 1)
		candles = append(candles, shared.Candlestick{
			Open:   close - 0.5,
			High:   close + 0.5,
			Low:    close - 1,
			Close:  close,
			Volume: 100,
			Date:   time.Unix(int64(idx)*300, 0).UTC(),
		})
	}

	return candles
}

// setupTrader creates a trader over the provided fake gateway with a short
// RSI period so small windows are past warm-up.
func setupTrader(t *testing.T, gateway *fakeGateway, rsiPeriod int, marketSell bool) *Trader {
	logger := zerolog.Nop()

	eng, err := engine.NewEngine(&engine.EngineConfig{
		RSILowerBound: 62.8,
		RSIUpperBound: 69.33,
		EntryMode:     engine.Threshold,
		SellReference: engine.LastClose,
		Logger:        logger,
	})
	assert.NoError(t, err)

	trader, err := NewTrader(&TraderConfig{
		Symbol:        "XRPUSDT",
		QuoteAsset:    "USDT",
		Interval:      shared.FiveMinute,
		CandleLimit:   50,
		PollInterval:  time.Second,
		RSIPeriod:     rsiPeriod,
		BuyEMAPeriod:  3,
		SpendFraction: 0.98,
		OrderFloor:    10,
		MarketSell:    marketSell,
		RetryPolicy: retry.Policy{
			MaxAttempts:       2,
			InitialDelay:      time.Millisecond,
			BackoffMultiplier: 2,
		},
		Gateway: gateway,
		Engine:  eng,
		Logger:  &logger,
	})
	assert.NoError(t, err)

	trader.rules = gateway.rules

	return trader
}

func TestTraderConfigValidate(t *testing.T) {
	// Ensure an empty config accumulates every validation failure.
	cfg := TraderConfig{}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestTraderBuySellRoundTrip(t *testing.T) {
	// A rising window holds the smoothed RSI at 100: above the lower bound
	// for the buy cycle and past the upper bound for the sell cycle.
	gateway := &fakeGateway{
		rules:     testRules(),
		candles:   risingCandles(20),
		balance:   100,
		lastPrice: 20,
	}
	trader := setupTrader(t, gateway, 3, true)

	ctx := context.Background()

	// Ensure the first cycle enters a position off the rising window.
	err := trader.runCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, len(gateway.marketOrders), 1)
	assert.Equal(t, gateway.marketOrders[0].side, shared.Buy)
	assert.True(t, trader.position > 0)
	assert.Equal(t, trader.position, gateway.marketOrders[0].amount)

	// Ensure the previous smoothed RSI was remembered for crossover checks.
	assert.Equal(t, trader.prevRSISMA, float64(100))

	// Ensure the next cycle liquidates the position on the band exit and
	// returns to no position.
	err = trader.runCycle(ctx)
	assert.NoError(t, err)
	assert.Equal(t, len(gateway.marketOrders), 2)
	assert.Equal(t, gateway.marketOrders[1].side, shared.Sell)
	assert.Equal(t, trader.position, float64(0))
}

func TestTraderWarmupSkipsCycle(t *testing.T) {
	// Ensure a window still in warm-up skips the cycle without failing it.
	gateway := &fakeGateway{
		rules:   testRules(),
		candles: risingCandles(5),
		balance: 100,
	}
	trader := setupTrader(t, gateway, 14, true)

	err := trader.runCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(gateway.marketOrders), 0)
	assert.Equal(t, trader.position, float64(0))
	assert.True(t, math.IsNaN(trader.prevRSISMA))
}

func TestTraderSkipsBuyBelowOrderFloor(t *testing.T) {
	// Ensure an underfunded buy is skipped, not failed.
	gateway := &fakeGateway{
		rules:   testRules(),
		candles: risingCandles(20),
		balance: 5,
	}
	trader := setupTrader(t, gateway, 3, true)

	err := trader.runCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(gateway.marketOrders), 0)
	assert.Equal(t, trader.position, float64(0))
}

func TestTraderInsufficientFundsTreatedAsHold(t *testing.T) {
	// Ensure an insufficient funds rejection leaves the cycle as a hold.
	gateway := &fakeGateway{
		rules:     testRules(),
		candles:   risingCandles(20),
		balance:   100,
		submitErr: shared.NewMarketError(shared.InsufficientFundsError, errors.New("balance too low")),
	}
	trader := setupTrader(t, gateway, 3, true)

	err := trader.runCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, trader.position, float64(0))
}

func TestTraderUnfilledBuyLeavesNoPosition(t *testing.T) {
	// Ensure a buy receipt without a confirmed fill never opens a position,
	// the next cycle re-evaluates from flat.
	gateway := &fakeGateway{
		rules:      testRules(),
		candles:    risingCandles(20),
		balance:    100,
		lastPrice:  20,
		fillStatus: shared.OrderStatusNew,
	}
	trader := setupTrader(t, gateway, 3, true)

	err := trader.runCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(gateway.marketOrders), 1)
	assert.Equal(t, trader.position, float64(0))
}

func TestTraderFetchFailureAbortsCycle(t *testing.T) {
	// Ensure an exhausted fetch aborts the cycle with the retried failure.
	gateway := &fakeGateway{
		rules:      testRules(),
		candlesErr: shared.NewMarketError(shared.NetworkError, errors.New("connection reset")),
		balance:    100,
	}
	trader := setupTrader(t, gateway, 3, true)

	err := trader.runCycle(context.Background())
	assert.Error(t, err)
	assert.Equal(t, gateway.fetchCalls, 2)
	assert.Equal(t, trader.position, float64(0))
}

func TestTraderLimitSellStaysPending(t *testing.T) {
	// Ensure an unfilled limit sell keeps the position open and is tracked
	// across cycles.
	gateway := &fakeGateway{
		rules:      testRules(),
		candles:    risingCandles(20),
		balance:    100,
		lastPrice:  20,
		fillStatus: shared.OrderStatusNew,
	}
	trader := setupTrader(t, gateway, 3, false)
	trader.position = 2

	err := trader.runCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(gateway.limitOrders), 1)
	assert.Equal(t, gateway.limitOrders[0].side, shared.Sell)
	assert.Equal(t, trader.position, float64(2))
	assert.NotEqual(t, trader.pendingSellID, "")
}

func TestResolvePendingSell(t *testing.T) {
	t.Run("filled sell closes the position", func(t *testing.T) {
		gateway := &fakeGateway{rules: testRules()}
		trader := setupTrader(t, gateway, 3, false)
		trader.position = 2
		trader.pendingSellID = "7"

		err := trader.resolvePendingSell(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, trader.position, float64(0))
		assert.Equal(t, trader.pendingSellID, "")
	})

	t.Run("resting sell is cancelled", func(t *testing.T) {
		gateway := &fakeGateway{rules: testRules()}
		gateway.open = []*shared.OrderReceipt{
			{ID: "7", FilledAmount: 0.5, Status: shared.OrderStatusPartiallyFilled},
		}
		trader := setupTrader(t, gateway, 3, false)
		trader.position = 2
		trader.pendingSellID = "7"

		err := trader.resolvePendingSell(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, gateway.cancelled, []string{"7"})

		// The partial fill reduced the held amount.
		assert.Equal(t, trader.position, float64(1.5))
		assert.Equal(t, trader.pendingSellID, "")
	})
}

func TestTraderRunStopsOnCancel(t *testing.T) {
	// Ensure the run loop shuts down promptly instead of sleeping through
	// the poll interval.
	gateway := &fakeGateway{
		rules:   testRules(),
		candles: risingCandles(5),
		balance: 100,
	}
	trader := setupTrader(t, gateway, 14, true)
	trader.cfg.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		trader.Run(ctx)
		close(done)
	}()

	time.Sleep(time.Millisecond * 50)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("trader did not shut down promptly")
	}
}
