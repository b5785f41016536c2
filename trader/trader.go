// Package trader runs the poll loop driving signal evaluation and order
// execution for a single trading pair.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ewnd/pulse/engine"
	"github.com/ewnd/pulse/exchange"
	"github.com/ewnd/pulse/indicator"
	"github.com/ewnd/pulse/order"
	"github.com/ewnd/pulse/retry"
	"github.com/ewnd/pulse/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// balanceSnapshotInterval is the cadence of the periodic balance log.
	balanceSnapshotInterval = time.Hour
)

// TraderConfig represents the trader configuration.
type TraderConfig struct {
	// Symbol is the traded pair.
	Symbol string
	// QuoteAsset is the quote asset of the traded pair.
	QuoteAsset string
	// Interval is the candle period evaluated each cycle.
	Interval shared.Interval
	// CandleLimit is the size of the fetched candle window.
	CandleLimit int
	// PollInterval is the suspension between cycles.
	PollInterval time.Duration
	// RSIPeriod is the RSI rolling window size.
	RSIPeriod int
	// BuyEMAPeriod is the period of the fast EMA referenced by buy orders.
	BuyEMAPeriod int
	// SellEMAPeriod is the period of the secondary EMA referenced by limit
	// sells. Zero disables the column.
	SellEMAPeriod int
	// SpendFraction is the fraction of the quote balance spent on a buy.
	SpendFraction float64
	// OrderFloor is the minimum quote-currency order value worth placing.
	OrderFloor float64
	// MarketSell flags sell orders for submission at market price.
	MarketSell bool
	// RetryPolicy is the retry policy for exchange-facing calls.
	RetryPolicy retry.Policy
	// Gateway represents the market exchange gateway.
	Gateway shared.ExchangeGateway
	// Engine represents the signal engine.
	Engine *engine.Engine
	// JobScheduler schedules periodic housekeeping jobs.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *TraderConfig) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.QuoteAsset == "" {
		errs = errors.Join(errs, fmt.Errorf("quote asset cannot be an empty string"))
	}
	if cfg.CandleLimit <= 0 {
		errs = errors.Join(errs, fmt.Errorf("candle limit must be positive, got %d", cfg.CandleLimit))
	}
	if cfg.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval))
	}
	if cfg.RSIPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("rsi period must be positive, got %d", cfg.RSIPeriod))
	}
	if cfg.BuyEMAPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("buy ema period must be positive, got %d", cfg.BuyEMAPeriod))
	}
	if cfg.SellEMAPeriod < 0 {
		errs = errors.Join(errs, fmt.Errorf("sell ema period cannot be negative, got %d", cfg.SellEMAPeriod))
	}
	if cfg.SpendFraction <= 0 || cfg.SpendFraction > 1 {
		errs = errors.Join(errs, fmt.Errorf("spend fraction must be in (0, 1], got %f", cfg.SpendFraction))
	}
	if cfg.OrderFloor < 0 {
		errs = errors.Join(errs, fmt.Errorf("order floor cannot be negative, got %f", cfg.OrderFloor))
	}
	if err := cfg.RetryPolicy.Validate(); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.Gateway == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange gateway cannot be nil"))
	}
	if cfg.Engine == nil {
		errs = errors.Join(errs, fmt.Errorf("signal engine cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Trader drives the evaluation cycle for a single trading pair. It owns the
// position state and the previous smoothed RSI value, both touched only from
// the cycle loop. A trader never shares state with another, multi-symbol
// setups run one trader per symbol.
type Trader struct {
	cfg   *TraderConfig
	rules *shared.MarketRules

	// position is the held base amount from the last filled buy, zero when
	// no position is open. It only changes on a confirmed order receipt.
	position float64
	// prevRSISMA is the previous cycle's smoothed RSI, NaN before the first
	// evaluated cycle.
	prevRSISMA float64
	// pendingSellID tracks an unfilled limit sell across cycles.
	pendingSellID string
}

// NewTrader initializes a new trader.
func NewTrader(cfg *TraderConfig) (*Trader, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Trader{
		cfg:        cfg,
		prevRSISMA: math.NaN(),
	}, nil
}

// logBalanceSnapshot logs the available quote balance.
func (t *Trader) logBalanceSnapshot(ctx context.Context) {
	balance, err := t.cfg.Gateway.FetchAvailableBalance(ctx, t.cfg.QuoteAsset)
	if err != nil {
		t.cfg.Logger.Error().Msgf("fetching %s balance: %v", t.cfg.QuoteAsset, err)
		return
	}

	t.cfg.Logger.Info().Msgf("available %s: %f", t.cfg.QuoteAsset, balance)
}

// resolvePendingSell reconciles an unfilled limit sell from a prior cycle. A
// sell still resting on the book is cancelled so the cycle can re-evaluate,
// one missing from the open set is taken as filled.
func (t *Trader) resolvePendingSell(ctx context.Context) error {
	if t.pendingSellID == "" {
		return nil
	}

	open, err := retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) ([]*shared.OrderReceipt, error) {
		return t.cfg.Gateway.ListOpenOrders(ctx, t.cfg.Symbol)
	})
	if err != nil {
		return fmt.Errorf("listing open orders: %w", err)
	}

	for idx := range open {
		if open[idx].ID != t.pendingSellID {
			continue
		}

		_, err := retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.cfg.Gateway.CancelOrder(ctx, t.pendingSellID, t.cfg.Symbol)
		})
		if err != nil {
			return fmt.Errorf("cancelling pending sell %s: %w", t.pendingSellID, err)
		}

		// A partial fill reduces the held amount.
		t.position = math.Max(t.position-open[idx].FilledAmount, 0)
		t.pendingSellID = ""

		t.cfg.Logger.Info().Msgf("cancelled pending sell %s, holding %f", open[idx].ID, t.position)

		return nil
	}

	t.cfg.Logger.Info().Msgf("pending sell %s filled, position closed", t.pendingSellID)
	t.position = 0
	t.pendingSellID = ""

	return nil
}

// submitOrder submits the provided order intent through the gateway under the
// retry policy.
func (t *Trader) submitOrder(ctx context.Context, intent *shared.OrderIntent) (*shared.OrderReceipt, error) {
	return retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) (*shared.OrderReceipt, error) {
		if intent.Market {
			return t.cfg.Gateway.SubmitMarketOrder(ctx, intent.Symbol, intent.Side, intent.Amount)
		}

		return t.cfg.Gateway.SubmitLimitOrder(ctx, intent.Symbol, intent.Side, intent.Amount, intent.Price)
	})
}

// executeBuy sizes and submits a market buy for the provided decision, and
// opens the position on a confirmed receipt.
func (t *Trader) executeBuy(ctx context.Context, decision shared.Decision) error {
	balance, err := retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) (float64, error) {
		return t.cfg.Gateway.FetchAvailableBalance(ctx, t.cfg.QuoteAsset)
	})
	if err != nil {
		return fmt.Errorf("fetching %s balance: %w", t.cfg.QuoteAsset, err)
	}

	amount, err := order.SizeBuy(t.rules, balance, t.cfg.SpendFraction, decision.ReferencePrice, t.cfg.OrderFloor)
	if err != nil {
		if errors.Is(err, order.ErrBelowOrderFloor) {
			t.cfg.Logger.Warn().Msgf("insufficient %s balance for a buy order: %v", t.cfg.QuoteAsset, err)
			return nil
		}

		return fmt.Errorf("sizing buy order: %w", err)
	}

	receipt, err := t.submitOrder(ctx, &shared.OrderIntent{
		Symbol: t.cfg.Symbol,
		Side:   shared.Buy,
		Amount: amount,
		Market: true,
	})
	if err != nil {
		if shared.IsInsufficientFunds(err) {
			t.cfg.Logger.Warn().Msgf("buy order rejected: %v", err)
			return nil
		}

		return fmt.Errorf("submitting buy order: %w", err)
	}

	filled := receipt.FilledAmount
	if receipt.Filled() && filled == 0 {
		// Some fill reports omit the executed quantity.
		filled = amount
	}

	// The position only opens on a confirmed fill. An unfilled or expired
	// buy leaves the trader flat for the next cycle to re-evaluate.
	if filled == 0 {
		t.cfg.Logger.Warn().Msgf("buy order %s reported no fill (status %s), position not opened",
			receipt.ID, receipt.Status)
		return nil
	}

	t.position = filled

	t.cfg.Logger.Info().Msgf("buy order placed: id %s for %f %s at reference price %f",
		receipt.ID, filled, t.cfg.Symbol, decision.ReferencePrice)

	return nil
}

// executeSell adjusts and submits a sell for the held position, and closes the
// position on a confirmed receipt.
func (t *Trader) executeSell(ctx context.Context, decision shared.Decision) error {
	amount := order.AdjustAmount(t.rules, t.position)

	checkPrice := decision.ReferencePrice
	if t.cfg.MarketSell {
		price, err := retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) (float64, error) {
			return t.cfg.Gateway.FetchLastPrice(ctx, t.cfg.Symbol)
		})
		if err != nil {
			return fmt.Errorf("fetching last price: %w", err)
		}
		checkPrice = price
	}

	if !order.MeetsMinNotional(t.rules, amount, checkPrice) {
		t.cfg.Logger.Warn().Msgf("notional value %f is below the market minimum, order not placed",
			amount*checkPrice)
		return nil
	}

	intent := &shared.OrderIntent{
		Symbol: t.cfg.Symbol,
		Side:   shared.Sell,
		Amount: amount,
		Market: t.cfg.MarketSell,
	}
	if !intent.Market {
		intent.Price = order.AdjustPrice(t.rules, decision.ReferencePrice)
	}

	receipt, err := t.submitOrder(ctx, intent)
	if err != nil {
		if shared.IsInsufficientFunds(err) {
			t.cfg.Logger.Warn().Msgf("sell order rejected: %v", err)
			return nil
		}

		return fmt.Errorf("submitting sell order: %w", err)
	}

	switch {
	case receipt.Filled():
		t.position = 0
		t.cfg.Logger.Info().Msgf("sell order filled: id %s for %f %s", receipt.ID, amount, t.cfg.Symbol)
	default:
		// The position stays open until the resting sell is confirmed.
		t.pendingSellID = receipt.ID
		t.cfg.Logger.Info().Msgf("sell order resting: id %s for %f %s", receipt.ID, amount, t.cfg.Symbol)
	}

	return nil
}

// runCycle executes a single evaluation cycle: fetch the candle window,
// compute indicators, evaluate a decision and execute it.
func (t *Trader) runCycle(ctx context.Context) error {
	err := t.resolvePendingSell(ctx)
	if err != nil {
		return err
	}

	candles, err := retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) ([]shared.Candlestick, error) {
		return t.cfg.Gateway.FetchCandles(ctx, t.cfg.Symbol, t.cfg.Interval, t.cfg.CandleLimit)
	})
	if err != nil {
		return fmt.Errorf("fetching candles: %w", err)
	}

	series := indicator.NewSeries(candles)
	err = series.ComputeRSI(t.cfg.RSIPeriod)
	if err != nil {
		if errors.Is(err, shared.ErrInsufficientData) {
			// Warm-up period, skip the cycle.
			t.cfg.Logger.Info().Msgf("skipping cycle: %v", err)
			t.prevRSISMA = math.NaN()
			return nil
		}

		return fmt.Errorf("computing rsi: %w", err)
	}

	err = series.ComputeEMA(t.cfg.BuyEMAPeriod)
	if err != nil {
		return fmt.Errorf("computing buy ema: %w", err)
	}

	sellEMA := math.NaN()
	if t.cfg.SellEMAPeriod > 0 {
		err = series.ComputeEMA(t.cfg.SellEMAPeriod)
		if err != nil {
			return fmt.Errorf("computing sell ema: %w", err)
		}
		sellEMA = series.CurrentEMA(t.cfg.SellEMAPeriod)
	}

	in := &engine.Input{
		RSISMA:       series.CurrentRSISMA(),
		PrevRSISMA:   t.prevRSISMA,
		Close:        series.CurrentClose(),
		BuyEMA:       series.CurrentEMA(t.cfg.BuyEMAPeriod),
		SellEMA:      sellEMA,
		PositionOpen: t.position > 0,
	}

	decision := t.cfg.Engine.Evaluate(in)

	// Remember the smoothed RSI for next cycle's crossover check.
	t.prevRSISMA = in.RSISMA

	switch decision.Action {
	case shared.BuyAction:
		return t.executeBuy(ctx, decision)
	case shared.SellAction:
		return t.executeSell(ctx, decision)
	default:
		t.cfg.Logger.Debug().Msgf("holding: rsi sma %f, close %f", in.RSISMA, in.Close)
		return nil
	}
}

// Run manages the lifecycle processes of the trader. The loop runs one cycle
// to completion, suspends for the poll interval and repeats until the context
// is cancelled.
func (t *Trader) Run(ctx context.Context) {
	rules, err := retry.Do(ctx, t.cfg.RetryPolicy, t.cfg.Logger, func(ctx context.Context) (*shared.MarketRules, error) {
		return t.cfg.Gateway.LoadMarketRules(ctx, t.cfg.Symbol)
	})
	if err != nil {
		t.cfg.Logger.Error().Msgf("loading market rules for %s: %v", t.cfg.Symbol, err)
		return
	}
	t.rules = rules

	t.logBalanceSnapshot(ctx)
	if t.cfg.JobScheduler != nil {
		_, err = t.cfg.JobScheduler.Every(balanceSnapshotInterval).Do(func() {
			t.logBalanceSnapshot(ctx)
		})
		if err != nil {
			t.cfg.Logger.Error().Msgf("scheduling balance snapshots: %v", err)
		}
		t.cfg.JobScheduler.StartAsync()
		defer t.cfg.JobScheduler.Stop()
	}

	for {
		err := t.runCycle(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, exchange.ErrReplayExhausted):
			t.cfg.Logger.Info().Msg("replay data exhausted, stopping")
			return
		case err != nil:
			// A failed cycle never stops the loop.
			t.cfg.Logger.Error().Msgf("cycle failed: %v", err)
		}

		timer := time.NewTimer(t.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
