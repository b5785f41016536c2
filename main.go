package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/ewnd/pulse/engine"
	"github.com/ewnd/pulse/exchange"
	"github.com/ewnd/pulse/retry"
	"github.com/ewnd/pulse/shared"
	"github.com/ewnd/pulse/trader"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// newGateway creates the exchange gateway selected by the config.
func newGateway(cfg *Config, logger *zerolog.Logger) (shared.ExchangeGateway, error) {
	if cfg.DryRun {
		replayLogger := logger.With().Str("component", "replay").Logger()
		return exchange.NewReplayClient(&exchange.ReplayConfig{
			FilePath:     cfg.ReplayDataFilepath,
			QuoteBalance: cfg.ReplayQuoteBalance,
			Logger:       &replayLogger,
		})
	}

	binanceLogger := logger.With().Str("component", "binance").Logger()
	return exchange.NewBinanceClient(&exchange.BinanceConfig{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Logger:    &binanceLogger,
	})
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	logger := zlog.With().Str("service", "pulse").Logger()

	interval, err := shared.ParseInterval(cfg.Interval)
	if err != nil {
		logger.Error().Msgf("parsing interval: %v", err)
		return
	}

	entryMode, err := engine.ParseEntryMode(cfg.EntryMode)
	if err != nil {
		logger.Error().Msgf("parsing entry mode: %v", err)
		return
	}

	sellReference, err := engine.ParseSellReference(cfg.SellReference)
	if err != nil {
		logger.Error().Msgf("parsing sell reference: %v", err)
		return
	}

	gateway, err := newGateway(&cfg, &logger)
	if err != nil {
		logger.Error().Msgf("creating exchange gateway: %v", err)
		return
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	signalEngine, err := engine.NewEngine(&engine.EngineConfig{
		RSILowerBound: cfg.RSILowerBound,
		RSIUpperBound: cfg.RSIUpperBound,
		EntryMode:     entryMode,
		SellReference: sellReference,
		Logger:        engineLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating signal engine: %v", err)
		return
	}

	traderLogger := logger.With().Str("component", "trader").Logger()
	bot, err := trader.NewTrader(&trader.TraderConfig{
		Symbol:        cfg.Symbol,
		QuoteAsset:    cfg.QuoteAsset,
		Interval:      interval,
		CandleLimit:   cfg.CandleLimit,
		PollInterval:  time.Duration(cfg.PollIntervalSeconds) * time.Second,
		RSIPeriod:     cfg.RSIPeriod,
		BuyEMAPeriod:  cfg.BuyEMAPeriod,
		SellEMAPeriod: cfg.SellEMAPeriod,
		SpendFraction: cfg.SpendFraction,
		OrderFloor:    cfg.OrderFloor,
		MarketSell:    !cfg.LimitSell,
		RetryPolicy: retry.Policy{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialDelay:      time.Duration(cfg.RetryDelaySeconds) * time.Second,
			BackoffMultiplier: cfg.RetryBackoffMultiplier,
		},
		Gateway:      gateway,
		Engine:       signalEngine,
		JobScheduler: gocron.NewScheduler(time.UTC),
		Logger:       &traderLogger,
	})
	if err != nil {
		logger.Error().Msgf("creating trader: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)
	bot.Run(ctx)
}
