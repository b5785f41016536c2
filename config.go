package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// APIKey is the exchange API key.
	APIKey string
	// APISecret is the exchange API secret.
	APISecret string
	// Symbol is the traded pair.
	Symbol string
	// QuoteAsset is the quote asset of the traded pair.
	QuoteAsset string
	// Interval is the candle period evaluated each cycle.
	Interval string
	// CandleLimit is the size of the fetched candle window.
	CandleLimit int
	// PollIntervalSeconds is the suspension between cycles.
	PollIntervalSeconds int
	// RSIPeriod is the RSI rolling window size.
	RSIPeriod int
	// RSILowerBound is the lower bound of the neutral-bullish RSI band.
	RSILowerBound float64
	// RSIUpperBound is the upper bound of the neutral-bullish RSI band.
	RSIUpperBound float64
	// BuyEMAPeriod is the period of the fast EMA referenced by buy orders.
	BuyEMAPeriod int
	// SellEMAPeriod is the period of the secondary EMA referenced by limit sells.
	SellEMAPeriod int
	// EntryMode is the buy-entry evaluation variant (threshold or crossover).
	EntryMode string
	// SellReference is the sell order price reference (close or ema).
	SellReference string
	// LimitSell flags sell orders for submission as limit orders at the sell
	// reference price. Sells are market orders unless set.
	LimitSell bool
	// SpendFraction is the fraction of the quote balance spent on a buy.
	SpendFraction float64
	// OrderFloor is the minimum quote-currency order value worth placing.
	OrderFloor float64
	// RetryMaxAttempts is the total number of attempts for exchange calls.
	RetryMaxAttempts int
	// RetryDelaySeconds is the delay before the first retry.
	RetryDelaySeconds int
	// RetryBackoffMultiplier scales the retry delay after every attempt.
	RetryBackoffMultiplier float64
	// DryRun runs the trader against a replay fixture instead of the exchange.
	DryRun bool
	// ReplayDataFilepath is the filepath to the replay fixture.
	ReplayDataFilepath string
	// ReplayQuoteBalance is the starting paper balance for dry runs.
	ReplayQuoteBalance float64

	registeredFlags map[string]bool
}

// applyDefaults fills unset optional fields with their defaults.
func (cfg *Config) applyDefaults() {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Interval == "" {
		cfg.Interval = "5m"
	}
	if cfg.CandleLimit == 0 {
		cfg.CandleLimit = 100
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 60
	}
	if cfg.RSIPeriod == 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.RSILowerBound == 0 {
		cfg.RSILowerBound = 62.8
	}
	if cfg.RSIUpperBound == 0 {
		cfg.RSIUpperBound = 69.33
	}
	if cfg.BuyEMAPeriod == 0 {
		cfg.BuyEMAPeriod = 3
	}
	if cfg.EntryMode == "" {
		cfg.EntryMode = "threshold"
	}
	if cfg.SellReference == "" {
		cfg.SellReference = "close"
	}
	if cfg.SpendFraction == 0 {
		cfg.SpendFraction = 0.98
	}
	if cfg.OrderFloor == 0 {
		cfg.OrderFloor = 10
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 5
	}
	if cfg.RetryDelaySeconds == 0 {
		cfg.RetryDelaySeconds = 2
	}
	if cfg.RetryBackoffMultiplier == 0 {
		cfg.RetryBackoffMultiplier = 2
	}
	if cfg.ReplayQuoteBalance == 0 {
		cfg.ReplayQuoteBalance = 1000
	}
}

// Validate asserts the config has sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	switch cfg.DryRun {
	case true:
		if cfg.ReplayDataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("replay data filepath cannot be an empty string"))
		}
	case false:
		if cfg.APIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("api key cannot be an empty string"))
		}
		if cfg.APISecret == "" {
			errs = errors.Join(errs, fmt.Errorf("api secret cannot be an empty string"))
		}
	}

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("no symbol provided for the trader"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(strings.ToUpper(name))
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"apikey", &cfg.APIKey, "the exchange api key"},
		{"apisecret", &cfg.APISecret, "the exchange api secret"},
		{"symbol", &cfg.Symbol, "the traded pair"},
		{"quoteasset", &cfg.QuoteAsset, "the quote asset of the traded pair"},
		{"interval", &cfg.Interval, "the candle period evaluated each cycle"},
		{"candlelimit", &cfg.CandleLimit, "the size of the fetched candle window"},
		{"pollintervalseconds", &cfg.PollIntervalSeconds, "the suspension between cycles, in seconds"},
		{"rsiperiod", &cfg.RSIPeriod, "the rsi rolling window size"},
		{"rsilowerbound", &cfg.RSILowerBound, "the lower bound of the rsi band"},
		{"rsiupperbound", &cfg.RSIUpperBound, "the upper bound of the rsi band"},
		{"buyemaperiod", &cfg.BuyEMAPeriod, "the period of the fast ema referenced by buys"},
		{"sellemaperiod", &cfg.SellEMAPeriod, "the period of the secondary ema referenced by limit sells"},
		{"entrymode", &cfg.EntryMode, "the buy-entry evaluation variant (threshold or crossover)"},
		{"sellreference", &cfg.SellReference, "the sell order price reference (close or ema)"},
		{"limitsell", &cfg.LimitSell, "submit sell orders as limit orders at the sell reference price"},
		{"spendfraction", &cfg.SpendFraction, "the fraction of the quote balance spent on a buy"},
		{"orderfloor", &cfg.OrderFloor, "the minimum quote-currency order value worth placing"},
		{"retrymaxattempts", &cfg.RetryMaxAttempts, "the total number of attempts for exchange calls"},
		{"retrydelayseconds", &cfg.RetryDelaySeconds, "the delay before the first retry, in seconds"},
		{"retrybackoffmultiplier", &cfg.RetryBackoffMultiplier, "the retry delay growth factor"},
		{"dryrun", &cfg.DryRun, "run against a replay fixture instead of the exchange"},
		{"replaydatafilepath", &cfg.ReplayDataFilepath, "the filepath to the replay fixture"},
		{"replayquotebalance", &cfg.ReplayQuoteBalance, "the starting paper balance for dry runs"},
	}
	for idx := range flags {
		err = cfg.registerFlag(flags[idx].name, flags[idx].value, flags[idx].usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
