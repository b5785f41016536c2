package engine

import (
	"errors"
	"fmt"

	"github.com/ewnd/pulse/indicator"
	"github.com/ewnd/pulse/shared"
	"github.com/rs/zerolog"
)

// EntryMode represents the buy-entry evaluation variant.
type EntryMode int

const (
	// Threshold buys whenever the smoothed RSI is at or above the lower band
	// bound and the close is at or above the buy reference EMA.
	Threshold EntryMode = iota
	// Crossover buys only on the cycle where the smoothed RSI crosses from
	// below the lower band bound into the band.
	Crossover
)

// String stringifies the provided entry mode.
func (m *EntryMode) String() string {
	switch *m {
	case Threshold:
		return "threshold"
	case Crossover:
		return "crossover"
	default:
		return "unknown"
	}
}

// ParseEntryMode parses an entry mode from the provided string.
func ParseEntryMode(str string) (EntryMode, error) {
	switch str {
	case "threshold":
		return Threshold, nil
	case "crossover":
		return Crossover, nil
	default:
		return 0, fmt.Errorf("unknown entry mode: %s", str)
	}
}

// SellReference represents the price a sell order is referenced against.
type SellReference int

const (
	// LastClose references sell orders against the latest close.
	LastClose SellReference = iota
	// SellEMA references sell orders against a secondary EMA.
	SellEMA
)

// String stringifies the provided sell reference.
func (r *SellReference) String() string {
	switch *r {
	case LastClose:
		return "close"
	case SellEMA:
		return "ema"
	default:
		return "unknown"
	}
}

// ParseSellReference parses a sell reference from the provided string.
func ParseSellReference(str string) (SellReference, error) {
	switch str {
	case "close":
		return LastClose, nil
	case "ema":
		return SellEMA, nil
	default:
		return 0, fmt.Errorf("unknown sell reference: %s", str)
	}
}

// EngineConfig represents the signal engine configuration.
type EngineConfig struct {
	// RSILowerBound is the lower bound of the neutral-bullish RSI band.
	RSILowerBound float64
	// RSIUpperBound is the upper bound of the neutral-bullish RSI band.
	RSIUpperBound float64
	// EntryMode is the buy-entry evaluation variant.
	EntryMode EntryMode
	// SellReference is the price sell orders are referenced against.
	SellReference SellReference
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.RSILowerBound <= 0 || cfg.RSILowerBound >= 100 {
		errs = errors.Join(errs, fmt.Errorf("rsi lower bound must be in (0, 100), got %f", cfg.RSILowerBound))
	}
	if cfg.RSIUpperBound <= 0 || cfg.RSIUpperBound >= 100 {
		errs = errors.Join(errs, fmt.Errorf("rsi upper bound must be in (0, 100), got %f", cfg.RSIUpperBound))
	}
	if cfg.RSILowerBound >= cfg.RSIUpperBound {
		errs = errors.Join(errs, fmt.Errorf("rsi lower bound %f must be below upper bound %f",
			cfg.RSILowerBound, cfg.RSIUpperBound))
	}

	return errs
}

// Input represents the indicator state a single evaluation cycle runs on.
// Values still in their warm-up period are NaN.
type Input struct {
	// RSISMA is the current smoothed RSI value.
	RSISMA float64
	// PrevRSISMA is the previous cycle's smoothed RSI value, needed for
	// crossover detection. It is NaN on the first cycle.
	PrevRSISMA float64
	// Close is the latest close.
	Close float64
	// BuyEMA is the current fast EMA value referenced by buy orders.
	BuyEMA float64
	// SellEMA is the current secondary EMA value referenced by limit sells.
	SellEMA float64
	// PositionOpen flags whether a position from a prior buy is held.
	PositionOpen bool
}

// Engine evaluates indicator state into buy, sell or hold decisions. The
// engine itself is stateless, the previous smoothed RSI value is owned by the
// caller and passed in each cycle.
type Engine struct {
	cfg *EngineConfig
}

// NewEngine initializes a new signal engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg}, nil
}

// evaluateSell determines whether an open position should be liquidated. A
// position is sold when the smoothed RSI exits the band on either side.
func (e *Engine) evaluateSell(in *Input) shared.Decision {
	if in.RSISMA > e.cfg.RSILowerBound && in.RSISMA < e.cfg.RSIUpperBound {
		return shared.Hold()
	}

	ref := in.Close
	if e.cfg.SellReference == SellEMA {
		ref = in.SellEMA
	}

	if !indicator.Defined(ref) {
		e.cfg.Logger.Warn().Msgf("sell reference %s unavailable, holding", e.cfg.SellReference.String())
		return shared.Hold()
	}

	return shared.Decision{Action: shared.SellAction, ReferencePrice: ref}
}

// evaluateBuy determines whether a position should be entered.
func (e *Engine) evaluateBuy(in *Input) shared.Decision {
	if !indicator.Defined(in.BuyEMA) {
		return shared.Hold()
	}

	switch e.cfg.EntryMode {
	case Crossover:
		// Only a strict upward cross into the band triggers an entry, being
		// inside the band is not enough.
		if !indicator.Defined(in.PrevRSISMA) {
			return shared.Hold()
		}
		if in.PrevRSISMA < e.cfg.RSILowerBound &&
			in.RSISMA >= e.cfg.RSILowerBound && in.RSISMA <= e.cfg.RSIUpperBound {
			return shared.Decision{Action: shared.BuyAction, ReferencePrice: in.BuyEMA}
		}
	default:
		if in.RSISMA >= e.cfg.RSILowerBound && in.Close >= in.BuyEMA {
			return shared.Decision{Action: shared.BuyAction, ReferencePrice: in.BuyEMA}
		}
	}

	return shared.Hold()
}

// Evaluate turns the provided indicator state into a single decision for the
// cycle. Buys are never evaluated while a position is open and sells are never
// evaluated without one.
func (e *Engine) Evaluate(in *Input) shared.Decision {
	if !indicator.Defined(in.RSISMA) {
		// Warm-up period.
		return shared.Hold()
	}

	if in.PositionOpen {
		return e.evaluateSell(in)
	}

	return e.evaluateBuy(in)
}
