package indicator

import (
	"fmt"
	"math"

	"github.com/ewnd/pulse/shared"
)

// Series represents a candle window with derived indicator columns aligned by
// index. Warm-up positions of a derived column hold NaN until the rolling
// window backing the column is full. The candle window is copied on creation,
// the caller's slice is never mutated.
type Series struct {
	Candles []shared.Candlestick
	// RSI is the relative strength index column.
	RSI []float64
	// RSISMA is the RSI column smoothed by a second rolling mean, used by
	// signal evaluation.
	RSISMA []float64
	// EMA holds exponential moving average columns keyed by period.
	EMA map[int][]float64
}

// NewSeries initializes a series over a copy of the provided candle window.
func NewSeries(candles []shared.Candlestick) *Series {
	window := make([]shared.Candlestick, len(candles))
	copy(window, candles)

	return &Series{
		Candles: window,
		EMA:     make(map[int][]float64),
	}
}

// Defined reports whether the provided indicator value is past its warm-up
// period.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// undefinedColumn creates an indicator column initialized to NaN.
func undefinedColumn(size int) []float64 {
	column := make([]float64, size)
	for idx := range column {
		column[idx] = math.NaN()
	}

	return column
}

// rollingMean creates the rolling simple mean column of the provided column.
// A position is defined once the trailing window holds period defined values.
func rollingMean(column []float64, period int) []float64 {
	mean := undefinedColumn(len(column))

	var sum float64
	var count int
	for idx := range column {
		if !Defined(column[idx]) {
			continue
		}

		sum += column[idx]
		count++

		if count > period {
			sum -= column[idx-period]
			count--
		}

		if count == period {
			mean[idx] = sum / float64(period)
		}
	}

	return mean
}

// ComputeRSI populates the RSI and smoothed RSI columns of the series using
// a rolling simple mean of gains and losses over the provided period.
func (s *Series) ComputeRSI(period int) error {
	if period <= 0 {
		return fmt.Errorf("rsi period must be positive, got %d", period)
	}

	// One extra candle is needed for the first close-to-close change.
	if len(s.Candles) < period+1 {
		return fmt.Errorf("%w: have %d candles, rsi period %d needs %d",
			shared.ErrInsufficientData, len(s.Candles), period, period+1)
	}

	gains := undefinedColumn(len(s.Candles))
	losses := undefinedColumn(len(s.Candles))
	for idx := 1; idx < len(s.Candles); idx++ {
		change := s.Candles[idx].Close - s.Candles[idx-1].Close
		gains[idx] = math.Max(change, 0)
		losses[idx] = math.Max(-change, 0)
	}

	avgGains := rollingMean(gains, period)
	avgLosses := rollingMean(losses, period)

	rsi := undefinedColumn(len(s.Candles))
	for idx := range rsi {
		if !Defined(avgGains[idx]) || !Defined(avgLosses[idx]) {
			continue
		}

		if avgLosses[idx] == 0 {
			// A lossless window maxes out relative strength.
			rsi[idx] = 100
			continue
		}

		rs := avgGains[idx] / avgLosses[idx]
		rsi[idx] = 100 - 100/(1+rs)
	}

	s.RSI = rsi
	s.RSISMA = rollingMean(rsi, period)

	return nil
}

// ComputeEMA populates the exponential moving average column for the provided
// period, seeded with the first close.
func (s *Series) ComputeEMA(period int) error {
	if period <= 0 {
		return fmt.Errorf("ema period must be positive, got %d", period)
	}

	if len(s.Candles) == 0 {
		return fmt.Errorf("%w: no candles for ema period %d", shared.ErrInsufficientData, period)
	}

	k := 2 / float64(period+1)

	ema := make([]float64, len(s.Candles))
	ema[0] = s.Candles[0].Close
	for idx := 1; idx < len(s.Candles); idx++ {
		ema[idx] = s.Candles[idx].Close*k + ema[idx-1]*(1-k)
	}

	s.EMA[period] = ema

	return nil
}

// CurrentClose returns the latest close of the series, or NaN when the series
// is empty.
func (s *Series) CurrentClose() float64 {
	if len(s.Candles) == 0 {
		return math.NaN()
	}

	return s.Candles[len(s.Candles)-1].Close
}

// CurrentRSISMA returns the latest smoothed RSI value, or NaN during warm-up.
func (s *Series) CurrentRSISMA() float64 {
	if len(s.RSISMA) == 0 {
		return math.NaN()
	}

	return s.RSISMA[len(s.RSISMA)-1]
}

// CurrentEMA returns the latest value of the EMA column for the provided
// period, or NaN when the column has not been computed.
func (s *Series) CurrentEMA(period int) float64 {
	column, ok := s.EMA[period]
	if !ok || len(column) == 0 {
		return math.NaN()
	}

	return column[len(column)-1]
}
