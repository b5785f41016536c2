package shared

import (
	"errors"
	"fmt"
)

// ErrInsufficientData indicates a candle window shorter than the rolling
// period an indicator needs. It signals a cycle skip during warm-up, not a
// failure.
var ErrInsufficientData = errors.New("insufficient candle data")

// ErrorKind classifies exchange-facing failures.
type ErrorKind int

const (
	// NetworkError indicates a transport-level failure reaching the exchange.
	NetworkError ErrorKind = iota
	// ExchangeTransientError indicates a temporary exchange-side failure.
	ExchangeTransientError
	// InsufficientFundsError indicates the account balance cannot cover the order.
	InsufficientFundsError
	// InvalidParametersError indicates the exchange rejected the call inputs.
	InvalidParametersError
)

// String stringifies the provided error kind.
func (k *ErrorKind) String() string {
	switch *k {
	case NetworkError:
		return "network error"
	case ExchangeTransientError:
		return "exchange transient error"
	case InsufficientFundsError:
		return "insufficient funds"
	case InvalidParametersError:
		return "invalid parameters"
	default:
		return "unknown"
	}
}

// MarketError represents a classified exchange-facing failure.
type MarketError struct {
	// Kind is the failure classification.
	Kind ErrorKind
	// Err is the underlying failure.
	Err error
}

// Error satisfies the error interface.
func (e *MarketError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind.String(), e.Err)
}

// Unwrap returns the underlying failure.
func (e *MarketError) Unwrap() error {
	return e.Err
}

// NewMarketError creates a classified market error from the provided failure.
func NewMarketError(kind ErrorKind, err error) *MarketError {
	return &MarketError{Kind: kind, Err: err}
}

// Retryable reports whether the provided failure is transient and worth
// retrying. Unclassified failures are treated as permanent.
func Retryable(err error) bool {
	var mErr *MarketError
	if !errors.As(err, &mErr) {
		return false
	}

	switch mErr.Kind {
	case NetworkError, ExchangeTransientError:
		return true
	default:
		return false
	}
}

// IsInsufficientFunds reports whether the provided failure is an insufficient
// funds rejection.
func IsInsufficientFunds(err error) bool {
	var mErr *MarketError
	return errors.As(err, &mErr) && mErr.Kind == InsufficientFundsError
}
