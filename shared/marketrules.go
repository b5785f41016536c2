package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MarketRules represents the per-symbol exchange order constraints. Rules are
// loaded once per symbol by the exchange gateway and are read-only thereafter.
type MarketRules struct {
	// Symbol is the trading pair the rules apply to.
	Symbol string
	// AmountPrecision is the number of decimal places allowed for order amounts.
	AmountPrecision int32
	// PricePrecision is the number of decimal places allowed for order prices.
	PricePrecision int32
	// MinAmount is the minimum order amount accepted by the exchange.
	MinAmount decimal.Decimal
	// MinNotional is the minimum order value (price * amount) accepted by the exchange.
	MinNotional decimal.Decimal
}

// Validate asserts the market rules have sane inputs.
func (r *MarketRules) Validate() error {
	var errs error

	if r.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("market rules symbol cannot be an empty string"))
	}
	if r.AmountPrecision < 0 {
		errs = errors.Join(errs, fmt.Errorf("amount precision cannot be negative: %d", r.AmountPrecision))
	}
	if r.PricePrecision < 0 {
		errs = errors.Join(errs, fmt.Errorf("price precision cannot be negative: %d", r.PricePrecision))
	}
	if r.MinAmount.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("minimum amount cannot be negative: %s", r.MinAmount))
	}
	if r.MinNotional.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("minimum notional cannot be negative: %s", r.MinNotional))
	}

	return errs
}
