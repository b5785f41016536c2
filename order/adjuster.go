// Package order adjusts order amounts and prices to exchange market rules and
// sizes buy orders from the available quote balance.
package order

import (
	"errors"
	"fmt"

	"github.com/ewnd/pulse/shared"
	"github.com/shopspring/decimal"
)

// ErrBelowOrderFloor indicates the spendable balance values an order below the
// configured quote-currency floor. The order is skipped, not an error state.
var ErrBelowOrderFloor = errors.New("order value below configured floor")

// AdjustAmount rounds the provided amount down to the amount precision of the
// market rules and clamps it up to the minimum amount. The adjustment is
// idempotent.
func AdjustAmount(rules *shared.MarketRules, amount float64) float64 {
	adjusted := decimal.NewFromFloat(amount).RoundFloor(rules.AmountPrecision)
	if adjusted.LessThan(rules.MinAmount) {
		adjusted = rules.MinAmount
	}

	result, _ := adjusted.Float64()

	return result
}

// AdjustPrice rounds the provided price to the price precision of the market
// rules.
func AdjustPrice(rules *shared.MarketRules, price float64) float64 {
	result, _ := decimal.NewFromFloat(price).Round(rules.PricePrecision).Float64()

	return result
}

// EnsureMinNotional raises the provided amount until its notional value at the
// provided price satisfies the minimum notional of the market rules. The
// amount is never lowered and the adjustment is idempotent.
func EnsureMinNotional(rules *shared.MarketRules, amount float64, price float64) float64 {
	if price <= 0 {
		return amount
	}

	amt := decimal.NewFromFloat(amount)
	prc := decimal.NewFromFloat(price)

	if amt.Mul(prc).GreaterThanOrEqual(rules.MinNotional) {
		return amount
	}

	// Round the boosted amount up so the notional stays above the floor
	// after precision adjustment.
	boosted := rules.MinNotional.Div(prc).RoundCeil(rules.AmountPrecision)
	if boosted.LessThan(rules.MinAmount) {
		boosted = rules.MinAmount
	}

	result, _ := boosted.Float64()

	return result
}

// MeetsMinNotional reports whether the provided amount has a notional value at
// the provided price satisfying the minimum notional of the market rules.
func MeetsMinNotional(rules *shared.MarketRules, amount float64, price float64) bool {
	notional := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(price))

	return notional.GreaterThanOrEqual(rules.MinNotional)
}

// SizeBuy sizes a buy order by spending the provided fraction of the available
// quote balance at the reference price, adjusted to the market rules. It
// returns ErrBelowOrderFloor when the spendable balance is below the provided
// quote-currency floor.
func SizeBuy(rules *shared.MarketRules, balance float64, spendFraction float64, refPrice float64, floor float64) (float64, error) {
	if refPrice <= 0 {
		return 0, fmt.Errorf("reference price must be positive, got %f", refPrice)
	}
	if spendFraction <= 0 || spendFraction > 1 {
		return 0, fmt.Errorf("spend fraction must be in (0, 1], got %f", spendFraction)
	}

	spendable := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(spendFraction))
	if spendable.LessThan(decimal.NewFromFloat(floor)) {
		return 0, fmt.Errorf("%w: spendable %s < floor %f", ErrBelowOrderFloor, spendable, floor)
	}

	raw, _ := spendable.Div(decimal.NewFromFloat(refPrice)).Float64()
	amount := AdjustAmount(rules, raw)
	amount = EnsureMinNotional(rules, amount, refPrice)

	return amount, nil
}
