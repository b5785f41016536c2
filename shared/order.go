package shared

// OrderIntent represents a fully adjusted order ready for submission. The
// amount satisfies the market rules it was adjusted with: it is rounded to the
// amount precision, is at least the minimum amount, and its notional value is
// at least the minimum notional.
type OrderIntent struct {
	// Symbol is the trading pair of the order.
	Symbol string
	// Side is the side of the order.
	Side Side
	// Amount is the adjusted order amount, in the base asset.
	Amount float64
	// Price is the limit price of the order. It is zero for market orders.
	Price float64
	// Market flags the order for submission at market price.
	Market bool
}

// Order statuses reported by the exchange.
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
)

// OrderReceipt represents the exchange confirmation for a submitted order.
type OrderReceipt struct {
	// ID is the exchange-assigned order id.
	ID string
	// ClientOrderID is the client-assigned idempotency id for the order.
	ClientOrderID string
	// FilledAmount is the executed amount, in the base asset.
	FilledAmount float64
	// Status is the exchange-reported order status.
	Status string
}

// Filled reports whether the receipt confirms a fully executed order.
func (r *OrderReceipt) Filled() bool {
	return r.Status == OrderStatusFilled
}
