package shared

// Side represents the side of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

// String stringifies the provided side.
func (s *Side) String() string {
	switch *s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Action represents the outcome of a signal evaluation.
type Action int

const (
	HoldAction Action = iota
	BuyAction
	SellAction
)

// String stringifies the provided action.
func (a *Action) String() string {
	switch *a {
	case HoldAction:
		return "hold"
	case BuyAction:
		return "buy"
	case SellAction:
		return "sell"
	default:
		return "unknown"
	}
}

// Decision represents the buy, sell or hold outcome of a single evaluation
// cycle. Decisions are produced fresh each cycle and never persisted.
type Decision struct {
	// Action is the decided action for the cycle.
	Action Action
	// ReferencePrice is the price the decided order should be sized against.
	// It is only set for buy and sell actions.
	ReferencePrice float64
}

// Hold returns a hold decision.
func Hold() Decision {
	return Decision{Action: HoldAction}
}
