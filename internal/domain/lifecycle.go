package domain

import "fmt"

// orderTransitions is the complete lifecycle table. A state missing from the
// table is terminal.
var orderTransitions = map[OrderState][]OrderState{
	OrderStateCreated:         {OrderStateAwaitingPayment, OrderStatePaid, OrderStateCancelled},
	OrderStateAwaitingPayment: {OrderStatePaid, OrderStateCancelled},
	OrderStatePaid:            {OrderStateFulfilling, OrderStateRefunded},
	OrderStateFulfilling:      {OrderStateShipped, OrderStateRefunded},
	OrderStateShipped:         {OrderStateDelivered},
	OrderStateDelivered:       {},
	OrderStateCancelled:       {},
	OrderStateRefunded:        {},
}

// InvalidTransitionError reports a lifecycle move the table does not allow.
type InvalidTransitionError struct {
	From OrderState
	To   OrderState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order lifecycle: transition %s -> %s is not allowed", e.From, e.To)
}

// ValidOrderState reports whether s is a known lifecycle state.
func ValidOrderState(s OrderState) bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to OrderState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the order to the requested state, or returns an
// InvalidTransitionError leaving the order untouched.
func (o *Order) Transition(to OrderState) error {
	if !CanTransition(o.State, to) {
		return &InvalidTransitionError{From: o.State, To: to}
	}
	o.State = to
	return nil
}

// IsTerminal reports whether no further transition can leave the state.
func (s OrderState) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// IsSettled reports whether the order has moved through a successful payment.
func (s OrderState) IsSettled() bool {
	switch s {
	case OrderStatePaid, OrderStateFulfilling, OrderStateShipped, OrderStateDelivered, OrderStateRefunded:
		return true
	default:
		return false
	}
}
