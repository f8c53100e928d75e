package notify

import (
	"context"
	"fmt"
)

// Event types understood by the notifier filter. These are the values
// accepted in the notify.events config list.
const (
	EventSpreadAlert = "spread_alert"
	EventOrderFilled = "order_filled"
	EventError       = "error"
)

// SpreadAlert reports an unusually wide bid-ask spread on a tracked book.
func (n *Notifier) SpreadAlert(ctx context.Context, question, outcome string, spreadCents int) error {
	title := "Wide spread"
	msg := fmt.Sprintf("%s (%s): spread is %d¢", question, outcome, spreadCents)
	return n.Notify(ctx, EventSpreadAlert, title, msg)
}

// OrderFilled reports that one of the user's resting orders has fully filled.
func (n *Notifier) OrderFilled(ctx context.Context, orderID, outcome string, priceCents int, shares float64) error {
	title := "Order filled"
	msg := fmt.Sprintf("order %s: %.2f shares of %s at %d¢", orderID, shares, outcome, priceCents)
	return n.Notify(ctx, EventOrderFilled, title, msg)
}

// Error reports an operational failure that needs operator attention.
func (n *Notifier) Error(ctx context.Context, where string, err error) error {
	return n.Notify(ctx, EventError, "Error in "+where, err.Error())
}
