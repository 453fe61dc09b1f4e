package events

import "time"

const (
	EventTypeCheckoutCompleted = "CheckoutCompleted"

	checkoutCompletedSchema = "ecommerce.checkout-completed.v1"
)

type CheckoutCompletedEvent struct {
	EventEnvelope
	Payload CheckoutCompletedPayload `json:"payload"`
}

type CheckoutCompletedPayload struct {
	CheckoutID string         `json:"checkoutId"`
	Lines      []CheckoutLine `json:"lines"`
	Timestamp  time.Time      `json:"timestamp"`
}

// CheckoutLine records one decremented product: what was taken and what is
// left after the commit.
type CheckoutLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
}
