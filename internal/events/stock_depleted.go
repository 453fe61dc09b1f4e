package events

import "time"

const (
	EventTypeStockDepleted = "StockDepleted"

	stockDepletedSchema = "ecommerce.stock-depleted.v1"
)

type StockDepletedEvent struct {
	EventEnvelope
	Payload StockDepletedPayload `json:"payload"`
}

type StockDepletedPayload struct {
	CheckoutID string          `json:"checkoutId"`
	Depleted   []DepletedEntry `json:"depleted"`
	Timestamp  time.Time       `json:"timestamp"`
}

type DepletedEntry struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
}
