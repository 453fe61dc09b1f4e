package events

import (
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange              = "ecommerce.events"
	CheckoutCompletedRoutingKey = "checkout.completed.v1"
	StockDepletedRoutingKey     = "stock.depleted.v1"
	catalogServiceName          = "catalog-service-go"
)

func declareEventsExchange(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

// MustDial connects to RabbitMQ or exits. Callers decide whether messaging is
// enabled at all; an empty URL never reaches this function.
func MustDial(url string) *amqp.Connection {
	conn, err := amqp.Dial(url)
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	return conn
}
