package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/services/catalog-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/services/catalog-service-go/internal/sequence"
)

// Publisher emits enveloped checkout events to the shared topic exchange.
// Sequence numbers come from the per-partition sequence repository so
// consumers can order and deduplicate.
type Publisher struct {
	ch                 *amqp.Channel
	seqRepo            *sequence.Repository
	producerIdentifier string
}

type PublisherOptions struct {
	Producer string
}

func NewPublisher(conn *amqp.Connection, seqRepo *sequence.Repository, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	producer := opts.Producer
	if producer == "" {
		producer = catalogServiceName
	}

	return &Publisher{
		ch:                 ch,
		seqRepo:            seqRepo,
		producerIdentifier: producer,
	}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishCheckoutCompleted(ctx context.Context, checkoutID string, lines []catalog.CartLine, results []catalog.Product) error {
	timestamp := time.Now().UTC()

	remaining := make(map[string]catalog.Product, len(results))
	for _, r := range results {
		remaining[r.Name] = r
	}

	payload := CheckoutCompletedPayload{
		CheckoutID: checkoutID,
		Timestamp:  timestamp,
	}
	for _, line := range lines {
		r := remaining[line.Name]
		payload.Lines = append(payload.Lines, CheckoutLine{
			ProductID: r.ID,
			Name:      line.Name,
			Quantity:  line.Amount,
			Remaining: r.Amount,
		})
	}

	seq, err := p.seqRepo.NextSequence(ctx, checkoutID)
	if err != nil {
		return fmt.Errorf("checkout sequence: %w", err)
	}

	env := newCheckoutCompletedEvent(checkoutID, seq, p.producerIdentifier, payload, timestamp)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal CheckoutCompleted envelope: %w", err)
	}

	return p.publishJSON(ctx, CheckoutCompletedRoutingKey, body)
}

func (p *Publisher) PublishStockDepleted(ctx context.Context, checkoutID string, depleted []catalog.Product) error {
	timestamp := time.Now().UTC()

	payload := StockDepletedPayload{
		CheckoutID: checkoutID,
		Timestamp:  timestamp,
	}
	for _, d := range depleted {
		payload.Depleted = append(payload.Depleted, DepletedEntry{
			ProductID: d.ID,
			Name:      d.Name,
		})
	}

	seq, err := p.seqRepo.NextSequence(ctx, checkoutID)
	if err != nil {
		return fmt.Errorf("depleted sequence: %w", err)
	}

	env := newStockDepletedEvent(checkoutID, seq, p.producerIdentifier, payload, timestamp)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal StockDepleted envelope: %w", err)
	}

	return p.publishJSON(ctx, StockDepletedRoutingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func newCheckoutCompletedEvent(partitionKey string, seq int64, producer string, payload CheckoutCompletedPayload, occurredAt time.Time) CheckoutCompletedEvent {
	return CheckoutCompletedEvent{
		EventEnvelope: EventEnvelope{
			EventName:    EventTypeCheckoutCompleted,
			EventVersion: 1,
			EventID:      uuid.NewString(),
			Producer:     producer,
			PartitionKey: partitionKey,
			Sequence:     seq,
			OccurredAt:   occurredAt,
			Schema:       checkoutCompletedSchema,
		},
		Payload: payload,
	}
}

func newStockDepletedEvent(partitionKey string, seq int64, producer string, payload StockDepletedPayload, occurredAt time.Time) StockDepletedEvent {
	return StockDepletedEvent{
		EventEnvelope: EventEnvelope{
			EventName:    EventTypeStockDepleted,
			EventVersion: 1,
			EventID:      uuid.NewString(),
			Producer:     producer,
			PartitionKey: partitionKey,
			Sequence:     seq,
			OccurredAt:   occurredAt,
			Schema:       stockDepletedSchema,
		},
		Payload: payload,
	}
}
