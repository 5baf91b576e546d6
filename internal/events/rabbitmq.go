// Package events publishes ledger domain events to RabbitMQ for downstream
// consumers (analytics, notifications). Publishing is best-effort: the ledger
// commits first and never rolls back on broker failure.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pavelzar/paylink/internal/domain"
)

// TransferCompletedEvent is the JSON payload published when a transfer commits.
type TransferCompletedEvent struct {
	EventID        string `json:"eventId"`
	EventType      string `json:"eventType"`
	EventTimestamp string `json:"eventTimestamp"`
	FromAccount    string `json:"fromAccount"`
	ToAccount      string `json:"toAccount"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
}

const eventTypeTransferCompleted = "ledger.transfer.completed"

// RabbitMQPublisher implements domain.EventPublisher over a topic exchange.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the topic exchange.
func NewRabbitMQPublisher(url, exchange, routingKey string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

// PublishTransferCompleted publishes the event for a committed transfer.
func (p *RabbitMQPublisher) PublishTransferCompleted(ctx context.Context, record *domain.TransactionRecord) error {
	body, err := json.Marshal(NewTransferCompletedEvent(record))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NewTransferCompletedEvent builds the event payload for a committed transfer.
func NewTransferCompletedEvent(record *domain.TransactionRecord) TransferCompletedEvent {
	return TransferCompletedEvent{
		EventID:        uuid.New().String(),
		EventType:      eventTypeTransferCompleted,
		EventTimestamp: time.Now().UTC().Format(time.RFC3339),
		FromAccount:    record.FromAccount.String(),
		ToAccount:      record.ToAccount.String(),
		Amount:         record.Amount,
		IdempotencyKey: record.IdempotencyKey,
		Status:         string(record.Status),
		Timestamp:      record.Timestamp.UTC().Format(time.RFC3339),
	}
}
