// Package events publishes order notifications for downstream consumers such
// as the packing station.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"krayotmarket/internal/models"
)

// OrderPlaced is published once per created order.
type OrderPlaced struct {
	OrderID          string               `json:"order_id"`
	PaymentMethod    models.PaymentMethod `json:"payment_method"`
	CustomerName     string               `json:"customer_name"`
	DeliveryCity     string               `json:"delivery_city"`
	DeliveryTimeSlot *string              `json:"delivery_time_slot"`
	ExpressDelivery  bool                 `json:"express_delivery"`
	Items            int                  `json:"items"`
	Total            decimal.Decimal      `json:"total"`
	PlacedAt         time.Time            `json:"placed_at"`
}

// Publisher sends order events.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, e OrderPlaced) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPlaced(context.Context, OrderPlaced) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher writes persistent JSON messages to a durable queue on the
// default exchange.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    Channel
	queue string
}

// DialAMQP connects to the broker and declares the queue.
func DialAMQP(uri, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare %s queue: %w", queue, err)
	}
	log.Printf("events.DialAMQP - Publishing orders to queue %s", q.Name)
	return &AMQPPublisher{conn: conn, ch: ch, queue: q.Name}, nil
}

// NewAMQPPublisher wraps an already declared channel and queue.
func NewAMQPPublisher(ch Channel, queue string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue}
}

func (p *AMQPPublisher) PublishOrderPlaced(ctx context.Context, e OrderPlaced) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.OrderID,
		Timestamp:    e.PlacedAt,
		Type:         "order.placed",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish order %s: %w", e.OrderID, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
