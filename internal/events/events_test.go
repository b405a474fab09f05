package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	key    string
	msgs   []amqp.Publishing
	fail   error
	closed bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.fail != nil {
		return c.fail
	}
	c.key = key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishOrderPlaced(t *testing.T) {
	ch := &recordingChannel{}
	p := NewAMQPPublisher(ch, "orders")

	slot := "2026-06-01 14"
	err := p.PublishOrderPlaced(context.Background(), OrderPlaced{
		OrderID:          "ord-7",
		PaymentMethod:    "cash",
		DeliveryTimeSlot: &slot,
		Items:            3,
		Total:            decimal.RequireFromString("215"),
		PlacedAt:         time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, ch.msgs, 1)

	msg := ch.msgs[0]
	assert.Equal(t, "orders", ch.key)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "ord-7", msg.MessageId)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "ord-7", decoded["order_id"])
	assert.Equal(t, slot, decoded["delivery_time_slot"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublishOrderPlacedError(t *testing.T) {
	p := NewAMQPPublisher(&recordingChannel{fail: errors.New("channel closed")}, "orders")
	err := p.PublishOrderPlaced(context.Background(), OrderPlaced{OrderID: "x"})
	assert.ErrorContains(t, err, "channel closed")
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishOrderPlaced(context.Background(), OrderPlaced{}))
	assert.NoError(t, p.Close())
}
