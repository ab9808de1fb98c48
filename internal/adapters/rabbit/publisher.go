package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange = "tours.events"

	RoutingBookingConfirmed = "booking.confirmed"
)

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// Publish sends a persistent JSON message. messageID lets consumers drop
// redeliveries.
func (p *Publisher) Publish(ctx context.Context, key, messageID string, body []byte) error {
	return p.ch.PublishWithContext(ctx, Exchange, key, false, false, amqp.Publishing{
		MessageId:    messageID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
