// Package service publishes booking events and payment requests to
// RabbitMQ.  Publishing is best effort: failures are logged and returned so
// callers can ignore them without failing the request.
package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/carpool-booking/internal/queue"
)

// Publisher sends JSON messages to durable queues on the default exchange.
// It dials per message, which keeps it free of connection state at the cost
// of latency on a path that is never hot.
type Publisher struct {
	URL string
	now func() time.Time
}

func NewPublisher(url string) *Publisher { return &Publisher{URL: url, now: time.Now} }

// Send publishes v to queueName as a persistent JSON message.
func (p *Publisher) Send(ctx context.Context, queueName string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("rabbitmq: marshal %s message failed: %v", queueName, err)
		return err
	}
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare %s failed: %v", queueName, err)
		return err
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, p.publishing(body)); err != nil {
		log.Printf("rabbitmq: publish to %s failed: %v", queueName, err)
		return err
	}
	return nil
}

func (p *Publisher) publishing(body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
}

// Emit publishes a booking event, stamping it when At is zero.
func (p *Publisher) Emit(ctx context.Context, ev queue.BookingEvent) error {
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	return p.Send(ctx, queue.BookingEventsQueue, ev)
}

// EmitAsync publishes on a background goroutine with its own timeout so a
// slow broker never delays an HTTP response.
func (p *Publisher) EmitAsync(ev queue.BookingEvent) {
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Emit(ctx, ev)
	}()
}
