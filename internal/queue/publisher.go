package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher writes session audit events to the session.audit queue.
// It attempts to be robust and to never panic; any error is logged
// and returned so the caller can choose to ignore it, which the
// authority does. Messages are marked persistent.
type Publisher struct{ url string }

// NewPublisher builds a publisher for the given AMQP URL; an empty
// URL falls back to the local default broker.
func NewPublisher(url string) *Publisher { return &Publisher{url: amqpURL(url)} }

// Publish declares the queue (idempotent, durable) and sends one
// event on the default exchange.
func (p *Publisher) Publish(ctx context.Context, ev SessionEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("session-audit: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("session-audit: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		auditQueueName, // name
		true,           // durable
		false,          // autoDelete
		false,          // exclusive
		false,          // noWait
		nil,            // args
	); err != nil {
		log.Printf("session-audit: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("session-audit: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",             // default exchange
		auditQueueName, // routing key = queue name
		false,          // mandatory
		false,          // immediate
		pub,
	); err != nil {
		log.Printf("session-audit: publish failed: %v", err)
		return err
	}
	return nil
}
