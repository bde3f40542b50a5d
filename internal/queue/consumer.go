package queue

import (
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReceiptHandler processes one raw receipt payload with its signature
type ReceiptHandler func(body []byte, signature string) error

// Consumer consumes delivery receipts from the RabbitMQ queue
type Consumer struct {
	conn      *Connection
	queueName string
	handler   ReceiptHandler
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewConsumer creates a new consumer instance
func NewConsumer(conn *Connection, queueName string, handler ReceiptHandler) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	// Same settings as the publisher side
	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start starts consuming receipts from the queue
func (c *Consumer) Start() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	// One receipt at a time; application order is idempotent anyway
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual acknowledgement)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)

		for {
			select {
			case <-c.stopChan:
				log.Println("Receipt consumer stopping...")
				return
			case d, ok := <-msgs:
				if !ok {
					log.Println("Delivery channel closed")
					return
				}

				if err := c.handler(d.Body, extractSignature(d)); err != nil {
					log.Printf("Error processing receipt: %v", err)
					d.Nack(false, true)
				} else {
					d.Ack(false)
				}
			}
		}
	}()

	log.Printf("Receipt consumer started, listening on queue: %s", c.queueName)
	return nil
}

// Stop stops consuming receipts gracefully
func (c *Consumer) Stop() error {
	close(c.stopChan)
	<-c.doneChan
	log.Println("Receipt consumer stopped")
	return nil
}

func extractSignature(d amqp.Delivery) string {
	if d.Headers == nil {
		return ""
	}
	if sig, ok := d.Headers[signatureHeader].(string); ok {
		return sig
	}
	return ""
}
