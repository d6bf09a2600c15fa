package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DeliveryHandler processes one message body. A returned error sends the
// delivery through the DLX retry loop until MaxDeliveryAttempts is
// reached, after which it is dropped with an error log.
type DeliveryHandler func(ctx context.Context, body []byte) error

// TaskConsumer consumes one durable task queue with DLX-based retry.
type TaskConsumer struct {
	conn      *amqp.Connection
	queueName string
	handler   DeliveryHandler
	logger    *zap.Logger
	channel   *amqp.Channel
	done      chan struct{}
}

// NewTaskConsumer creates a consumer for the given queue.
func NewTaskConsumer(conn *amqp.Connection, queueName string, handler DeliveryHandler, logger *zap.Logger) *TaskConsumer {
	return &TaskConsumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		logger:    logger.Named("TaskConsumer").With(zap.String("queue", queueName)),
		done:      make(chan struct{}),
	}
}

// Start declares the topology, registers the consumer and processes
// deliveries until ctx is cancelled.
func (c *TaskConsumer) Start(ctx context.Context) error {
	var err error
	c.channel, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareTopology(c.channel); err != nil {
		_ = c.channel.Close()
		return err
	}

	// One unacked message at a time keeps slow AI calls from hoarding
	// the queue on a single worker.
	if err := c.channel.Qos(1, 0, false); err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = c.channel.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Task consumer started, waiting for messages...")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Panic recovered in consumer goroutine", zap.Any("panic", r))
			}
			close(c.done)
			if c.channel != nil {
				_ = c.channel.Close()
			}
		}()

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Info("Delivery channel closed, exiting consumer goroutine")
					return
				}
				c.handleDelivery(ctx, msg)
			case <-ctx.Done():
				c.logger.Info("Context cancelled, stopping consumer")
				return
			}
		}
	}()

	return nil
}

// Done is closed once the consumer goroutine has exited.
func (c *TaskConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *TaskConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	attempt := deliveryAttempt(msg)
	log := c.logger.With(zap.Int("attempt", attempt))

	err := c.handler(ctx, msg.Body)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
		return
	}

	if attempt >= MaxDeliveryAttempts {
		log.Error("Task failed permanently, dropping message",
			zap.Error(err),
			zap.ByteString("body", msg.Body))
		// Ack removes it for good; it has been through the retry loop.
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Error("Failed to ack dropped message", zap.Error(ackErr))
		}
		return
	}

	log.Warn("Task failed, sending to retry queue", zap.Error(err))
	// Nack without requeue dead-letters the message into the retry queue,
	// which TTLs it back here later.
	if nackErr := msg.Nack(false, false); nackErr != nil {
		log.Error("Failed to nack message", zap.Error(nackErr))
	}
}

// deliveryAttempt derives the current attempt number from the x-death
// header RabbitMQ maintains across dead-letter cycles.
func deliveryAttempt(msg amqp.Delivery) int {
	deaths, ok := msg.Headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return 1
	}
	for _, d := range deaths {
		table, ok := d.(amqp.Table)
		if !ok {
			continue
		}
		if table["queue"] == msg.RoutingKey || table["reason"] == "rejected" {
			if count, ok := table["count"].(int64); ok {
				return int(count) + 1
			}
		}
	}
	return 1
}
