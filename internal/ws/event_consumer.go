package ws

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

// EventConsumer subscribes the hub to the notification fanout exchange.
// Each server instance binds its own exclusive queue so every instance
// sees every event and delivers it to whichever users it holds.
type EventConsumer struct {
	conn   *amqp.Connection
	hub    *Hub
	logger *zap.Logger
	done   chan struct{}
}

// NewEventConsumer creates a consumer feeding the hub.
func NewEventConsumer(conn *amqp.Connection, hub *Hub, logger *zap.Logger) *EventConsumer {
	return &EventConsumer{
		conn:   conn,
		hub:    hub,
		logger: logger.Named("WSEventConsumer"),
		done:   make(chan struct{}),
	}
}

// Start binds an exclusive queue to the fanout exchange and forwards
// events until ctx is cancelled.
func (c *EventConsumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(messaging.ExchangeNotifications, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare notification exchange: %w", err)
	}

	// Server-named, exclusive, auto-delete: the queue dies with this
	// instance and undelivered events are simply dropped. Clients
	// recover missed pushes from the notification list.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to declare fanout queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", messaging.ExchangeNotifications, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to bind fanout queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Notification event consumer started", zap.String("queue", q.Name))

	go func() {
		defer func() {
			close(c.done)
			_ = ch.Close()
		}()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Info("Delivery channel closed, exiting event consumer")
					return
				}
				c.deliver(msg.Body)
			case <-ctx.Done():
				c.logger.Info("Context cancelled, stopping event consumer")
				return
			}
		}
	}()

	return nil
}

// Done is closed once the consumer goroutine has exited.
func (c *EventConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *EventConsumer) deliver(body []byte) {
	var event models.NotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error("Failed to unmarshal notification event", zap.Error(err))
		return
	}
	if c.hub.SendToUser(event.UserID, body) {
		c.logger.Debug("Notification pushed", zap.String("userID", event.UserID))
	}
}
