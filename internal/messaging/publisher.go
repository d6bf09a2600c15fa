package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
)

// AssistTaskPublisher publishes AI assist tasks to the generation queue.
type AssistTaskPublisher interface {
	PublishAssistTask(ctx context.Context, payload AssistTaskPayload) error
}

// EmailPublisher publishes outbound email tasks to the durable mail queue.
type EmailPublisher interface {
	PublishEmail(ctx context.Context, payload EmailTaskPayload) error
}

// NotificationEventPublisher fans notification events out to the
// WebSocket hubs of all running server instances.
type NotificationEventPublisher interface {
	PublishNotificationEvent(ctx context.Context, event models.NotificationEvent) error
}

// rabbitMQPublisher implements all publisher interfaces over one channel.
type rabbitMQPublisher struct {
	channel *amqp.Channel
	logger  *zap.Logger
}

var (
	_ AssistTaskPublisher        = (*rabbitMQPublisher)(nil)
	_ EmailPublisher             = (*rabbitMQPublisher)(nil)
	_ NotificationEventPublisher = (*rabbitMQPublisher)(nil)
)

// taskQueueArgs returns the arguments wiring a task queue to its DLX.
// Must match the consumer's declaration exactly or RabbitMQ refuses the
// second declare.
func taskQueueArgs(dlx string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": retryRoutingKey,
	}
}

// DeclareTopology declares the queues and exchanges this module uses.
// Both publisher and consumer sides call it so startup order does not
// matter.
func DeclareTopology(ch *amqp.Channel) error {
	for _, q := range []struct {
		name, dlx, retry string
	}{
		{QueueAssistTasks, AssistTasksDLX, AssistTasksRetryQueue},
		{QueueEmailTasks, EmailTasksDLX, EmailTasksRetryQueue},
	} {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, taskQueueArgs(q.dlx)); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
		if err := ch.ExchangeDeclare(q.dlx, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLX %s: %w", q.dlx, err)
		}
		// Retry queue: messages sit here for retryDelayMs, then dead-letter
		// back into the main queue.
		retryArgs := amqp.Table{
			"x-message-ttl":             int32(retryDelayMs),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.name,
		}
		if _, err := ch.QueueDeclare(q.retry, true, false, false, false, retryArgs); err != nil {
			return fmt.Errorf("failed to declare retry queue %s: %w", q.retry, err)
		}
		if err := ch.QueueBind(q.retry, retryRoutingKey, q.dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind retry queue %s: %w", q.retry, err)
		}
	}

	if err := ch.ExchangeDeclare(ExchangeNotifications, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare notification exchange: %w", err)
	}
	return nil
}

// NewRabbitMQPublisher opens a channel on the connection, declares the
// topology and returns a publisher usable for all message types.
func NewRabbitMQPublisher(conn *amqp.Connection, logger *zap.Logger) (*rabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("publisher: failed to open channel: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &rabbitMQPublisher{channel: ch, logger: logger.Named("RabbitMQPublisher")}, nil
}

// Close closes the underlying channel.
func (p *rabbitMQPublisher) Close() error {
	return p.channel.Close()
}

func (p *rabbitMQPublisher) publishJSON(ctx context.Context, exchange, routingKey string, persistent bool, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}
	err = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode,
		Body:         body,
	})
	if err != nil {
		p.logger.Error("Failed to publish message",
			zap.String("exchange", exchange),
			zap.String("routingKey", routingKey),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishAssistTask enqueues an AI assist task.
func (p *rabbitMQPublisher) PublishAssistTask(ctx context.Context, payload AssistTaskPayload) error {
	p.logger.Debug("Publishing assist task",
		zap.String("taskID", payload.TaskID),
		zap.String("kind", string(payload.Kind)))
	return p.publishJSON(ctx, "", QueueAssistTasks, true, payload)
}

// PublishEmail enqueues an outbound email task.
func (p *rabbitMQPublisher) PublishEmail(ctx context.Context, payload EmailTaskPayload) error {
	p.logger.Debug("Publishing email task",
		zap.String("kind", string(payload.Kind)),
		zap.String("to", payload.To))
	return p.publishJSON(ctx, "", QueueEmailTasks, true, payload)
}

// PublishNotificationEvent broadcasts a notification event. Transient on
// purpose: a missed live push is recovered from the notification list.
func (p *rabbitMQPublisher) PublishNotificationEvent(ctx context.Context, event models.NotificationEvent) error {
	p.logger.Debug("Publishing notification event", zap.String("userID", event.UserID))
	return p.publishJSON(ctx, ExchangeNotifications, "", false, event)
}
