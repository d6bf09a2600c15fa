package messaging

// Queue and exchange names shared by the API server (publisher side) and
// the worker (consumer side). Durable task queues carry DLX arguments so
// failed deliveries land in a TTL retry queue instead of being lost.
const (
	// AI assist generation tasks.
	QueueAssistTasks      = "mintoons_assist_tasks"
	AssistTasksDLX        = "mintoons_assist_tasks_dlx"
	AssistTasksRetryQueue = "mintoons_assist_tasks_retry"

	// Outbound email.
	QueueEmailTasks      = "mintoons_email_tasks"
	EmailTasksDLX        = "mintoons_email_tasks_dlx"
	EmailTasksRetryQueue = "mintoons_email_tasks_retry"

	// Fanout of notification events to WebSocket server instances.
	ExchangeNotifications = "mintoons_notification_events"

	// DLX routing key shared by the retry queues.
	retryRoutingKey = "retry"

	// Delay before a dead-lettered task is redelivered.
	retryDelayMs = 30000

	// Delivery attempts (first + redeliveries) before a task is dropped.
	MaxDeliveryAttempts = 3
)
