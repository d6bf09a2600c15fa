package worker

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"mintoons-server/internal/email"
	"mintoons-server/internal/messaging"
)

// EmailHandler renders and delivers queued transactional emails.
type EmailHandler struct {
	sender email.Sender
	logger *zap.Logger
}

// NewEmailHandler creates an EmailHandler.
func NewEmailHandler(sender email.Sender, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		sender: sender,
		logger: logger.Named("EmailHandler"),
	}
}

// Handle processes one email task. Returning an error requeues the
// delivery through the retry queue.
func (h *EmailHandler) Handle(ctx context.Context, body []byte) error {
	var task messaging.EmailTaskPayload
	if err := json.Unmarshal(body, &task); err != nil {
		h.logger.Error("Failed to unmarshal email task, dropping", zap.Error(err))
		return nil
	}

	msg, err := email.Render(task)
	if err != nil {
		// Rendering is deterministic; retrying cannot help.
		h.logger.Error("Failed to render email, dropping",
			zap.Error(err), zap.String("kind", string(task.Kind)))
		return nil
	}

	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.Warn("Email delivery failed",
			zap.Error(err),
			zap.String("kind", string(task.Kind)),
			zap.String("to", task.To))
		return err
	}

	h.logger.Info("Email delivered",
		zap.String("kind", string(task.Kind)),
		zap.String("to", task.To))
	return nil
}
