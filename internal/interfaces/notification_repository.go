package interfaces

import (
	"context"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// NotificationRepository defines persistence for user notifications.
type NotificationRepository interface {
	// Create inserts a new notification and fills in the generated ID.
	Create(ctx context.Context, n *models.Notification) error

	// ListByUser returns a cursor page of the user's notifications,
	// newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Notification, string, error)

	// CountUnread returns the user's unread badge count.
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)

	// MarkRead flags one notification as read; scoped to the owner.
	// Returns models.ErrNotificationNotFound when no row matches.
	MarkRead(ctx context.Context, userID, id uuid.UUID) error

	// MarkAllRead flags every unread notification of the user as read and
	// returns how many rows changed.
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)

	// Delete removes one notification; scoped to the owner.
	Delete(ctx context.Context, userID, id uuid.UUID) error
}
