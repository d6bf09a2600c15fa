package database

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
	"mintoons-server/pkg/utils"
)

// Compile-time check to ensure pgNotificationRepository implements NotificationRepository
var _ interfaces.NotificationRepository = (*pgNotificationRepository)(nil)

const notificationColumns = `id, user_id, type, title, body, story_id, read, created_at`

type pgNotificationRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgNotificationRepository creates a new PostgreSQL-backed NotificationRepository.
func NewPgNotificationRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.NotificationRepository {
	return &pgNotificationRepository{
		db:     db,
		logger: logger.Named("PgNotificationRepo"),
	}
}

// Create inserts a new notification.
func (r *pgNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (user_id, type, title, body, story_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, n.UserID, n.Type, n.Title, n.Body, n.StoryID).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create notification in postgres", zap.Error(err),
			zap.String("userID", n.UserID.String()), zap.String("type", string(n.Type)))
		return fmt.Errorf("failed to create notification in postgres: %w", err)
	}
	return nil
}

// ListByUser returns a cursor page of the user's notifications, newest first.
func (r *pgNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Notification, string, error) {
	cursorTime, cursorID, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", models.ErrInvalidCursor
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1`, notificationColumns)
	args := []any{userID}
	if cursorID != uuid.Nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, cursorTime, cursorID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)

	var notifications []models.Notification
	if err := pgxscan.Select(ctx, r.db, &notifications, query, args...); err != nil {
		r.logger.Error("Failed to list notifications from postgres", zap.Error(err), zap.String("userID", userID.String()))
		return nil, "", fmt.Errorf("failed to list notifications: %w", err)
	}

	nextCursor := ""
	if len(notifications) > limit {
		notifications = notifications[:limit]
		last := notifications[len(notifications)-1]
		nextCursor = utils.EncodeCursor(last.CreatedAt, last.ID)
	}
	return notifications, nextCursor, nil
}

// CountUnread returns the user's unread badge count.
func (r *pgNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.logger.Error("Failed to count unread notifications", zap.Error(err), zap.String("userID", userID.String()))
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one notification as read; scoped to the owner.
func (r *pgNotificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.Error(err), zap.String("notificationID", id.String()))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read.
func (r *pgNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to mark all notifications read", zap.Error(err), zap.String("userID", userID.String()))
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes one notification; scoped to the owner.
func (r *pgNotificationRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM notifications WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		r.logger.Error("Failed to delete notification", zap.Error(err), zap.String("notificationID", id.String()))
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotificationNotFound
	}
	return nil
}
