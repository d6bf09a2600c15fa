package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

// NotificationService stores notifications and fans them out to live
// WebSocket sessions via the notification exchange.
type NotificationService interface {
	// Notify persists a notification and broadcasts it. Delivery
	// failures are logged, never surfaced: notifications are best-effort
	// side effects of the operation that triggered them.
	Notify(ctx context.Context, n *models.Notification)

	List(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Notification, string, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// Compile-time check to ensure notificationServiceImpl implements NotificationService
var _ NotificationService = (*notificationServiceImpl)(nil)

type notificationServiceImpl struct {
	repo     interfaces.NotificationRepository
	eventPub messaging.NotificationEventPublisher
	logger   *zap.Logger
}

// NewNotificationService creates a new instance of notificationServiceImpl.
func NewNotificationService(
	repo interfaces.NotificationRepository,
	eventPub messaging.NotificationEventPublisher,
	logger *zap.Logger,
) NotificationService {
	return &notificationServiceImpl{
		repo:     repo,
		eventPub: eventPub,
		logger:   logger.Named("NotificationService"),
	}
}

// Notify persists the notification and publishes a fanout event with the
// fresh unread count so connected clients can update their badge.
func (s *notificationServiceImpl) Notify(ctx context.Context, n *models.Notification) {
	log := s.logger.With(zap.String("userID", n.UserID.String()), zap.String("type", string(n.Type)))

	if err := s.repo.Create(ctx, n); err != nil {
		log.Error("Failed to persist notification", zap.Error(err))
		return
	}

	unread, err := s.repo.CountUnread(ctx, n.UserID)
	if err != nil {
		log.Error("Failed to count unread notifications for event", zap.Error(err))
		unread = 0
	}

	event := models.NotificationEvent{
		UserID:       n.UserID.String(),
		Notification: n,
		UnreadCount:  unread,
		Type:         n.Type,
	}
	if err := s.eventPub.PublishNotificationEvent(ctx, event); err != nil {
		log.Error("Failed to publish notification event", zap.Error(err))
	}
}

func (s *notificationServiceImpl) List(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Notification, string, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

func (s *notificationServiceImpl) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *notificationServiceImpl) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *notificationServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}
