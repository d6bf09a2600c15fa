package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/config"
	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

const maxAssistPromptLength = 1000

// AssistService accepts AI help requests, guards them with quotas and
// hands them to the worker over the task queue. Generation itself is
// asynchronous: the client polls the task or waits for the notification.
type AssistService interface {
	RequestAssist(ctx context.Context, userID, storyID uuid.UUID, kind models.AssistKind, prompt string) (*models.GenerationResult, error)
	GetResult(ctx context.Context, userID uuid.UUID, taskID string) (*models.GenerationResult, error)
}

// Compile-time check to ensure assistServiceImpl implements AssistService
var _ AssistService = (*assistServiceImpl)(nil)

type assistServiceImpl struct {
	storyRepo  interfaces.StoryRepository
	userRepo   interfaces.UserRepository
	subRepo    interfaces.SubscriptionRepository
	resultRepo interfaces.GenerationResultRepository
	taskPub    messaging.AssistTaskPublisher
	cfg        *config.Config
	logger     *zap.Logger
}

// NewAssistService creates a new instance of assistServiceImpl.
func NewAssistService(
	storyRepo interfaces.StoryRepository,
	userRepo interfaces.UserRepository,
	subRepo interfaces.SubscriptionRepository,
	resultRepo interfaces.GenerationResultRepository,
	taskPub messaging.AssistTaskPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) AssistService {
	return &assistServiceImpl{
		storyRepo:  storyRepo,
		userRepo:   userRepo,
		subRepo:    subRepo,
		resultRepo: resultRepo,
		taskPub:    taskPub,
		cfg:        cfg,
		logger:     logger.Named("AssistService"),
	}
}

// RequestAssist validates the request, consumes AI quota and enqueues the
// task. The returned result row is in pending state.
func (s *assistServiceImpl) RequestAssist(ctx context.Context, userID, storyID uuid.UUID, kind models.AssistKind, prompt string) (*models.GenerationResult, error) {
	log := s.logger.With(
		zap.String("userID", userID.String()),
		zap.String("storyID", storyID.String()),
		zap.String("kind", string(kind)))

	if !models.IsValidAssistKind(kind) || len(prompt) > maxAssistPromptLength {
		return nil, models.ErrInvalidInput
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.NeedsParentalConsent() {
		log.Warn("Assist request blocked: parental consent missing")
		return nil, models.ErrConsentPending
	}

	story, err := s.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.AuthorID != userID {
		return nil, models.ErrForbidden
	}
	if kind == models.AssistAssess && models.CountWords(story.Content) == 0 {
		return nil, models.ErrStoryEmpty
	}

	pending, err := s.resultRepo.CountPendingForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending >= s.cfg.AIMaxPendingPerUser {
		log.Info("Assist request rejected: too many pending tasks", zap.Int("pending", pending))
		return nil, models.ErrGenerationInProgress
	}

	limits, err := models.LimitsForTier(user.Tier)
	if err != nil {
		limits, _ = models.LimitsForTier(models.TierFree)
	}
	if err := s.subRepo.ConsumeQuota(ctx, userID, models.QuotaAIRequests, limits.AIRequestsPerDay, time.Now()); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			log.Info("Assist request rejected: daily AI quota exhausted", zap.String("tier", string(user.Tier)))
		}
		return nil, err
	}

	result := &models.GenerationResult{
		TaskID:  uuid.NewString(),
		UserID:  userID,
		StoryID: storyID,
		Kind:    kind,
		Status:  models.GenerationPending,
	}
	if err := s.resultRepo.Create(ctx, result); err != nil {
		return nil, err
	}

	payload := messaging.AssistTaskPayload{
		TaskID:  result.TaskID,
		UserID:  userID.String(),
		StoryID: storyID.String(),
		Kind:    kind,
		Prompt:  prompt,
	}
	if err := s.taskPub.PublishAssistTask(ctx, payload); err != nil {
		log.Error("Failed to publish assist task", zap.Error(err), zap.String("taskID", result.TaskID))
		// The pending row would otherwise hang forever and block the
		// user's pending slot.
		if markErr := s.resultRepo.CompleteError(ctx, result.TaskID, "failed to enqueue task"); markErr != nil {
			log.Error("Failed to mark orphaned task as errored", zap.Error(markErr), zap.String("taskID", result.TaskID))
		}
		return nil, models.ErrGenerationFailed
	}

	log.Info("Assist task enqueued", zap.String("taskID", result.TaskID))
	return result, nil
}

// GetResult returns the task outcome, scoped to its owner.
func (s *assistServiceImpl) GetResult(ctx context.Context, userID uuid.UUID, taskID string) (*models.GenerationResult, error) {
	result, err := s.resultRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if result.UserID != userID {
		return nil, models.ErrNotFound
	}
	return result, nil
}
