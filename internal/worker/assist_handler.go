package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/ai"
	"mintoons-server/internal/config"
	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
	"mintoons-server/internal/service"
	"mintoons-server/pkg/aicrypto"
)

// AssistHandler processes AI assist tasks from the queue: picks a
// provider key, calls the model and persists the outcome.
type AssistHandler struct {
	storyRepo  interfaces.StoryRepository
	resultRepo interfaces.GenerationResultRepository
	aiKeyRepo  interfaces.AIKeyRepository
	cipher     *aicrypto.Cipher
	factory    *ai.Factory
	notifier   service.NotificationService
	cfg        *config.Config
	logger     *zap.Logger
}

// NewAssistHandler creates an AssistHandler.
func NewAssistHandler(
	storyRepo interfaces.StoryRepository,
	resultRepo interfaces.GenerationResultRepository,
	aiKeyRepo interfaces.AIKeyRepository,
	cipher *aicrypto.Cipher,
	factory *ai.Factory,
	notifier service.NotificationService,
	cfg *config.Config,
	logger *zap.Logger,
) *AssistHandler {
	return &AssistHandler{
		storyRepo:  storyRepo,
		resultRepo: resultRepo,
		aiKeyRepo:  aiKeyRepo,
		cipher:     cipher,
		factory:    factory,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.Named("AssistHandler"),
	}
}

// Handle processes one delivery. Returning an error sends the message
// through the retry queue; the result row is marked errored eagerly and
// overwritten if a later attempt succeeds.
func (h *AssistHandler) Handle(ctx context.Context, body []byte) error {
	var task messaging.AssistTaskPayload
	if err := json.Unmarshal(body, &task); err != nil {
		h.logger.Error("Failed to unmarshal assist task, dropping", zap.Error(err))
		// Malformed payloads never become valid; do not retry.
		return nil
	}

	log := h.logger.With(
		zap.String("taskID", task.TaskID),
		zap.String("userID", task.UserID),
		zap.String("kind", string(task.Kind)))
	log.Info("Processing assist task")

	storyID, err := uuid.Parse(task.StoryID)
	if err != nil {
		log.Error("Assist task with invalid story ID, dropping")
		return nil
	}
	userID, err := uuid.Parse(task.UserID)
	if err != nil {
		log.Error("Assist task with invalid user ID, dropping")
		return nil
	}

	story, err := h.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		log.Warn("Story gone before generation, marking task failed", zap.Error(err))
		h.completeError(ctx, task.TaskID, "story no longer exists")
		return nil
	}

	text, usage, genErr := h.generate(ctx, task, story)
	if genErr != nil {
		log.Warn("Generation attempt failed", zap.Error(genErr))
		h.completeError(ctx, task.TaskID, "generation failed, retrying")
		return genErr
	}

	if task.Kind == models.AssistAssess {
		h.applyAssessment(ctx, story, text, userID, log)
	}

	if err := h.resultRepo.CompleteSuccess(ctx, task.TaskID, text, usage.PromptTokens, usage.CompletionTokens, usage.EstimatedCostUSD); err != nil {
		log.Error("Failed to persist generation result", zap.Error(err))
		return err
	}

	if task.Kind != models.AssistAssess {
		h.notifier.Notify(ctx, &models.Notification{
			UserID:  userID,
			Type:    models.NotificationAssistReady,
			Title:   "Your writing helper is ready",
			Body:    fmt.Sprintf("New %s suggestion for %q is waiting for you.", task.Kind, story.Title),
			StoryID: &story.ID,
		})
	}

	log.Info("Assist task completed", zap.Int("totalTokens", usage.TotalTokens))
	return nil
}

// generate picks a provider key, builds the client and runs the model.
func (h *AssistHandler) generate(ctx context.Context, task messaging.AssistTaskPayload, story *models.Story) (string, ai.Usage, error) {
	provider := models.AIProvider(h.cfg.AIProvider)

	key, err := h.aiKeyRepo.PickActive(ctx, provider)
	if err != nil {
		return "", ai.Usage{}, fmt.Errorf("no usable provider key: %w", err)
	}

	apiKey, err := h.cipher.Decrypt(key.EncryptedKey)
	if err != nil {
		h.logger.Error("Failed to decrypt provider key, deactivating",
			zap.Error(err), zap.String("keyID", key.ID.String()))
		if _, recErr := h.aiKeyRepo.RecordFailure(ctx, key.ID, 1); recErr != nil {
			h.logger.Error("Failed to deactivate corrupted key", zap.Error(recErr))
		}
		return "", ai.Usage{}, fmt.Errorf("corrupted provider key: %w", err)
	}

	client, err := h.factory.ClientFor(provider, apiKey)
	if err != nil {
		return "", ai.Usage{}, err
	}

	systemPrompt, userInput, err := ai.BuildPrompt(task.Kind, story, task.Prompt, h.cfg.AIModel)
	if err != nil {
		return "", ai.Usage{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, h.cfg.AIRequestTimeout)
	defer cancel()

	text, usage, err := client.GenerateText(callCtx, systemPrompt, userInput)
	if err != nil {
		deactivated, recErr := h.aiKeyRepo.RecordFailure(ctx, key.ID, h.cfg.AIKeyFailureLimit)
		if recErr != nil {
			h.logger.Error("Failed to record key failure", zap.Error(recErr), zap.String("keyID", key.ID.String()))
		} else if deactivated {
			h.logger.Warn("Provider key deactivated after repeated failures", zap.String("keyID", key.ID.String()))
		}
		return "", ai.Usage{}, err
	}

	if recErr := h.aiKeyRepo.RecordUsage(ctx, key.ID, int64(usage.TotalTokens), usage.EstimatedCostUSD); recErr != nil {
		h.logger.Error("Failed to record key usage", zap.Error(recErr), zap.String("keyID", key.ID.String()))
	}
	return text, usage, nil
}

// applyAssessment parses assess responses and stores the scores.
func (h *AssistHandler) applyAssessment(ctx context.Context, story *models.Story, text string, userID uuid.UUID, log *zap.Logger) {
	assessment, err := ai.ParseAssessment(text)
	if err != nil {
		// Keep the raw text as the result; the scores just stay unset.
		log.Warn("Failed to parse assessment response", zap.Error(err))
		return
	}
	now := time.Now()
	assessment.AssessedAt = &now

	if err := h.storyRepo.SetAssessment(ctx, story.ID, assessment); err != nil {
		log.Error("Failed to store assessment", zap.Error(err))
		return
	}

	h.notifier.Notify(ctx, &models.Notification{
		UserID:  userID,
		Type:    models.NotificationAssessmentDone,
		Title:   "Your story has been reviewed",
		Body:    fmt.Sprintf("%q scored %d/100 overall. Read the feedback to level up!", story.Title, assessment.Overall),
		StoryID: &story.ID,
	})
}

func (h *AssistHandler) completeError(ctx context.Context, taskID, details string) {
	if err := h.resultRepo.CompleteError(ctx, taskID, details); err != nil {
		h.logger.Error("Failed to mark task as errored", zap.Error(err), zap.String("taskID", taskID))
	}
}
