package interfaces

import (
	"context"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// AIKeyRepository defines persistence for encrypted provider API keys.
type AIKeyRepository interface {
	// Create inserts a new key record and fills in the generated ID.
	Create(ctx context.Context, key *models.AIKey) error

	// GetByID returns models.ErrAIKeyNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*models.AIKey, error)

	// List returns all key records for the admin view.
	List(ctx context.Context) ([]models.AIKey, error)

	// PickActive returns the least-recently-used active key for the
	// provider and stamps last_used_at in the same statement, so
	// concurrent workers spread load across keys. Returns
	// models.ErrNoActiveAIKey when none is available.
	PickActive(ctx context.Context, provider models.AIProvider) (*models.AIKey, error)

	// RecordUsage adds request/token/cost deltas and clears the failure
	// streak after a successful call.
	RecordUsage(ctx context.Context, id uuid.UUID, tokens int64, costUSD float64) error

	// RecordFailure increments the failure streak and deactivates the key
	// once it reaches threshold. Reports whether the key was deactivated.
	RecordFailure(ctx context.Context, id uuid.UUID, threshold int) (bool, error)

	// SetActive enables or disables the key.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// Delete removes the key record.
	Delete(ctx context.Context, id uuid.UUID) error
}

// GenerationResultRepository defines persistence for AI assist outcomes.
type GenerationResultRepository interface {
	// Create inserts a pending result row for a freshly enqueued task.
	Create(ctx context.Context, result *models.GenerationResult) error

	// GetByTaskID returns models.ErrNotFound when no row matches.
	GetByTaskID(ctx context.Context, taskID string) (*models.GenerationResult, error)

	// CompleteSuccess stores the generated text and usage numbers.
	CompleteSuccess(ctx context.Context, taskID, text string, promptTokens, completionTokens int, costUSD float64) error

	// CompleteError stores the failure details.
	CompleteError(ctx context.Context, taskID, errorDetails string) error

	// CountPendingForUser reports how many tasks the user has in flight,
	// used to refuse piling up duplicate requests.
	CountPendingForUser(ctx context.Context, userID uuid.UUID) (int, error)
}
