package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

// Compile-time check to ensure pgGenerationResultRepository implements GenerationResultRepository
var _ interfaces.GenerationResultRepository = (*pgGenerationResultRepository)(nil)

const generationResultColumns = `id, task_id, user_id, story_id, kind, status, text, error,
	prompt_tokens, completion_tokens, estimated_cost_usd, created_at, updated_at`

type pgGenerationResultRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgGenerationResultRepository creates a new PostgreSQL-backed GenerationResultRepository.
func NewPgGenerationResultRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.GenerationResultRepository {
	return &pgGenerationResultRepository{
		db:     db,
		logger: logger.Named("PgGenerationResultRepo"),
	}
}

// Create inserts a pending result row for a freshly enqueued task.
func (r *pgGenerationResultRepository) Create(ctx context.Context, result *models.GenerationResult) error {
	query := `INSERT INTO generation_results (task_id, user_id, story_id, kind, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		result.TaskID, result.UserID, result.StoryID, result.Kind, result.Status,
	).Scan(&result.ID, &result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create generation result in postgres", zap.Error(err), zap.String("taskID", result.TaskID))
		return fmt.Errorf("failed to create generation result in postgres: %w", err)
	}
	return nil
}

// GetByTaskID retrieves one result row by task ID.
func (r *pgGenerationResultRepository) GetByTaskID(ctx context.Context, taskID string) (*models.GenerationResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM generation_results WHERE task_id = $1`, generationResultColumns)
	result := &models.GenerationResult{}
	if err := pgxscan.Get(ctx, r.db, result, query, taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get generation result from postgres", zap.Error(err), zap.String("taskID", taskID))
		return nil, fmt.Errorf("failed to get generation result: %w", err)
	}
	return result, nil
}

// CompleteSuccess stores the generated text and usage numbers.
func (r *pgGenerationResultRepository) CompleteSuccess(ctx context.Context, taskID, text string, promptTokens, completionTokens int, costUSD float64) error {
	query := `UPDATE generation_results SET status = $2, text = $3, error = '',
		prompt_tokens = $4, completion_tokens = $5, estimated_cost_usd = $6, updated_at = now()
		WHERE task_id = $1`
	tag, err := r.db.Exec(ctx, query, taskID, models.GenerationDone, text, promptTokens, completionTokens, costUSD)
	if err != nil {
		r.logger.Error("Failed to complete generation result", zap.Error(err), zap.String("taskID", taskID))
		return fmt.Errorf("failed to complete generation result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CompleteError stores the failure details.
func (r *pgGenerationResultRepository) CompleteError(ctx context.Context, taskID, errorDetails string) error {
	query := `UPDATE generation_results SET status = $2, error = $3, updated_at = now() WHERE task_id = $1`
	tag, err := r.db.Exec(ctx, query, taskID, models.GenerationError, errorDetails)
	if err != nil {
		r.logger.Error("Failed to mark generation result as failed", zap.Error(err), zap.String("taskID", taskID))
		return fmt.Errorf("failed to mark generation result as failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountPendingForUser reports how many tasks the user has in flight.
func (r *pgGenerationResultRepository) CountPendingForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM generation_results WHERE user_id = $1 AND status = $2`
	if err := r.db.QueryRow(ctx, query, userID, models.GenerationPending).Scan(&count); err != nil {
		r.logger.Error("Failed to count pending generations", zap.Error(err), zap.String("userID", userID.String()))
		return 0, fmt.Errorf("failed to count pending generations: %w", err)
	}
	return count, nil
}
