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

// Compile-time check to ensure pgAIKeyRepository implements AIKeyRepository
var _ interfaces.AIKeyRepository = (*pgAIKeyRepository)(nil)

const aiKeyColumns = `id, provider, label, encrypted_key, active, request_count,
	tokens_used, estimated_cost_usd, failure_count, last_used_at, created_at, updated_at`

type pgAIKeyRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgAIKeyRepository creates a new PostgreSQL-backed AIKeyRepository.
func NewPgAIKeyRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.AIKeyRepository {
	return &pgAIKeyRepository{
		db:     db,
		logger: logger.Named("PgAIKeyRepo"),
	}
}

// Create inserts a new key record.
func (r *pgAIKeyRepository) Create(ctx context.Context, key *models.AIKey) error {
	query := `INSERT INTO ai_keys (provider, label, encrypted_key, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query, key.Provider, key.Label, key.EncryptedKey, key.Active).
		Scan(&key.ID, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create AI key in postgres", zap.Error(err), zap.String("label", key.Label))
		return fmt.Errorf("failed to create AI key in postgres: %w", err)
	}
	r.logger.Info("AI key created", zap.String("keyID", key.ID.String()), zap.String("provider", string(key.Provider)))
	return nil
}

// GetByID retrieves a key record by its ID.
func (r *pgAIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM ai_keys WHERE id = $1`, aiKeyColumns)
	key := &models.AIKey{}
	if err := pgxscan.Get(ctx, r.db, key, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAIKeyNotFound
		}
		r.logger.Error("Failed to get AI key from postgres", zap.Error(err), zap.String("keyID", id.String()))
		return nil, fmt.Errorf("failed to get AI key from postgres: %w", err)
	}
	return key, nil
}

// List returns all key records for the admin view.
func (r *pgAIKeyRepository) List(ctx context.Context) ([]models.AIKey, error) {
	query := fmt.Sprintf(`SELECT %s FROM ai_keys ORDER BY created_at ASC`, aiKeyColumns)
	var keys []models.AIKey
	if err := pgxscan.Select(ctx, r.db, &keys, query); err != nil {
		r.logger.Error("Failed to list AI keys from postgres", zap.Error(err))
		return nil, fmt.Errorf("failed to list AI keys: %w", err)
	}
	return keys, nil
}

// PickActive returns the least-recently-used active key for the provider,
// stamping last_used_at in the same statement. FOR UPDATE SKIP LOCKED
// keeps concurrent workers from all grabbing the same row.
func (r *pgAIKeyRepository) PickActive(ctx context.Context, provider models.AIProvider) (*models.AIKey, error) {
	query := fmt.Sprintf(`UPDATE ai_keys SET last_used_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM ai_keys
			WHERE provider = $1 AND active = TRUE
			ORDER BY last_used_at ASC NULLS FIRST
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, aiKeyColumns)
	key := &models.AIKey{}
	if err := pgxscan.Get(ctx, r.db, key, query, provider); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("No active AI key available", zap.String("provider", string(provider)))
			return nil, models.ErrNoActiveAIKey
		}
		r.logger.Error("Failed to pick AI key from postgres", zap.Error(err), zap.String("provider", string(provider)))
		return nil, fmt.Errorf("failed to pick AI key: %w", err)
	}
	return key, nil
}

// RecordUsage adds usage deltas and clears the failure streak.
func (r *pgAIKeyRepository) RecordUsage(ctx context.Context, id uuid.UUID, tokens int64, costUSD float64) error {
	query := `UPDATE ai_keys SET request_count = request_count + 1,
		tokens_used = tokens_used + $2,
		estimated_cost_usd = estimated_cost_usd + $3,
		failure_count = 0,
		updated_at = now()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, tokens, costUSD)
	if err != nil {
		r.logger.Error("Failed to record AI key usage", zap.Error(err), zap.String("keyID", id.String()))
		return fmt.Errorf("failed to record AI key usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAIKeyNotFound
	}
	return nil
}

// RecordFailure increments the failure streak and deactivates the key at
// the threshold. Reports whether the key was deactivated.
func (r *pgAIKeyRepository) RecordFailure(ctx context.Context, id uuid.UUID, threshold int) (bool, error) {
	query := `UPDATE ai_keys SET failure_count = failure_count + 1,
		active = CASE WHEN failure_count + 1 >= $2 THEN FALSE ELSE active END,
		updated_at = now()
		WHERE id = $1
		RETURNING active`
	var stillActive bool
	if err := r.db.QueryRow(ctx, query, id, threshold).Scan(&stillActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, models.ErrAIKeyNotFound
		}
		r.logger.Error("Failed to record AI key failure", zap.Error(err), zap.String("keyID", id.String()))
		return false, fmt.Errorf("failed to record AI key failure: %w", err)
	}
	if !stillActive {
		r.logger.Warn("AI key deactivated after repeated failures", zap.String("keyID", id.String()))
	}
	return !stillActive, nil
}

// SetActive enables or disables the key.
func (r *pgAIKeyRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE ai_keys SET active = $2, failure_count = 0, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, active)
	if err != nil {
		r.logger.Error("Failed to set AI key active flag", zap.Error(err), zap.String("keyID", id.String()))
		return fmt.Errorf("failed to set AI key active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAIKeyNotFound
	}
	return nil
}

// Delete removes the key record.
func (r *pgAIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ai_keys WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete AI key", zap.Error(err), zap.String("keyID", id.String()))
		return fmt.Errorf("failed to delete AI key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAIKeyNotFound
	}
	return nil
}
