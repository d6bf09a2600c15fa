package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

// Compile-time check to ensure pgLikeRepository implements LikeRepository
var _ interfaces.LikeRepository = (*pgLikeRepository)(nil)

type pgLikeRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgLikeRepository creates a new PostgreSQL-backed LikeRepository.
func NewPgLikeRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.LikeRepository {
	return &pgLikeRepository{
		db:     db,
		logger: logger.Named("PgLikeRepo"),
	}
}

// AddLike inserts a like record.
func (r *pgLikeRepository) AddLike(ctx context.Context, userID, storyID uuid.UUID) error {
	query := `INSERT INTO story_likes (user_id, story_id) VALUES ($1, $2)`
	logFields := []zap.Field{zap.String("userID", userID.String()), zap.String("storyID", storyID.String())}
	_, err := r.db.Exec(ctx, query, userID, storyID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation: like already exists
				r.logger.Debug("Like already exists", logFields...)
				return models.ErrAlreadyLiked
			case "23503": // foreign_key_violation: story or user is gone
				r.logger.Warn("FK violation adding like", logFields...)
				return models.ErrStoryNotFound
			}
		}
		r.logger.Error("Failed to add like in postgres", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to add like: %w", err)
	}
	return nil
}

// RemoveLike deletes a like record.
func (r *pgLikeRepository) RemoveLike(ctx context.Context, userID, storyID uuid.UUID) error {
	query := `DELETE FROM story_likes WHERE user_id = $1 AND story_id = $2`
	tag, err := r.db.Exec(ctx, query, userID, storyID)
	if err != nil {
		r.logger.Error("Failed to remove like in postgres", zap.Error(err),
			zap.String("userID", userID.String()), zap.String("storyID", storyID.String()))
		return fmt.Errorf("failed to remove like: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotLikedYet
	}
	return nil
}

// CheckLike reports whether the user has liked the story.
func (r *pgLikeRepository) CheckLike(ctx context.Context, userID, storyID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM story_likes WHERE user_id = $1 AND story_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, storyID).Scan(&exists); err != nil {
		r.logger.Error("Failed to check like in postgres", zap.Error(err),
			zap.String("userID", userID.String()), zap.String("storyID", storyID.String()))
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return exists, nil
}
