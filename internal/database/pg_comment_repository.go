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

// Compile-time check to ensure pgCommentRepository implements CommentRepository
var _ interfaces.CommentRepository = (*pgCommentRepository)(nil)

const commentColumns = `id, story_id, author_id, type, content, highlighted_text,
	resolved, resolved_at, created_at, updated_at`

type pgCommentRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgCommentRepository creates a new PostgreSQL-backed CommentRepository.
func NewPgCommentRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.CommentRepository {
	return &pgCommentRepository{
		db:     db,
		logger: logger.Named("PgCommentRepo"),
	}
}

// Create inserts a new comment.
func (r *pgCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	query := `INSERT INTO comments (story_id, author_id, type, content, highlighted_text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		comment.StoryID, comment.AuthorID, comment.Type, comment.Content, comment.HighlightedText,
	).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create comment in postgres", zap.Error(err),
			zap.String("storyID", comment.StoryID.String()))
		return fmt.Errorf("failed to create comment in postgres: %w", err)
	}
	r.logger.Info("Comment created",
		zap.String("commentID", comment.ID.String()),
		zap.String("storyID", comment.StoryID.String()),
		zap.String("type", string(comment.Type)))
	return nil
}

// GetByID retrieves a comment by its ID.
func (r *pgCommentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM comments WHERE id = $1`, commentColumns)
	comment := &models.Comment{}
	if err := pgxscan.Get(ctx, r.db, comment, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrCommentNotFound
		}
		r.logger.Error("Failed to get comment from postgres", zap.Error(err), zap.String("commentID", id.String()))
		return nil, fmt.Errorf("failed to get comment from postgres: %w", err)
	}
	return comment, nil
}

// ListByStory returns all comments for a story, oldest first.
func (r *pgCommentRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.Comment, error) {
	query := fmt.Sprintf(`SELECT %s FROM comments WHERE story_id = $1 ORDER BY created_at ASC, id ASC`, commentColumns)
	var comments []models.Comment
	if err := pgxscan.Select(ctx, r.db, &comments, query, storyID); err != nil {
		r.logger.Error("Failed to list comments from postgres", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// SetResolved flips the resolution flag.
func (r *pgCommentRepository) SetResolved(ctx context.Context, id uuid.UUID, resolved bool) error {
	query := `UPDATE comments SET resolved = $2,
		resolved_at = CASE WHEN $2 THEN now() ELSE NULL END,
		updated_at = now()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, resolved)
	if err != nil {
		r.logger.Error("Failed to set comment resolution", zap.Error(err), zap.String("commentID", id.String()))
		return fmt.Errorf("failed to set comment resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrCommentNotFound
	}
	return nil
}

// Delete removes the comment.
func (r *pgCommentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete comment", zap.Error(err), zap.String("commentID", id.String()))
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrCommentNotFound
	}
	return nil
}
