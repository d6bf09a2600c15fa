package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
	"mintoons-server/pkg/utils"
)

// Compile-time check to ensure pgStoryRepository implements StoryRepository
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

const storyColumns = `id, author_id, title, content, genre, status, word_count,
	grammar_score, creativity_score, overall_score, ai_feedback, assessed_at,
	likes_count, comments_count, published_at, created_at, updated_at`

type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgStoryRepository creates a new PostgreSQL-backed StoryRepository.
func NewPgStoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

func scanStory(row pgx.Row, story *models.Story) error {
	return row.Scan(
		&story.ID, &story.AuthorID, &story.Title, &story.Content, &story.Genre,
		&story.Status, &story.WordCount,
		&story.Assessment.Grammar, &story.Assessment.Creativity, &story.Assessment.Overall,
		&story.Assessment.Feedback, &story.Assessment.AssessedAt,
		&story.LikesCount, &story.CommentsCount,
		&story.PublishedAt, &story.CreatedAt, &story.UpdatedAt,
	)
}

// Create inserts a new draft story.
func (r *pgStoryRepository) Create(ctx context.Context, story *models.Story) error {
	query := `INSERT INTO stories (author_id, title, content, genre, status, word_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	r.logger.Debug("Executing query", zap.String("query", query), zap.String("authorID", story.AuthorID.String()))
	err := r.db.QueryRow(ctx, query,
		story.AuthorID, story.Title, story.Content, story.Genre, story.Status, story.WordCount,
	).Scan(&story.ID, &story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create story in postgres", zap.Error(err), zap.String("authorID", story.AuthorID.String()))
		return fmt.Errorf("failed to create story in postgres: %w", err)
	}
	r.logger.Info("Story created", zap.String("storyID", story.ID.String()), zap.String("authorID", story.AuthorID.String()))
	return nil
}

// GetByID retrieves a story by its ID.
func (r *pgStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	query := fmt.Sprintf(`SELECT %s FROM stories WHERE id = $1`, storyColumns)
	story := &models.Story{}
	err := scanStory(r.db.QueryRow(ctx, query, id), story)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrStoryNotFound
		}
		r.logger.Error("Failed to get story from postgres", zap.Error(err), zap.String("storyID", id.String()))
		return nil, fmt.Errorf("failed to get story from postgres: %w", err)
	}
	return story, nil
}

// UpdateContent saves editable fields while the story is still a draft.
func (r *pgStoryRepository) UpdateContent(ctx context.Context, id uuid.UUID, title, content, genre string, wordCount int) error {
	query := `UPDATE stories SET title = $2, content = $3, genre = $4, word_count = $5, updated_at = now()
		WHERE id = $1 AND status = $6`
	tag, err := r.db.Exec(ctx, query, id, title, content, genre, wordCount, models.StoryDraft)
	if err != nil {
		r.logger.Error("Failed to update story content", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to update story content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the story does not exist or it is not a draft; let the
		// caller disambiguate with a follow-up read if it cares.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stories WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check story existence: %w", err)
		}
		if !exists {
			return models.ErrStoryNotFound
		}
		return models.ErrStoryNotDraft
	}
	return nil
}

// UpdateStatus moves the story from expected to next workflow state.
func (r *pgStoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.StoryStatus) error {
	query := `UPDATE stories SET status = $3,
		published_at = CASE WHEN $3 = 'published' THEN now() ELSE published_at END,
		updated_at = now()
		WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, query, id, expected, next)
	if err != nil {
		r.logger.Error("Failed to update story status", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to update story status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Story status updated",
		zap.String("storyID", id.String()),
		zap.String("from", string(expected)),
		zap.String("to", string(next)))
	return nil
}

// SetAssessment stores AI scores and feedback for the story.
func (r *pgStoryRepository) SetAssessment(ctx context.Context, id uuid.UUID, a models.Assessment) error {
	query := `UPDATE stories SET grammar_score = $2, creativity_score = $3, overall_score = $4,
		ai_feedback = $5, assessed_at = now(), updated_at = now()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, a.Grammar, a.Creativity, a.Overall, a.Feedback)
	if err != nil {
		r.logger.Error("Failed to set story assessment", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to set story assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

// Delete removes the story.
func (r *pgStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete story", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	r.logger.Info("Story deleted", zap.String("storyID", id.String()))
	return nil
}

// List returns a cursor page of stories matching the filter, newest first.
func (r *pgStoryRepository) List(ctx context.Context, filter interfaces.StoryFilter, cursor string, limit int) ([]models.Story, string, error) {
	cursorTime, cursorID, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", models.ErrInvalidCursor
	}

	query := fmt.Sprintf(`SELECT %s FROM stories WHERE 1=1`, storyColumns)
	args := []any{}
	argn := 0
	next := func() string {
		argn++
		return fmt.Sprintf("$%d", argn)
	}

	if filter.AuthorID != nil {
		query += ` AND author_id = ` + next()
		args = append(args, *filter.AuthorID)
	}
	if filter.Status != nil {
		query += ` AND status = ` + next()
		args = append(args, *filter.Status)
	}
	if cursorID != uuid.Nil {
		p1, p2 := next(), next()
		query += fmt.Sprintf(` AND (created_at, id) < (%s, %s)`, p1, p2)
		args = append(args, cursorTime, cursorID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list stories from postgres", zap.Error(err))
		return nil, "", fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := make([]models.Story, 0, limit)
	for rows.Next() {
		var story models.Story
		if err := scanStory(rows, &story); err != nil {
			r.logger.Error("Failed to scan story row", zap.Error(err))
			return nil, "", fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed iterating story rows: %w", err)
	}

	nextCursor := ""
	if len(stories) > limit {
		stories = stories[:limit]
		last := stories[len(stories)-1]
		nextCursor = utils.EncodeCursor(last.CreatedAt, last.ID)
	}
	return stories, nextCursor, nil
}

// CountByStatus returns how many stories sit in the given state.
func (r *pgStoryRepository) CountByStatus(ctx context.Context, status models.StoryStatus) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stories WHERE status = $1`, status).Scan(&count); err != nil {
		r.logger.Error("Failed to count stories by status", zap.Error(err), zap.String("status", string(status)))
		return 0, fmt.Errorf("failed to count stories: %w", err)
	}
	return count, nil
}

// WeeklyProgress aggregates words and story counts per author over
// stories touched since the given time.
func (r *pgStoryRepository) WeeklyProgress(ctx context.Context, since time.Time) ([]models.WriterProgress, error) {
	query := `SELECT s.author_id AS user_id, u.email, u.display_name,
			COALESCE(SUM(s.word_count), 0)::INT AS words, COUNT(*)::INT AS stories
		FROM stories s
		JOIN users u ON u.id = s.author_id
		WHERE s.updated_at >= $1 AND u.status = 'active'
		GROUP BY s.author_id, u.email, u.display_name`
	var rows []models.WriterProgress
	if err := pgxscan.Select(ctx, r.db, &rows, query, since); err != nil {
		r.logger.Error("Failed to aggregate weekly progress", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate weekly progress: %w", err)
	}
	return rows, nil
}

func (r *pgStoryRepository) adjustCounter(ctx context.Context, id uuid.UUID, column string, delta int) error {
	query := fmt.Sprintf(`UPDATE stories SET %s = GREATEST(0, %s + $2), updated_at = now() WHERE id = $1`, column, column)
	tag, err := r.db.Exec(ctx, query, id, delta)
	if err != nil {
		r.logger.Error("Failed to adjust story counter", zap.Error(err), zap.String("storyID", id.String()), zap.String("column", column))
		return fmt.Errorf("failed to adjust story %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrStoryNotFound
	}
	return nil
}

func (r *pgStoryRepository) IncrementLikesCount(ctx context.Context, id uuid.UUID) error {
	return r.adjustCounter(ctx, id, "likes_count", 1)
}

func (r *pgStoryRepository) DecrementLikesCount(ctx context.Context, id uuid.UUID) error {
	return r.adjustCounter(ctx, id, "likes_count", -1)
}

func (r *pgStoryRepository) IncrementCommentsCount(ctx context.Context, id uuid.UUID) error {
	return r.adjustCounter(ctx, id, "comments_count", 1)
}

func (r *pgStoryRepository) DecrementCommentsCount(ctx context.Context, id uuid.UUID) error {
	return r.adjustCounter(ctx, id, "comments_count", -1)
}
