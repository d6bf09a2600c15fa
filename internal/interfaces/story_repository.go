package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// StoryFilter narrows story listings.
type StoryFilter struct {
	AuthorID *uuid.UUID
	Status   *models.StoryStatus
}

// StoryRepository defines persistence for stories.
type StoryRepository interface {
	// Create inserts a new draft and fills in the generated ID.
	Create(ctx context.Context, story *models.Story) error

	// GetByID returns models.ErrStoryNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)

	// UpdateContent saves title/content/genre and the recomputed word
	// count. Only draft stories are updated; returns
	// models.ErrStoryNotDraft when the row is in another state.
	UpdateContent(ctx context.Context, id uuid.UUID, title, content, genre string, wordCount int) error

	// UpdateStatus moves the story between workflow states, requiring the
	// current status to match expected (optimistic guard against
	// concurrent moderation). Returns models.ErrNotFound when no row with
	// the expected status matches.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.StoryStatus) error

	// SetAssessment stores AI scores and feedback for the story.
	SetAssessment(ctx context.Context, id uuid.UUID, a models.Assessment) error

	// Delete removes the story. The service layer decides who may delete
	// in which state.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns a cursor page of stories matching the filter, newest
	// first.
	List(ctx context.Context, filter StoryFilter, cursor string, limit int) ([]models.Story, string, error)

	// CountByStatus returns how many stories sit in the given state.
	// Used by the admin dashboard and the moderation queue badge.
	CountByStatus(ctx context.Context, status models.StoryStatus) (int64, error)

	// WeeklyProgress aggregates words and story counts per author over
	// stories touched since the given time, for active accounts only.
	// Feeds the weekly progress summary email.
	WeeklyProgress(ctx context.Context, since time.Time) ([]models.WriterProgress, error)

	IncrementLikesCount(ctx context.Context, id uuid.UUID) error
	DecrementLikesCount(ctx context.Context, id uuid.UUID) error
	IncrementCommentsCount(ctx context.Context, id uuid.UUID) error
	DecrementCommentsCount(ctx context.Context, id uuid.UUID) error
}

// LikeRepository defines persistence for story likes.
type LikeRepository interface {
	// AddLike returns models.ErrAlreadyLiked when the pair already exists
	// and models.ErrStoryNotFound when the story FK is violated.
	AddLike(ctx context.Context, userID, storyID uuid.UUID) error

	// RemoveLike returns models.ErrNotLikedYet when there was no like.
	RemoveLike(ctx context.Context, userID, storyID uuid.UUID) error

	// CheckLike reports whether the user has liked the story.
	CheckLike(ctx context.Context, userID, storyID uuid.UUID) (bool, error)
}
