package interfaces

import (
	"context"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// CommentRepository defines persistence for mentor feedback.
type CommentRepository interface {
	// Create inserts a new comment and fills in the generated ID.
	Create(ctx context.Context, comment *models.Comment) error

	// GetByID returns models.ErrCommentNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)

	// ListByStory returns all comments for a story, oldest first.
	// Feedback threads are short, so no cursor here.
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.Comment, error)

	// SetResolved flips the resolution flag.
	SetResolved(ctx context.Context, id uuid.UUID, resolved bool) error

	// Delete removes the comment.
	Delete(ctx context.Context, id uuid.UUID) error
}
