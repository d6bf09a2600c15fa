package models

import (
	"time"

	"github.com/google/uuid"
)

// CommentType classifies mentor feedback on a story.
type CommentType string

const (
	CommentGrammar    CommentType = "grammar"
	CommentSuggestion CommentType = "suggestion"
	CommentPraise     CommentType = "praise"
	CommentQuestion   CommentType = "question"
)

// IsValidCommentType reports whether the given string is a known comment type.
func IsValidCommentType(t CommentType) bool {
	switch t {
	case CommentGrammar, CommentSuggestion, CommentPraise, CommentQuestion:
		return true
	default:
		return false
	}
}

// Comment is a piece of mentor feedback attached to a story.
type Comment struct {
	ID       uuid.UUID   `db:"id" json:"id"`
	StoryID  uuid.UUID   `db:"story_id" json:"story_id"`
	AuthorID uuid.UUID   `db:"author_id" json:"author_id"` // the mentor who wrote it
	Type     CommentType `db:"type" json:"type"`
	Content  string      `db:"content" json:"content"`

	// Highlighted passage the feedback refers to, optional.
	HighlightedText string `db:"highlighted_text" json:"highlighted_text,omitempty"`

	Resolved   bool       `db:"resolved" json:"resolved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
