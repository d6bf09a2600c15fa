package models

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// StoryStatus describes where a story sits in the writing/review flow.
type StoryStatus string

const (
	StoryDraft       StoryStatus = "draft"
	StoryNeedsReview StoryStatus = "needs_review"
	StoryPublished   StoryStatus = "published"
)

// Assessment holds the AI scores produced for a submitted story.
// Scores are 0-100; zero values mean "not assessed yet".
type Assessment struct {
	Grammar    int    `db:"grammar_score" json:"grammar"`
	Creativity int    `db:"creativity_score" json:"creativity"`
	Overall    int    `db:"overall_score" json:"overall"`
	Feedback   string `db:"ai_feedback" json:"feedback,omitempty"`
	AssessedAt *time.Time `db:"assessed_at" json:"assessed_at,omitempty"`
}

// Story is a piece of creative writing belonging to one author.
type Story struct {
	ID       uuid.UUID   `db:"id" json:"id"`
	AuthorID uuid.UUID   `db:"author_id" json:"author_id"`
	Title    string      `db:"title" json:"title"`
	Content  string      `db:"content" json:"content"`
	Genre    string      `db:"genre" json:"genre,omitempty"`
	Status   StoryStatus `db:"status" json:"status"`

	WordCount int `db:"word_count" json:"word_count"`

	Assessment Assessment `json:"assessment"`

	// Denormalized counters, maintained by like/comment repositories.
	LikesCount    int `db:"likes_count" json:"likes_count"`
	CommentsCount int `db:"comments_count" json:"comments_count"`

	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CountWords computes the word count the server trusts, ignoring the
// client-supplied value. A word is any run of non-space characters that
// contains at least one letter or digit.
func CountWords(content string) int {
	count := 0
	for _, field := range strings.FieldsFunc(content, unicode.IsSpace) {
		for _, r := range field {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				count++
				break
			}
		}
	}
	return count
}
