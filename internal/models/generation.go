package models

import (
	"time"

	"github.com/google/uuid"
)

// AssistKind names the flavor of AI help a writer can request.
type AssistKind string

const (
	AssistContinue AssistKind = "continue" // suggest how the story could go on
	AssistIdea     AssistKind = "idea"     // brainstorm a plot twist or idea
	AssistAssess   AssistKind = "assess"   // score grammar/creativity and give feedback
)

// IsValidAssistKind reports whether the given string is a known assist kind.
func IsValidAssistKind(k AssistKind) bool {
	switch k {
	case AssistContinue, AssistIdea, AssistAssess:
		return true
	default:
		return false
	}
}

// GenerationStatus tracks the lifecycle of one assist task.
type GenerationStatus string

const (
	GenerationPending GenerationStatus = "pending"
	GenerationDone    GenerationStatus = "done"
	GenerationError   GenerationStatus = "error"
)

// GenerationResult stores the outcome of one AI assist task so the client
// can poll for it and the story view can show past suggestions.
type GenerationResult struct {
	ID      uuid.UUID        `db:"id" json:"id"`
	TaskID  string           `db:"task_id" json:"task_id"`
	UserID  uuid.UUID        `db:"user_id" json:"user_id"`
	StoryID uuid.UUID        `db:"story_id" json:"story_id"`
	Kind    AssistKind       `db:"kind" json:"kind"`
	Status  GenerationStatus `db:"status" json:"status"`

	Text  string `db:"text" json:"text,omitempty"`
	Error string `db:"error" json:"error,omitempty"`

	PromptTokens     int     `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int     `db:"completion_tokens" json:"completion_tokens"`
	EstimatedCostUSD float64 `db:"estimated_cost_usd" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
