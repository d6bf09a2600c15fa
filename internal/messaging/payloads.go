package messaging

import (
	"mintoons-server/internal/models"
)

// AssistTaskPayload is the message enqueued for one AI assist request.
type AssistTaskPayload struct {
	TaskID  string            `json:"task_id"`
	UserID  string            `json:"user_id"`
	StoryID string            `json:"story_id"`
	Kind    models.AssistKind `json:"kind"`

	// Prompt is the user's free-form request for continue/idea tasks.
	Prompt string `json:"prompt,omitempty"`
}

// EmailKind selects the template the worker renders.
type EmailKind string

const (
	EmailWelcome         EmailKind = "welcome"
	EmailParentalConsent EmailKind = "parental_consent"
	EmailPasswordReset   EmailKind = "password_reset"
	EmailMentorFeedback  EmailKind = "mentor_feedback"
	EmailWeeklyProgress  EmailKind = "weekly_progress"
)

// EmailTaskPayload is the message enqueued for one outbound email.
// Data carries the template variables; keeping it a flat string map keeps
// the queue format stable while templates evolve.
type EmailTaskPayload struct {
	Kind    EmailKind         `json:"kind"`
	To      string            `json:"to"`
	ToName  string            `json:"to_name,omitempty"`
	Subject string            `json:"subject,omitempty"` // empty = template default
	Data    map[string]string `json:"data,omitempty"`
}
