package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType names the event that produced a notification.
type NotificationType string

const (
	NotificationAssistReady    NotificationType = "assist_ready"
	NotificationAssessmentDone NotificationType = "assessment_done"
	NotificationNewComment     NotificationType = "new_comment"
	NotificationStoryApproved  NotificationType = "story_approved"
	NotificationChangesNeeded  NotificationType = "changes_needed"
	NotificationBilling        NotificationType = "billing"
	NotificationSystem         NotificationType = "system"
)

// Notification is a per-user message record with a read/unread flag.
type Notification struct {
	ID     uuid.UUID        `db:"id" json:"id"`
	UserID uuid.UUID        `db:"user_id" json:"user_id"`
	Type   NotificationType `db:"type" json:"type"`
	Title  string           `db:"title" json:"title"`
	Body   string           `db:"body" json:"body"`

	// StoryID links the notification to a story when the event concerns one.
	StoryID *uuid.UUID `db:"story_id" json:"story_id,omitempty"`

	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationEvent is the payload fanned out to WebSocket sessions when
// a notification is created. Kept separate from the stored record so the
// wire shape can evolve independently.
type NotificationEvent struct {
	UserID       string           `json:"user_id"`
	Notification *Notification    `json:"notification"`
	UnreadCount  int              `json:"unread_count"`
	Type         NotificationType `json:"type"`
}
