package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus describes the lifecycle state of a user account.
// Deleted accounts are soft-retired: the row stays for audit and FK
// integrity, but the user can no longer authenticate.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountDeleted   AccountStatus = "deleted"
)

// ConsentStatus tracks COPPA parental consent for under-13 writers.
type ConsentStatus string

const (
	ConsentNotRequired ConsentStatus = "not_required"
	ConsentPending     ConsentStatus = "pending"
	ConsentGranted     ConsentStatus = "granted"
	ConsentRevoked     ConsentStatus = "revoked"
)

// COPPAAgeThreshold is the age below which parental consent is required
// before the account may create or publish content.
const COPPAAgeThreshold = 13

// User represents an account in the system.
type User struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	Username     string        `db:"username" json:"username"`
	DisplayName  string        `db:"display_name" json:"display_name"`
	Email        string        `db:"email" json:"email"`
	PasswordHash string        `db:"password_hash" json:"-"` // never serialized
	Roles        []string      `db:"roles" json:"roles"`
	Age          int           `db:"age" json:"age"`
	Status       AccountStatus `db:"status" json:"status"`

	// COPPA parental consent fields, only meaningful for child accounts.
	ParentEmail   string        `db:"parent_email" json:"parent_email,omitempty"`
	ConsentStatus ConsentStatus `db:"consent_status" json:"consent_status"`

	Tier Tier `db:"tier" json:"tier"`

	// Denormalized progress statistics, maintained by the story service.
	StoryCount   int       `db:"story_count" json:"story_count"`
	WordsWritten int       `db:"words_written" json:"words_written"`
	StreakDays   int       `db:"streak_days" json:"streak_days"`
	LastWroteAt  time.Time `db:"last_wrote_at" json:"last_wrote_at"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NeedsParentalConsent reports whether the account requires granted
// consent before content operations are allowed.
func (u *User) NeedsParentalConsent() bool {
	return u.Age > 0 && u.Age < COPPAAgeThreshold && u.ConsentStatus != ConsentGranted
}

// CanAuthenticate reports whether the account may log in at all.
func (u *User) CanAuthenticate() bool {
	return u.Status == AccountActive
}

// WriterProgress is a per-author writing aggregate over a time window,
// used by the weekly progress summary email.
type WriterProgress struct {
	UserID      uuid.UUID `db:"user_id"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	Words       int       `db:"words"`
	Stories     int       `db:"stories"`
}

// AdvanceStreak returns the consecutive-day writing streak after a save
// at now, given the previous write time and streak value. Days are
// compared in UTC.
func AdvanceStreak(lastWroteAt time.Time, streak int, now time.Time) int {
	if streak < 1 {
		return 1
	}
	last := lastWroteAt.UTC()
	today := now.UTC()
	switch {
	case sameDay(last, today):
		return streak
	case sameDay(last, today.AddDate(0, 0, -1)):
		return streak + 1
	default:
		return 1
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
