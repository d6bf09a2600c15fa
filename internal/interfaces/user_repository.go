package interfaces

import (
	"context"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// UserRepository defines persistence for user accounts.
type UserRepository interface {
	// CreateUser inserts a new user and fills in the generated ID.
	// Returns models.ErrUserAlreadyExists / models.ErrEmailAlreadyExists
	// on unique constraint violations.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByID returns models.ErrUserNotFound when no row matches.
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateProfile updates the editable profile fields.
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// SetStatus changes the account lifecycle state (suspend/restore/soft delete).
	SetStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error

	// SetRoles replaces the user's role list.
	SetRoles(ctx context.Context, id uuid.UUID, roles []string) error

	// SetConsentStatus updates the COPPA parental consent state.
	SetConsentStatus(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error

	// SetTier mirrors the subscription tier onto the user row for cheap reads.
	SetTier(ctx context.Context, id uuid.UUID, tier models.Tier) error

	// RecordWriting bumps the denormalized progress statistics after a
	// story save: delta words written, the consecutive-day streak and
	// the last-wrote timestamp.
	RecordWriting(ctx context.Context, id uuid.UUID, wordsDelta, streakDays int) error

	// AdjustStoryCount shifts the denormalized story counter by delta.
	AdjustStoryCount(ctx context.Context, id uuid.UUID, delta int) error

	// ListUsers returns a page of users ordered by creation time, newest
	// first, with an opaque cursor. Used by the admin dashboard.
	ListUsers(ctx context.Context, cursor string, limit int) ([]models.User, string, error)

	// CountUsers returns the total number of accounts.
	CountUsers(ctx context.Context) (int64, error)
}
