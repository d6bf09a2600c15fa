package interfaces

import (
	"context"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// TokenRepository defines storage for issued token UUIDs (Redis).
// A token is valid only while its jti is present in the store, which is
// what makes logout and bans effective before the JWT itself expires.
type TokenRepository interface {
	// SetToken stores the access & refresh UUIDs mapped to the user ID
	// with TTLs matching the token lifetimes.
	SetToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error

	// GetUserIDByAccessUUID returns models.ErrTokenNotFound when the
	// token is absent or expired.
	GetUserIDByAccessUUID(ctx context.Context, accessUUID string) (uuid.UUID, error)

	// GetUserIDByRefreshUUID returns models.ErrTokenNotFound when the
	// token is absent or expired.
	GetUserIDByRefreshUUID(ctx context.Context, refreshUUID string) (uuid.UUID, error)

	// DeleteTokens removes the given token UUIDs, returning how many keys
	// were actually deleted.
	DeleteTokens(ctx context.Context, accessUUID, refreshUUID string) (int64, error)

	// DeleteTokensByUserID removes every token of the user (ban, password
	// change). Returns the number of keys deleted.
	DeleteTokensByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}
