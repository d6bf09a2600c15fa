package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
	"mintoons-server/pkg/utils"
)

// Compile-time check to ensure pgUserRepository implements UserRepository
var _ interfaces.UserRepository = (*pgUserRepository)(nil)

const userColumns = `id, username, display_name, email, password_hash, roles, age, status,
	parent_email, consent_status, tier, story_count, words_written, streak_days, last_wrote_at, created_at, updated_at`

type pgUserRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgUserRepository creates a new PostgreSQL-backed UserRepository.
func NewPgUserRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.UserRepository {
	return &pgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

// CreateUser inserts a new user into the database.
func (r *pgUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, email, password_hash, display_name, roles, age, status, parent_email, consent_status, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	r.logger.Debug("Executing query", zap.String("query", query), zap.String("username", user.Username), zap.String("email", user.Email))
	err := r.db.QueryRow(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.DisplayName, user.Roles,
		user.Age, user.Status, user.ParentEmail, user.ConsentStatus, user.Tier,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation (duplicate username or email)
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			logFields := []zap.Field{zap.String("username", user.Username), zap.String("email", user.Email)}
			if pgErr.ConstraintName == "users_email_key" {
				r.logger.Warn("Attempted to create duplicate user by email", logFields...)
				return models.ErrEmailAlreadyExists
			}
			r.logger.Warn("Attempted to create duplicate user by username", logFields...)
			return models.ErrUserAlreadyExists
		}
		r.logger.Error("Failed to create user in postgres", zap.Error(err), zap.String("username", user.Username))
		return fmt.Errorf("failed to create user in postgres: %w", err)
	}
	r.logger.Info("User created", zap.String("userID", user.ID.String()), zap.String("username", user.Username))
	return nil
}

func (r *pgUserRepository) getUserWhere(ctx context.Context, where string, arg any) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)
	user := &models.User{}
	err := pgxscan.Get(ctx, r.db, user, query, arg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user from postgres", zap.Error(err), zap.String("where", where))
		return nil, fmt.Errorf("failed to get user from postgres: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *pgUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getUserWhere(ctx, "id = $1", id)
}

// GetUserByUsername retrieves a user by their username.
func (r *pgUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUserWhere(ctx, "username = $1", username)
}

// GetUserByEmail retrieves a user by their email.
func (r *pgUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUserWhere(ctx, "email = $1", email)
}

func (r *pgUserRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update user in postgres", zap.Error(err), zap.String("query", query))
		return fmt.Errorf("failed to update user in postgres: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// UpdateProfile updates the editable profile fields.
func (r *pgUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) error {
	query := `UPDATE users SET display_name = $2, updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, displayName)
}

// UpdatePassword replaces the stored password hash.
func (r *pgUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, passwordHash)
}

// SetStatus changes the account lifecycle state.
func (r *pgUserRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error {
	query := `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, status)
}

// SetRoles replaces the user's role list.
func (r *pgUserRepository) SetRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	query := `UPDATE users SET roles = $2, updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, roles)
}

// SetConsentStatus updates the COPPA parental consent state.
func (r *pgUserRepository) SetConsentStatus(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error {
	query := `UPDATE users SET consent_status = $2, updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, status)
}

// SetTier mirrors the subscription tier onto the user row.
func (r *pgUserRepository) SetTier(ctx context.Context, id uuid.UUID, tier models.Tier) error {
	query := `UPDATE users SET tier = $2, updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, tier)
}

// RecordWriting bumps words_written, the streak and last_wrote_at after
// a story save. The streak value is computed by the service from the
// previously loaded row.
func (r *pgUserRepository) RecordWriting(ctx context.Context, id uuid.UUID, wordsDelta, streakDays int) error {
	query := `UPDATE users SET
		words_written = GREATEST(0, words_written + $2),
		streak_days = $3,
		last_wrote_at = now(),
		updated_at = now()
		WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, wordsDelta, streakDays)
}

// AdjustStoryCount shifts the denormalized story counter by delta.
func (r *pgUserRepository) AdjustStoryCount(ctx context.Context, id uuid.UUID, delta int) error {
	query := `UPDATE users SET story_count = GREATEST(0, story_count + $2), updated_at = now() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, delta)
}

// ListUsers returns a page of users ordered by creation time, newest first.
func (r *pgUserRepository) ListUsers(ctx context.Context, cursor string, limit int) ([]models.User, string, error) {
	cursorTime, cursorID, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, "", models.ErrInvalidCursor
	}

	query := fmt.Sprintf(`SELECT %s FROM users`, userColumns)
	args := []any{}
	if cursorID != uuid.Nil {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, cursorTime, cursorID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit+1)

	var users []models.User
	if err := pgxscan.Select(ctx, r.db, &users, query, args...); err != nil {
		r.logger.Error("Failed to list users from postgres", zap.Error(err))
		return nil, "", fmt.Errorf("failed to list users: %w", err)
	}

	nextCursor := ""
	if len(users) > limit {
		users = users[:limit]
		last := users[len(users)-1]
		nextCursor = utils.EncodeCursor(last.CreatedAt, last.ID)
	}
	return users, nextCursor, nil
}

// CountUsers returns the total number of accounts.
func (r *pgUserRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		r.logger.Error("Failed to count users", zap.Error(err))
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
