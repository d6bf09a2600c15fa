package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintoons-server/internal/config"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

func testAuthConfig() *config.Config {
	return &config.Config{
		JWTSecret:       "test-jwt-secret",
		PasswordPepper:  "test-pepper",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		FrontendBaseURL: "https://app.example.com",
	}
}

type authFixture struct {
	users  *mockUserRepo
	subs   *mockSubRepo
	tokens *mockTokenRepo
	emails *mockEmailPublisher
	svc    AuthService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:  &mockUserRepo{},
		subs:   &mockSubRepo{},
		tokens: newMockTokenRepo(),
		emails: &mockEmailPublisher{},
	}
	f.svc = NewAuthService(f.users, f.subs, f.tokens, f.emails, testAuthConfig(), zap.NewNop())
	return f
}

func activeUser(password string) *models.User {
	hash, err := hashPassword(password, "test-pepper")
	if err != nil {
		panic(err)
	}
	return &models.User{
		ID:            uuid.New(),
		Username:      "mia",
		DisplayName:   "Mia",
		Email:         "mia@example.com",
		PasswordHash:  hash,
		Roles:         []string{models.RoleChild},
		Age:           15,
		Status:        models.AccountActive,
		ConsentStatus: models.ConsentNotRequired,
		Tier:          models.TierFree,
	}
}

func TestRegisterAdultSendsWelcomeEmail(t *testing.T) {
	f := newAuthFixture()

	user, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "sam",
		Email:    "Sam@Example.com",
		Password: "password123",
		Age:      16,
	})
	require.NoError(t, err)

	assert.Equal(t, "sam@example.com", user.Email, "email is normalized")
	assert.Equal(t, models.ConsentNotRequired, user.ConsentStatus)
	assert.Equal(t, "sam", user.DisplayName, "display name defaults to username")
	assert.Equal(t, []string{models.RoleChild}, user.Roles)

	require.Len(t, f.subs.created, 1, "free subscription is created")
	assert.Equal(t, models.TierFree, f.subs.created[0].Tier)

	require.Len(t, f.emails.published, 1)
	assert.Equal(t, messaging.EmailWelcome, f.emails.published[0].Kind)
	assert.Equal(t, "sam@example.com", f.emails.published[0].To)
}

func TestRegisterChildRequiresParentEmail(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "mia",
		Email:    "mia@example.com",
		Password: "password123",
		Age:      10,
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Empty(t, f.emails.published)
}

func TestRegisterChildMailsConsentRequestToParent(t *testing.T) {
	f := newAuthFixture()

	user, err := f.svc.Register(context.Background(), RegisterInput{
		Username:    "mia",
		DisplayName: "Mia",
		Email:       "mia@example.com",
		Password:    "password123",
		Age:         10,
		ParentEmail: "Parent@Example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ConsentPending, user.ConsentStatus)
	require.Len(t, f.emails.published, 1)
	mail := f.emails.published[0]
	assert.Equal(t, messaging.EmailParentalConsent, mail.Kind)
	assert.Equal(t, "parent@example.com", mail.To)
	assert.Contains(t, mail.Data["consent_url"], "https://app.example.com/consent?token=")
	assert.Equal(t, "Mia", mail.Data["child_name"])
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Username: "a", Email: "not-an-email", Password: "password123", Age: 15})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "invalid email")

	_, err = f.svc.Register(ctx, RegisterInput{Username: "a", Email: "a@example.com", Password: "short", Age: 15})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "short password")

	_, err = f.svc.Register(ctx, RegisterInput{Username: "a", Email: "a@example.com", Password: "password123", Age: 0})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "implausible age")
}

func TestRegisterDuplicateUsernamePassesThrough(t *testing.T) {
	f := newAuthFixture()
	f.users.createUserFn = func(ctx context.Context, user *models.User) error {
		return models.ErrUserAlreadyExists
	}

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Username: "taken", Email: "a@example.com", Password: "password123", Age: 15,
	})
	assert.ErrorIs(t, err, models.ErrUserAlreadyExists)
	assert.Empty(t, f.subs.created, "no subscription for a failed registration")
}

func TestLoginSuccessStoresTokenPair(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		require.Equal(t, "mia", username)
		return user, nil
	}

	td, err := f.svc.Login(context.Background(), "mia", "password123")
	require.NoError(t, err)

	assert.NotEmpty(t, td.AccessToken)
	assert.NotEmpty(t, td.RefreshToken)
	assert.NotEqual(t, td.AccessToken, td.RefreshToken)

	storedID, err := f.tokens.GetUserIDByAccessUUID(context.Background(), td.AccessUUID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, storedID)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	_, err := f.svc.Login(context.Background(), "mia", "wrong-password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Login(context.Background(), "nobody", "password123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials, "unknown user yields the same error as a bad password")
}

func TestLoginSuspendedAccount(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	user.Status = models.AccountSuspended
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	_, err := f.svc.Login(context.Background(), "mia", "password123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials, "suspension must not be distinguishable from bad credentials")
}

func TestVerifyAccessTokenRevoked(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	td, err := f.svc.Login(context.Background(), "mia", "password123")
	require.NoError(t, err)

	// Valid while stored.
	claims, err := f.svc.VerifyAccessToken(context.Background(), td.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	// Logout revokes it even though the JWT itself is still unexpired.
	require.NoError(t, f.svc.Logout(context.Background(), td.AccessUUID, td.RefreshUUID))
	_, err = f.svc.VerifyAccessToken(context.Background(), td.AccessToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		require.Equal(t, user.ID, id)
		return user, nil
	}

	td, err := f.svc.Login(context.Background(), "mia", "password123")
	require.NoError(t, err)

	newTd, err := f.svc.Refresh(context.Background(), td.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, td.RefreshUUID, newTd.RefreshUUID)

	// The old refresh token is single-use.
	_, err = f.svc.Refresh(context.Background(), td.RefreshToken)
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Refresh(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, models.ErrTokenMalformed)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		return user, nil
	}

	err := f.svc.ChangePassword(context.Background(), user.ID, "wrong-current", "newpassword1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		return user, nil
	}

	var savedHash string
	f.users.updatePasswordFn = func(ctx context.Context, id uuid.UUID, hash string) error {
		savedHash = hash
		return nil
	}

	td, err := f.svc.Login(context.Background(), "mia", "password123")
	require.NoError(t, err)

	err = f.svc.ChangePassword(context.Background(), user.ID, "password123", "newpassword1")
	require.NoError(t, err)

	assert.True(t, checkPasswordHash("newpassword1", savedHash, "test-pepper"))
	_, err = f.tokens.GetUserIDByAccessUUID(context.Background(), td.AccessUUID)
	assert.ErrorIs(t, err, models.ErrTokenNotFound, "existing sessions are revoked")
}

// consentTokenFromEmail pulls the JWT out of the mailed consent link.
func consentTokenFromEmail(t *testing.T, payload messaging.EmailTaskPayload, key string) string {
	t.Helper()
	u, err := url.Parse(payload.Data[key])
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByEmailFn = func(ctx context.Context, email string) (*models.User, error) {
		if email == user.Email {
			return user, nil
		}
		return nil, models.ErrUserNotFound
	}

	var savedHash string
	f.users.updatePasswordFn = func(ctx context.Context, id uuid.UUID, hash string) error {
		require.Equal(t, user.ID, id)
		savedHash = hash
		return nil
	}

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "  MIA@example.com "))
	require.Len(t, f.emails.published, 1)
	require.Equal(t, messaging.EmailPasswordReset, f.emails.published[0].Kind)

	token := consentTokenFromEmail(t, f.emails.published[0], "reset_url")
	require.NoError(t, f.svc.ResetPassword(context.Background(), token, "brandnewpass1"))
	assert.True(t, checkPasswordHash("brandnewpass1", savedHash, "test-pepper"))
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture()

	err := f.svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	assert.NoError(t, err, "unknown address must not be observable")
	assert.Empty(t, f.emails.published)
}

func TestResetPasswordRejectsWrongPurposeToken(t *testing.T) {
	f := newAuthFixture()
	user := activeUser("password123")
	f.users.getByUsernameFn = func(ctx context.Context, username string) (*models.User, error) {
		return user, nil
	}

	// A session token must not work as a reset token.
	td, err := f.svc.Login(context.Background(), "mia", "password123")
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), td.AccessToken, "brandnewpass1")
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestParentalConsentGrantAndRevoke(t *testing.T) {
	f := newAuthFixture()

	child, err := f.svc.Register(context.Background(), RegisterInput{
		Username:    "mia",
		Email:       "mia@example.com",
		Password:    "password123",
		Age:         10,
		ParentEmail: "parent@example.com",
	})
	require.NoError(t, err)
	require.Len(t, f.emails.published, 1)
	token := consentTokenFromEmail(t, f.emails.published[0], "consent_url")

	var consentChanges []models.ConsentStatus
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		require.Equal(t, child.ID, id)
		return child, nil
	}
	f.users.setConsentStatusFn = func(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error {
		require.Equal(t, child.ID, id)
		consentChanges = append(consentChanges, status)
		return nil
	}

	require.NoError(t, f.svc.GrantParentalConsent(context.Background(), token))
	require.NoError(t, f.svc.RevokeParentalConsent(context.Background(), token))
	assert.Equal(t, []models.ConsentStatus{models.ConsentGranted, models.ConsentRevoked}, consentChanges)
}

func TestGrantParentalConsentRejectsTamperedToken(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Username:    "mia",
		Email:       "mia@example.com",
		Password:    "password123",
		Age:         10,
		ParentEmail: "parent@example.com",
	})
	require.NoError(t, err)
	token := consentTokenFromEmail(t, f.emails.published[0], "consent_url")

	// Flip a character in the signature part.
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	err = f.svc.GrantParentalConsent(context.Background(), tampered)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}
