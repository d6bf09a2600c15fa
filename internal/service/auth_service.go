package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/config"
	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

const (
	tokenIssuer = "mintoons-auth"

	// Audience values distinguish single-purpose tokens from session JWTs.
	audPasswordReset   = "password_reset"
	audParentalConsent = "parental_consent"

	passwordResetTTL   = 1 * time.Hour
	parentalConsentTTL = 7 * 24 * time.Hour

	minPasswordLength = 8
)

// RegisterInput carries everything needed to open an account.
type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
	Age         int
	ParentEmail string
}

// AuthService handles registration, sessions and credential management.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.TokenDetails, error)
	Logout(ctx context.Context, accessUUID, refreshUUID string) error
	Refresh(ctx context.Context, refreshToken string) (*models.TokenDetails, error)

	// VerifyAccessToken checks signature, expiry and presence in the
	// token store. ValidateAndGetClaims additionally verifies the
	// account is still allowed to authenticate.
	VerifyAccessToken(ctx context.Context, tokenString string) (*models.Claims, error)
	ValidateAndGetClaims(ctx context.Context, tokenString string) (*models.Claims, error)

	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error

	// Parental consent flow for under-13 writers. Tokens are mailed to
	// the parent; granting or revoking requires no account of their own.
	GrantParentalConsent(ctx context.Context, token string) error
	RevokeParentalConsent(ctx context.Context, token string) error
}

// Compile-time check to ensure authServiceImpl implements AuthService
var _ AuthService = (*authServiceImpl)(nil)

type authServiceImpl struct {
	userRepo  interfaces.UserRepository
	subRepo   interfaces.SubscriptionRepository
	tokenRepo interfaces.TokenRepository
	emailPub  messaging.EmailPublisher
	cfg       *config.Config
	logger    *zap.Logger
}

// NewAuthService creates a new instance of authServiceImpl.
func NewAuthService(
	userRepo interfaces.UserRepository,
	subRepo interfaces.SubscriptionRepository,
	tokenRepo interfaces.TokenRepository,
	emailPub messaging.EmailPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) AuthService {
	return &authServiceImpl{
		userRepo:  userRepo,
		subRepo:   subRepo,
		tokenRepo: tokenRepo,
		emailPub:  emailPub,
		cfg:       cfg,
		logger:    logger.Named("AuthService"),
	}
}

// Register creates a new user account. Writers younger than the COPPA
// threshold start with consent_status=pending and a consent request is
// mailed to the parent; everyone else gets a welcome email.
func (s *authServiceImpl) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)
	parentEmail := strings.ToLower(strings.TrimSpace(input.ParentEmail))

	logFields := []zap.Field{zap.String("username", username), zap.String("email", email)}
	s.logger.Info("Registering new user", logFields...)

	if _, err := mail.ParseAddress(email); err != nil {
		s.logger.Warn("Registration attempt with invalid email format", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("invalid email format: %w", models.ErrInvalidInput)
	}
	if username == "" || len(input.Password) < minPasswordLength {
		s.logger.Warn("Registration attempt with empty username or short password", logFields...)
		return nil, models.ErrInvalidInput
	}
	if input.Age <= 0 || input.Age > 120 {
		s.logger.Warn("Registration attempt with implausible age", append(logFields, zap.Int("age", input.Age))...)
		return nil, models.ErrInvalidInput
	}

	consentStatus := models.ConsentNotRequired
	if input.Age < models.COPPAAgeThreshold {
		if _, err := mail.ParseAddress(parentEmail); err != nil {
			s.logger.Warn("Child registration without valid parent email", logFields...)
			return nil, fmt.Errorf("parent email required for writers under %d: %w",
				models.COPPAAgeThreshold, models.ErrInvalidInput)
		}
		consentStatus = models.ConsentPending
	}

	hashedPassword, err := hashPassword(input.Password, s.cfg.PasswordPepper)
	if err != nil {
		s.logger.Error("Failed to hash password during registration", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:      username,
		DisplayName:   strings.TrimSpace(input.DisplayName),
		Email:         email,
		PasswordHash:  hashedPassword,
		Roles:         []string{models.RoleChild},
		Age:           input.Age,
		Status:        models.AccountActive,
		ParentEmail:   parentEmail,
		ConsentStatus: consentStatus,
		Tier:          models.TierFree,
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, models.ErrUserAlreadyExists) && !errors.Is(err, models.ErrEmailAlreadyExists) {
			s.logger.Error("Failed to create user via repository", append(logFields, zap.Error(err))...)
		}
		return nil, err
	}

	// Every account starts on the free plan.
	sub := &models.Subscription{
		UserID: user.ID,
		Tier:   models.TierFree,
		Status: models.SubscriptionActive,
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		s.logger.Error("Failed to create initial subscription", zap.Error(err), zap.String("userID", user.ID.String()))
		return nil, fmt.Errorf("failed to create initial subscription: %w", err)
	}

	s.sendRegistrationEmails(ctx, user)

	s.logger.Info("User registered successfully",
		zap.String("userID", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("consentStatus", string(user.ConsentStatus)))
	return user, nil
}

func (s *authServiceImpl) sendRegistrationEmails(ctx context.Context, user *models.User) {
	if user.ConsentStatus == models.ConsentPending {
		consentToken, err := s.createPurposeToken(user.ID, audParentalConsent, parentalConsentTTL)
		if err != nil {
			s.logger.Error("Failed to create parental consent token", zap.Error(err), zap.String("userID", user.ID.String()))
			return
		}
		err = s.emailPub.PublishEmail(ctx, messaging.EmailTaskPayload{
			Kind:   messaging.EmailParentalConsent,
			To:     user.ParentEmail,
			ToName: "",
			Data: map[string]string{
				"child_name":  user.DisplayName,
				"consent_url": fmt.Sprintf("%s/consent?token=%s", s.cfg.FrontendBaseURL, consentToken),
			},
		})
		if err != nil {
			s.logger.Error("Failed to enqueue parental consent email", zap.Error(err), zap.String("userID", user.ID.String()))
		}
		return
	}

	err := s.emailPub.PublishEmail(ctx, messaging.EmailTaskPayload{
		Kind:   messaging.EmailWelcome,
		To:     user.Email,
		ToName: user.DisplayName,
		Data:   map[string]string{"name": user.DisplayName},
	})
	if err != nil {
		s.logger.Error("Failed to enqueue welcome email", zap.Error(err), zap.String("userID", user.ID.String()))
	}
}

// Login authenticates a user and returns token details.
func (s *authServiceImpl) Login(ctx context.Context, username, password string) (*models.TokenDetails, error) {
	s.logger.Info("Login attempt", zap.String("username", username))
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.logger.Warn("Login failed: user not found", zap.String("username", username))
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("Login failed: error getting user from repository", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !checkPasswordHash(password, user.PasswordHash, s.cfg.PasswordPepper) {
		s.logger.Warn("Login failed: invalid password", zap.String("username", username), zap.String("userID", user.ID.String()))
		return nil, models.ErrInvalidCredentials
	}

	if !user.CanAuthenticate() {
		s.logger.Warn("Login failed: account not active",
			zap.String("username", username),
			zap.String("userID", user.ID.String()),
			zap.String("status", string(user.Status)))
		// One error for suspended and deleted alike, no reason leaks.
		return nil, models.ErrInvalidCredentials
	}

	td, err := s.createTokens(user)
	if err != nil {
		s.logger.Error("Failed to create tokens during login", zap.Error(err), zap.String("userID", user.ID.String()))
		return nil, fmt.Errorf("failed to create tokens: %w", err)
	}

	if err := s.tokenRepo.SetToken(ctx, user.ID, td); err != nil {
		s.logger.Error("Failed to save token details during login", zap.Error(err), zap.String("userID", user.ID.String()))
		return nil, fmt.Errorf("failed to save token details: %w", err)
	}

	s.logger.Info("User logged in successfully", zap.String("userID", user.ID.String()))
	return td, nil
}

// Logout removes the access and refresh tokens from the store.
func (s *authServiceImpl) Logout(ctx context.Context, accessUUID, refreshUUID string) error {
	log := s.logger.With(zap.String("accessUUID", accessUUID), zap.String("refreshUUID", refreshUUID))
	log.Debug("Attempting to logout user by deleting tokens")

	deletedCount, err := s.tokenRepo.DeleteTokens(ctx, accessUUID, refreshUUID)
	if err != nil {
		// Tokens may already be gone; logout succeeds regardless.
		log.Error("Failed to delete tokens during logout", zap.Error(err))
	}
	if deletedCount > 0 {
		log.Info("Tokens deleted during logout", zap.Int64("deletedCount", deletedCount))
	} else {
		log.Info("No tokens found to delete during logout (already expired or logged out)")
	}
	return nil
}

// Refresh issues new access and refresh tokens based on a valid refresh token.
func (s *authServiceImpl) Refresh(ctx context.Context, refreshTokenString string) (*models.TokenDetails, error) {
	s.logger.Info("Token refresh attempt")
	claims, err := s.parseSessionToken(refreshTokenString)
	if err != nil {
		return nil, err
	}

	refreshUUID := claims.ID
	storedUserID, err := s.tokenRepo.GetUserIDByRefreshUUID(ctx, refreshUUID)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			s.logger.Warn("Refresh attempt with revoked token", zap.String("refreshUUID", refreshUUID))
			return nil, models.ErrTokenNotFound
		}
		return nil, fmt.Errorf("error checking refresh token existence: %w", err)
	}
	if storedUserID != claims.UserID {
		s.logger.Error("Refresh token user ID mismatch",
			zap.String("tokenUserID", claims.UserID.String()),
			zap.String("repoUserID", storedUserID.String()))
		return nil, models.ErrTokenInvalid
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user during refresh: %w", err)
	}
	if !user.CanAuthenticate() {
		s.logger.Warn("Refresh attempt for inactive account", zap.String("userID", user.ID.String()))
		_, _ = s.tokenRepo.DeleteTokens(ctx, "", refreshUUID)
		return nil, models.ErrTokenInvalid
	}

	newTd, err := s.createTokens(user)
	if err != nil {
		return nil, fmt.Errorf("failed to create new tokens during refresh: %w", err)
	}

	if _, delErr := s.tokenRepo.DeleteTokens(ctx, "", refreshUUID); delErr != nil {
		s.logger.Error("Non-critical: failed to delete old refresh token", zap.Error(delErr), zap.String("refreshUUID", refreshUUID))
	}

	if err := s.tokenRepo.SetToken(ctx, user.ID, newTd); err != nil {
		s.logger.Error("Failed to save new token details during refresh", zap.Error(err), zap.String("userID", user.ID.String()))
		return nil, fmt.Errorf("failed to save new token details: %w", err)
	}

	s.logger.Info("Token refreshed successfully", zap.String("userID", user.ID.String()))
	return newTd, nil
}

// VerifyAccessToken parses and validates an access token string.
func (s *authServiceImpl) VerifyAccessToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims, err := s.parseSessionToken(tokenString)
	if err != nil {
		return nil, err
	}

	if _, err := s.tokenRepo.GetUserIDByAccessUUID(ctx, claims.ID); err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			s.logger.Debug("Access token not found in store (revoked/logged out)", zap.String("accessUUID", claims.ID))
			return nil, models.ErrTokenInvalid
		}
		return nil, fmt.Errorf("error checking access token existence: %w", err)
	}
	return claims, nil
}

// ValidateAndGetClaims verifies the token and the account status.
func (s *authServiceImpl) ValidateAndGetClaims(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims, err := s.VerifyAccessToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.logger.Warn("User from valid token not found in DB", zap.String("userID", claims.UserID.String()))
			return nil, models.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user for validation: %w", err)
	}
	if !user.CanAuthenticate() {
		s.logger.Warn("Token validation failed: account not active", zap.String("userID", user.ID.String()))
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// ChangePassword verifies the current password, stores the new hash and
// revokes every session of the user.
func (s *authServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	log := s.logger.With(zap.String("userID", userID.String()))
	log.Info("Attempting to change user password")

	if len(newPassword) < minPasswordLength {
		return models.ErrInvalidInput
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !checkPasswordHash(oldPassword, user.PasswordHash, s.cfg.PasswordPepper) {
		log.Warn("Password change failed: current password mismatch")
		return models.ErrInvalidCredentials
	}

	newHash, err := hashPassword(newPassword, s.cfg.PasswordPepper)
	if err != nil {
		log.Error("Failed to hash new password", zap.Error(err))
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	if deleted, delErr := s.tokenRepo.DeleteTokensByUserID(ctx, userID); delErr != nil {
		log.Error("Failed to delete user tokens after password change", zap.Error(delErr))
	} else {
		log.Info("Revoked sessions after password change", zap.Int64("deletedCount", deleted))
	}
	return nil
}

// RequestPasswordReset mails a single-use reset link. Always succeeds
// from the caller's perspective so addresses cannot be enumerated.
func (s *authServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	log := s.logger.With(zap.String("email", email))
	log.Info("Password reset requested")

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			log.Info("Password reset requested for unknown email")
			return nil
		}
		log.Error("Failed to look up user for password reset", zap.Error(err))
		return nil
	}

	resetToken, err := s.createPurposeToken(user.ID, audPasswordReset, passwordResetTTL)
	if err != nil {
		log.Error("Failed to create password reset token", zap.Error(err))
		return nil
	}

	err = s.emailPub.PublishEmail(ctx, messaging.EmailTaskPayload{
		Kind:   messaging.EmailPasswordReset,
		To:     user.Email,
		ToName: user.DisplayName,
		Data: map[string]string{
			"name":      user.DisplayName,
			"reset_url": fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendBaseURL, resetToken),
		},
	})
	if err != nil {
		log.Error("Failed to enqueue password reset email", zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset token and replaces the password.
func (s *authServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return models.ErrInvalidInput
	}

	userID, err := s.parsePurposeToken(token, audPasswordReset)
	if err != nil {
		return err
	}
	log := s.logger.With(zap.String("userID", userID.String()))

	newHash, err := hashPassword(newPassword, s.cfg.PasswordPepper)
	if err != nil {
		log.Error("Failed to hash password during reset", zap.Error(err))
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}

	if deleted, delErr := s.tokenRepo.DeleteTokensByUserID(ctx, userID); delErr != nil {
		log.Error("Failed to delete user tokens after password reset", zap.Error(delErr))
	} else {
		log.Info("Password reset completed, sessions revoked", zap.Int64("deletedCount", deleted))
	}
	return nil
}

// GrantParentalConsent marks the child account as approved by the parent.
func (s *authServiceImpl) GrantParentalConsent(ctx context.Context, token string) error {
	userID, err := s.parsePurposeToken(token, audParentalConsent)
	if err != nil {
		return err
	}
	log := s.logger.With(zap.String("userID", userID.String()))

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.ConsentStatus == models.ConsentGranted {
		log.Debug("Consent already granted, nothing to do")
		return nil
	}

	if err := s.userRepo.SetConsentStatus(ctx, userID, models.ConsentGranted); err != nil {
		return err
	}
	log.Info("Parental consent granted")
	return nil
}

// RevokeParentalConsent withdraws approval; the account keeps its data
// but content operations are blocked until consent is granted again.
func (s *authServiceImpl) RevokeParentalConsent(ctx context.Context, token string) error {
	userID, err := s.parsePurposeToken(token, audParentalConsent)
	if err != nil {
		return err
	}
	log := s.logger.With(zap.String("userID", userID.String()))

	if err := s.userRepo.SetConsentStatus(ctx, userID, models.ConsentRevoked); err != nil {
		return err
	}

	if deleted, delErr := s.tokenRepo.DeleteTokensByUserID(ctx, userID); delErr != nil {
		log.Error("Failed to delete user tokens after consent revocation", zap.Error(delErr))
	} else {
		log.Info("Parental consent revoked, sessions terminated", zap.Int64("deletedCount", deleted))
	}
	return nil
}

// --- Helper Functions ---

// parseSessionToken validates signature and expiry of an access/refresh JWT.
func (s *authServiceImpl) parseSessionToken(tokenString string) (*models.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Debug("Token verification failed: expired")
			return nil, models.ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			s.logger.Warn("Token verification failed: malformed")
			return nil, models.ErrTokenMalformed
		}
		s.logger.Error("Failed to parse token", zap.Error(err))
		return nil, models.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok || !token.Valid {
		s.logger.Warn("Token verification failed (invalid claims type or signature)")
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}

// createTokens generates a new access and refresh token pair for a user.
func (s *authServiceImpl) createTokens(user *models.User) (*models.TokenDetails, error) {
	now := time.Now()
	td := &models.TokenDetails{
		AccessUUID:  uuid.NewString(),
		RefreshUUID: uuid.NewString(),
		AtExpires:   now.Add(s.cfg.AccessTokenTTL).Unix(),
		RtExpires:   now.Add(s.cfg.RefreshTokenTTL).Unix(),
	}

	sign := func(jti string, expiresAt int64) (string, error) {
		claims := &models.Claims{
			UserID: user.ID,
			Roles:  user.Roles,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        jti,
				Subject:   user.ID.String(),
				Issuer:    tokenIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Unix(expiresAt, 0)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
		return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	}

	var err error
	if td.AccessToken, err = sign(td.AccessUUID, td.AtExpires); err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	if td.RefreshToken, err = sign(td.RefreshUUID, td.RtExpires); err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return td, nil
}

// createPurposeToken issues a short-lived JWT for an out-of-band action
// (password reset, parental consent). The audience claim pins the purpose.
func (s *authServiceImpl) createPurposeToken(userID uuid.UUID, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID.String(),
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// parsePurposeToken validates a purpose token and returns its subject.
func (s *authServiceImpl) parsePurposeToken(tokenString, audience string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithAudience(audience), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, models.ErrTokenExpired
		}
		s.logger.Warn("Invalid purpose token", zap.String("audience", audience), zap.Error(err))
		return uuid.Nil, models.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, models.ErrTokenInvalid
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, models.ErrTokenInvalid
	}
	return userID, nil
}
