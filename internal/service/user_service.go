package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

const maxDisplayNameLength = 100

// UserService handles profile reads and updates for the account owner.
type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (*models.User, error)

	// DeleteAccount soft-retires the account and revokes all sessions.
	// The row stays for audit and foreign-key integrity.
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

// Compile-time check to ensure userServiceImpl implements UserService
var _ UserService = (*userServiceImpl)(nil)

type userServiceImpl struct {
	userRepo  interfaces.UserRepository
	tokenRepo interfaces.TokenRepository
	logger    *zap.Logger
}

// NewUserService creates a new instance of userServiceImpl.
func NewUserService(userRepo interfaces.UserRepository, tokenRepo interfaces.TokenRepository, logger *zap.Logger) UserService {
	return &userServiceImpl{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		logger:    logger.Named("UserService"),
	}
}

func (s *userServiceImpl) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *userServiceImpl) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName string) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > maxDisplayNameLength {
		return nil, models.ErrInvalidInput
	}
	if err := s.userRepo.UpdateProfile(ctx, userID, displayName); err != nil {
		return nil, err
	}
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *userServiceImpl) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	log := s.logger.With(zap.String("userID", userID.String()))

	if err := s.userRepo.SetStatus(ctx, userID, models.AccountDeleted); err != nil {
		return err
	}
	if deleted, err := s.tokenRepo.DeleteTokensByUserID(ctx, userID); err != nil {
		log.Error("Failed to revoke sessions after account deletion", zap.Error(err))
	} else {
		log.Info("Account deleted, sessions revoked", zap.Int64("deletedCount", deleted))
	}
	return nil
}
