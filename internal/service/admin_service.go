package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/config"
	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
	"mintoons-server/pkg/aicrypto"
)

// DashboardStats is the admin overview: platform totals and the
// moderation queue size.
type DashboardStats struct {
	TotalUsers       int64 `json:"total_users"`
	TotalStories     int64 `json:"total_stories"`
	PublishedStories int64 `json:"published_stories"`
	PendingReview    int64 `json:"pending_review"`
}

// AdminService covers the admin surface: user management, platform
// statistics and AI provider key management.
type AdminService interface {
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)

	ListUsers(ctx context.Context, cursor string, limit int) ([]models.User, string, error)
	SuspendUser(ctx context.Context, userID uuid.UUID) error
	RestoreUser(ctx context.Context, userID uuid.UUID) error
	SetUserRoles(ctx context.Context, userID uuid.UUID, roles []string) error

	// AI provider keys. Secrets are encrypted before they reach the
	// repository and never returned in plaintext.
	AddAIKey(ctx context.Context, provider models.AIProvider, label, plaintextKey string) (*models.AIKey, error)
	ListAIKeys(ctx context.Context) ([]models.AIKey, error)
	SetAIKeyActive(ctx context.Context, id uuid.UUID, active bool) error
	DeleteAIKey(ctx context.Context, id uuid.UUID) error
}

// Compile-time check to ensure adminServiceImpl implements AdminService
var _ AdminService = (*adminServiceImpl)(nil)

type adminServiceImpl struct {
	userRepo  interfaces.UserRepository
	storyRepo interfaces.StoryRepository
	aiKeyRepo interfaces.AIKeyRepository
	tokenRepo interfaces.TokenRepository
	cipher    *aicrypto.Cipher
	cfg       *config.Config
	logger    *zap.Logger
}

// NewAdminService creates a new instance of adminServiceImpl.
func NewAdminService(
	userRepo interfaces.UserRepository,
	storyRepo interfaces.StoryRepository,
	aiKeyRepo interfaces.AIKeyRepository,
	tokenRepo interfaces.TokenRepository,
	cipher *aicrypto.Cipher,
	cfg *config.Config,
	logger *zap.Logger,
) AdminService {
	return &adminServiceImpl{
		userRepo:  userRepo,
		storyRepo: storyRepo,
		aiKeyRepo: aiKeyRepo,
		tokenRepo: tokenRepo,
		cipher:    cipher,
		cfg:       cfg,
		logger:    logger.Named("AdminService"),
	}
}

func (s *adminServiceImpl) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	users, err := s.userRepo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	drafts, err := s.storyRepo.CountByStatus(ctx, models.StoryDraft)
	if err != nil {
		return nil, err
	}
	pending, err := s.storyRepo.CountByStatus(ctx, models.StoryNeedsReview)
	if err != nil {
		return nil, err
	}
	published, err := s.storyRepo.CountByStatus(ctx, models.StoryPublished)
	if err != nil {
		return nil, err
	}
	return &DashboardStats{
		TotalUsers:       users,
		TotalStories:     drafts + pending + published,
		PublishedStories: published,
		PendingReview:    pending,
	}, nil
}

func (s *adminServiceImpl) ListUsers(ctx context.Context, cursor string, limit int) ([]models.User, string, error) {
	return s.userRepo.ListUsers(ctx, cursor, limit)
}

// SuspendUser blocks the account and terminates its sessions.
func (s *adminServiceImpl) SuspendUser(ctx context.Context, userID uuid.UUID) error {
	log := s.logger.With(zap.String("userID", userID.String()))

	if err := s.userRepo.SetStatus(ctx, userID, models.AccountSuspended); err != nil {
		return err
	}
	if deleted, err := s.tokenRepo.DeleteTokensByUserID(ctx, userID); err != nil {
		log.Error("Failed to revoke sessions after suspension", zap.Error(err))
	} else {
		log.Info("User suspended, sessions revoked", zap.Int64("deletedCount", deleted))
	}
	return nil
}

func (s *adminServiceImpl) RestoreUser(ctx context.Context, userID uuid.UUID) error {
	s.logger.Info("Restoring user account", zap.String("userID", userID.String()))
	return s.userRepo.SetStatus(ctx, userID, models.AccountActive)
}

func (s *adminServiceImpl) SetUserRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	if len(roles) == 0 {
		return models.ErrInvalidInput
	}
	for _, role := range roles {
		if !models.IsValidRole(role) {
			return models.ErrInvalidInput
		}
	}
	s.logger.Info("Updating user roles", zap.String("userID", userID.String()), zap.Strings("roles", roles))
	return s.userRepo.SetRoles(ctx, userID, roles)
}

// AddAIKey encrypts and stores a new provider key.
func (s *adminServiceImpl) AddAIKey(ctx context.Context, provider models.AIProvider, label, plaintextKey string) (*models.AIKey, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.TrimSpace(plaintextKey) == "" {
		return nil, models.ErrInvalidInput
	}
	if provider != models.ProviderOpenAI && provider != models.ProviderOllama {
		return nil, models.ErrInvalidInput
	}

	encrypted, err := s.cipher.Encrypt(plaintextKey)
	if err != nil {
		s.logger.Error("Failed to encrypt AI key", zap.Error(err))
		return nil, models.ErrInternalServer
	}

	key := &models.AIKey{
		Provider:     provider,
		Label:        label,
		EncryptedKey: encrypted,
		Active:       true,
	}
	if err := s.aiKeyRepo.Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *adminServiceImpl) ListAIKeys(ctx context.Context) ([]models.AIKey, error) {
	return s.aiKeyRepo.List(ctx)
}

func (s *adminServiceImpl) SetAIKeyActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.aiKeyRepo.SetActive(ctx, id, active)
}

func (s *adminServiceImpl) DeleteAIKey(ctx context.Context, id uuid.UUID) error {
	return s.aiKeyRepo.Delete(ctx, id)
}
