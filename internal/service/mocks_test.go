package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

// Hand-written mocks backed by function fields. Tests override only the
// methods they care about; everything else falls back to a harmless
// default so test setup stays short.

type mockUserRepo struct {
	createUserFn       func(ctx context.Context, user *models.User) error
	getByIDFn          func(ctx context.Context, id uuid.UUID) (*models.User, error)
	getByUsernameFn    func(ctx context.Context, username string) (*models.User, error)
	getByEmailFn       func(ctx context.Context, email string) (*models.User, error)
	updatePasswordFn   func(ctx context.Context, id uuid.UUID, hash string) error
	setConsentStatusFn func(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error

	adjustStoryCountCalls []int
	recordWritingCalls    []int
	recordedStreaks       []int
}

func (m *mockUserRepo) CreateUser(ctx context.Context, user *models.User) error {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, user)
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return nil
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, models.ErrUserNotFound
}

func (m *mockUserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, models.ErrUserNotFound
}

func (m *mockUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, models.ErrUserNotFound
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, displayName string) error {
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, hash)
	}
	return nil
}

func (m *mockUserRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error {
	return nil
}

func (m *mockUserRepo) SetRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	return nil
}

func (m *mockUserRepo) SetConsentStatus(ctx context.Context, id uuid.UUID, status models.ConsentStatus) error {
	if m.setConsentStatusFn != nil {
		return m.setConsentStatusFn(ctx, id, status)
	}
	return nil
}

func (m *mockUserRepo) SetTier(ctx context.Context, id uuid.UUID, tier models.Tier) error {
	return nil
}

func (m *mockUserRepo) RecordWriting(ctx context.Context, id uuid.UUID, wordsDelta, streakDays int) error {
	m.recordWritingCalls = append(m.recordWritingCalls, wordsDelta)
	m.recordedStreaks = append(m.recordedStreaks, streakDays)
	return nil
}

func (m *mockUserRepo) AdjustStoryCount(ctx context.Context, id uuid.UUID, delta int) error {
	m.adjustStoryCountCalls = append(m.adjustStoryCountCalls, delta)
	return nil
}

func (m *mockUserRepo) ListUsers(ctx context.Context, cursor string, limit int) ([]models.User, string, error) {
	return nil, "", nil
}

func (m *mockUserRepo) CountUsers(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockSubRepo struct {
	createFn       func(ctx context.Context, sub *models.Subscription) error
	consumeQuotaFn func(ctx context.Context, userID uuid.UUID, kind models.QuotaKind, limit int, now time.Time) error

	created []models.Subscription
}

func (m *mockSubRepo) Create(ctx context.Context, sub *models.Subscription) error {
	if m.createFn != nil {
		return m.createFn(ctx, sub)
	}
	m.created = append(m.created, *sub)
	return nil
}

func (m *mockSubRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return nil, models.ErrSubscriptionNotFound
}

func (m *mockSubRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	return nil, models.ErrSubscriptionNotFound
}

func (m *mockSubRepo) ConsumeQuota(ctx context.Context, userID uuid.UUID, kind models.QuotaKind, limit int, now time.Time) error {
	if m.consumeQuotaFn != nil {
		return m.consumeQuotaFn(ctx, userID, kind, limit, now)
	}
	return nil
}

func (m *mockSubRepo) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	return nil
}

func (m *mockSubRepo) ApplyBillingUpdate(ctx context.Context, userID uuid.UUID, tier models.Tier, status models.SubscriptionStatus, stripeSubscriptionID string, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	return nil
}

// mockTokenRepo keeps issued token UUIDs in maps, mimicking the Redis
// store closely enough for session lifecycle tests.
type mockTokenRepo struct {
	access  map[string]uuid.UUID
	refresh map[string]uuid.UUID
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{
		access:  make(map[string]uuid.UUID),
		refresh: make(map[string]uuid.UUID),
	}
}

func (m *mockTokenRepo) SetToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error {
	m.access[td.AccessUUID] = userID
	m.refresh[td.RefreshUUID] = userID
	return nil
}

func (m *mockTokenRepo) GetUserIDByAccessUUID(ctx context.Context, accessUUID string) (uuid.UUID, error) {
	id, ok := m.access[accessUUID]
	if !ok {
		return uuid.Nil, models.ErrTokenNotFound
	}
	return id, nil
}

func (m *mockTokenRepo) GetUserIDByRefreshUUID(ctx context.Context, refreshUUID string) (uuid.UUID, error) {
	id, ok := m.refresh[refreshUUID]
	if !ok {
		return uuid.Nil, models.ErrTokenNotFound
	}
	return id, nil
}

func (m *mockTokenRepo) DeleteTokens(ctx context.Context, accessUUID, refreshUUID string) (int64, error) {
	var deleted int64
	if _, ok := m.access[accessUUID]; ok {
		delete(m.access, accessUUID)
		deleted++
	}
	if _, ok := m.refresh[refreshUUID]; ok {
		delete(m.refresh, refreshUUID)
		deleted++
	}
	return deleted, nil
}

func (m *mockTokenRepo) DeleteTokensByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var deleted int64
	for k, v := range m.access {
		if v == userID {
			delete(m.access, k)
			deleted++
		}
	}
	for k, v := range m.refresh {
		if v == userID {
			delete(m.refresh, k)
			deleted++
		}
	}
	return deleted, nil
}

type mockEmailPublisher struct {
	published []messaging.EmailTaskPayload
	err       error
}

func (m *mockEmailPublisher) PublishEmail(ctx context.Context, payload messaging.EmailTaskPayload) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, payload)
	return nil
}

type mockStoryRepo struct {
	createFn        func(ctx context.Context, story *models.Story) error
	getByIDFn       func(ctx context.Context, id uuid.UUID) (*models.Story, error)
	updateContentFn func(ctx context.Context, id uuid.UUID, title, content, genre string, wordCount int) error
	updateStatusFn  func(ctx context.Context, id uuid.UUID, expected, next models.StoryStatus) error
	deleteFn        func(ctx context.Context, id uuid.UUID) error

	statusUpdates [][2]models.StoryStatus
	likesDelta    int
}

func (m *mockStoryRepo) Create(ctx context.Context, story *models.Story) error {
	if m.createFn != nil {
		return m.createFn(ctx, story)
	}
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	return nil
}

func (m *mockStoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, models.ErrStoryNotFound
}

func (m *mockStoryRepo) UpdateContent(ctx context.Context, id uuid.UUID, title, content, genre string, wordCount int) error {
	if m.updateContentFn != nil {
		return m.updateContentFn(ctx, id, title, content, genre, wordCount)
	}
	return nil
}

func (m *mockStoryRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.StoryStatus) error {
	m.statusUpdates = append(m.statusUpdates, [2]models.StoryStatus{expected, next})
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, expected, next)
	}
	return nil
}

func (m *mockStoryRepo) SetAssessment(ctx context.Context, id uuid.UUID, a models.Assessment) error {
	return nil
}

func (m *mockStoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockStoryRepo) List(ctx context.Context, filter interfaces.StoryFilter, cursor string, limit int) ([]models.Story, string, error) {
	return nil, "", nil
}

func (m *mockStoryRepo) CountByStatus(ctx context.Context, status models.StoryStatus) (int64, error) {
	return 0, nil
}

func (m *mockStoryRepo) WeeklyProgress(ctx context.Context, since time.Time) ([]models.WriterProgress, error) {
	return nil, nil
}

func (m *mockStoryRepo) IncrementLikesCount(ctx context.Context, id uuid.UUID) error {
	m.likesDelta++
	return nil
}

func (m *mockStoryRepo) DecrementLikesCount(ctx context.Context, id uuid.UUID) error {
	m.likesDelta--
	return nil
}

func (m *mockStoryRepo) IncrementCommentsCount(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (m *mockStoryRepo) DecrementCommentsCount(ctx context.Context, id uuid.UUID) error {
	return nil
}

type mockCommentRepo struct {
	createFn  func(ctx context.Context, comment *models.Comment) error
	getByIDFn func(ctx context.Context, id uuid.UUID) (*models.Comment, error)

	resolvedCalls []bool
}

func (m *mockCommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	if m.createFn != nil {
		return m.createFn(ctx, comment)
	}
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	return nil
}

func (m *mockCommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, models.ErrCommentNotFound
}

func (m *mockCommentRepo) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.Comment, error) {
	return nil, nil
}

func (m *mockCommentRepo) SetResolved(ctx context.Context, id uuid.UUID, resolved bool) error {
	m.resolvedCalls = append(m.resolvedCalls, resolved)
	return nil
}

func (m *mockCommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}

type mockLikeRepo struct {
	addLikeFn    func(ctx context.Context, userID, storyID uuid.UUID) error
	removeLikeFn func(ctx context.Context, userID, storyID uuid.UUID) error
}

func (m *mockLikeRepo) AddLike(ctx context.Context, userID, storyID uuid.UUID) error {
	if m.addLikeFn != nil {
		return m.addLikeFn(ctx, userID, storyID)
	}
	return nil
}

func (m *mockLikeRepo) RemoveLike(ctx context.Context, userID, storyID uuid.UUID) error {
	if m.removeLikeFn != nil {
		return m.removeLikeFn(ctx, userID, storyID)
	}
	return nil
}

func (m *mockLikeRepo) CheckLike(ctx context.Context, userID, storyID uuid.UUID) (bool, error) {
	return false, nil
}

// mockNotifier records notifications instead of persisting them.
type mockNotifier struct {
	sent []models.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n *models.Notification) {
	m.sent = append(m.sent, *n)
}

func (m *mockNotifier) List(ctx context.Context, userID uuid.UUID, cursor string, limit int) ([]models.Notification, string, error) {
	return nil, "", nil
}

func (m *mockNotifier) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return 0, nil
}

func (m *mockNotifier) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return nil
}

func (m *mockNotifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *mockNotifier) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return nil
}

// Interface conformance for the mocks.
var (
	_ interfaces.UserRepository         = (*mockUserRepo)(nil)
	_ interfaces.SubscriptionRepository = (*mockSubRepo)(nil)
	_ interfaces.TokenRepository        = (*mockTokenRepo)(nil)
	_ interfaces.StoryRepository        = (*mockStoryRepo)(nil)
	_ interfaces.CommentRepository      = (*mockCommentRepo)(nil)
	_ interfaces.LikeRepository         = (*mockLikeRepo)(nil)
	_ messaging.EmailPublisher          = (*mockEmailPublisher)(nil)
	_ NotificationService               = (*mockNotifier)(nil)
)
