package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

const (
	maxStoryTitleLength   = 200
	maxStoryContentLength = 50000
)

// StoryInput carries the writer-editable fields of a story.
type StoryInput struct {
	Title   string
	Content string
	Genre   string
}

// ExportFormat selects the rendering of an exported story.
type ExportFormat string

const (
	ExportText ExportFormat = "txt"
	ExportHTML ExportFormat = "html"
)

// Export is a rendered story ready for download.
type Export struct {
	FileName    string
	ContentType string
	Body        []byte
}

// StoryService implements the writing and moderation flow:
// draft -> needs_review -> published, with mentor gate in between.
type StoryService interface {
	Create(ctx context.Context, authorID uuid.UUID, input StoryInput) (*models.Story, error)
	Get(ctx context.Context, viewerID uuid.UUID, viewerRoles []string, id uuid.UUID) (*models.Story, error)
	Update(ctx context.Context, authorID uuid.UUID, id uuid.UUID, input StoryInput) (*models.Story, error)
	Delete(ctx context.Context, callerID uuid.UUID, callerRoles []string, id uuid.UUID) error

	// Submit moves the author's draft into the review queue.
	Submit(ctx context.Context, authorID uuid.UUID, id uuid.UUID) error
	// Approve publishes a story awaiting review (mentor/admin only,
	// enforced by the handler's role middleware).
	Approve(ctx context.Context, reviewerID uuid.UUID, id uuid.UUID) error
	// RequestChanges bounces a story awaiting review back to draft with
	// a note for the author.
	RequestChanges(ctx context.Context, reviewerID uuid.UUID, id uuid.UUID, note string) error

	ListOwn(ctx context.Context, authorID uuid.UUID, cursor string, limit int) ([]models.Story, string, error)
	ListPublished(ctx context.Context, cursor string, limit int) ([]models.Story, string, error)
	ListReviewQueue(ctx context.Context, cursor string, limit int) ([]models.Story, string, error)

	Like(ctx context.Context, userID, storyID uuid.UUID) error
	Unlike(ctx context.Context, userID, storyID uuid.UUID) error

	// ExportStory renders the caller's story for download, consuming one
	// unit of the monthly export quota.
	ExportStory(ctx context.Context, callerID uuid.UUID, id uuid.UUID, format ExportFormat) (*Export, error)
}

// Compile-time check to ensure storyServiceImpl implements StoryService
var _ StoryService = (*storyServiceImpl)(nil)

type storyServiceImpl struct {
	storyRepo interfaces.StoryRepository
	likeRepo  interfaces.LikeRepository
	userRepo  interfaces.UserRepository
	subRepo   interfaces.SubscriptionRepository
	notifier  NotificationService
	logger    *zap.Logger
}

// NewStoryService creates a new instance of storyServiceImpl.
func NewStoryService(
	storyRepo interfaces.StoryRepository,
	likeRepo interfaces.LikeRepository,
	userRepo interfaces.UserRepository,
	subRepo interfaces.SubscriptionRepository,
	notifier NotificationService,
	logger *zap.Logger,
) StoryService {
	return &storyServiceImpl{
		storyRepo: storyRepo,
		likeRepo:  likeRepo,
		userRepo:  userRepo,
		subRepo:   subRepo,
		notifier:  notifier,
		logger:    logger.Named("StoryService"),
	}
}

func validateStoryInput(input StoryInput) error {
	if strings.TrimSpace(input.Title) == "" || len(input.Title) > maxStoryTitleLength {
		return models.ErrInvalidInput
	}
	if len(input.Content) > maxStoryContentLength {
		return models.ErrInvalidInput
	}
	return nil
}

// requireConsentedAuthor loads the user and refuses content operations
// for child accounts without granted parental consent.
func (s *storyServiceImpl) requireConsentedAuthor(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.NeedsParentalConsent() {
		s.logger.Warn("Content operation blocked: parental consent missing", zap.String("userID", userID.String()))
		return nil, models.ErrConsentPending
	}
	return user, nil
}

// Create opens a new draft, consuming one unit of the daily story quota.
func (s *storyServiceImpl) Create(ctx context.Context, authorID uuid.UUID, input StoryInput) (*models.Story, error) {
	log := s.logger.With(zap.String("authorID", authorID.String()))

	if err := validateStoryInput(input); err != nil {
		return nil, err
	}
	author, err := s.requireConsentedAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	limits, err := models.LimitsForTier(author.Tier)
	if err != nil {
		log.Error("User carries unknown tier, falling back to free limits", zap.String("tier", string(author.Tier)))
		limits, _ = models.LimitsForTier(models.TierFree)
	}
	if err := s.subRepo.ConsumeQuota(ctx, authorID, models.QuotaStories, limits.StoriesPerDay, time.Now()); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			log.Info("Story creation rejected: daily quota exhausted", zap.String("tier", string(author.Tier)))
		}
		return nil, err
	}

	story := &models.Story{
		AuthorID:  authorID,
		Title:     strings.TrimSpace(input.Title),
		Content:   input.Content,
		Genre:     strings.TrimSpace(input.Genre),
		Status:    models.StoryDraft,
		WordCount: models.CountWords(input.Content),
	}
	if err := s.storyRepo.Create(ctx, story); err != nil {
		return nil, err
	}

	if err := s.userRepo.AdjustStoryCount(ctx, authorID, 1); err != nil {
		log.Error("Failed to bump author story count", zap.Error(err))
	}
	if story.WordCount > 0 {
		streak := models.AdvanceStreak(author.LastWroteAt, author.StreakDays, time.Now())
		if err := s.userRepo.RecordWriting(ctx, authorID, story.WordCount, streak); err != nil {
			log.Error("Failed to record writing progress", zap.Error(err))
		}
	}

	log.Info("Story created", zap.String("storyID", story.ID.String()), zap.Int("wordCount", story.WordCount))
	return story, nil
}

// Get returns the story if the viewer may see it: published stories are
// public, everything else is visible to the author, mentors and admins.
func (s *storyServiceImpl) Get(ctx context.Context, viewerID uuid.UUID, viewerRoles []string, id uuid.UUID) (*models.Story, error) {
	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.Status == models.StoryPublished {
		return story, nil
	}
	if story.AuthorID == viewerID ||
		models.HasRole(viewerRoles, models.RoleMentor) ||
		models.HasRole(viewerRoles, models.RoleAdmin) {
		return story, nil
	}
	// Hide the existence of unpublished stories from other users.
	return nil, models.ErrStoryNotFound
}

// Update saves new content on the author's own draft.
func (s *storyServiceImpl) Update(ctx context.Context, authorID uuid.UUID, id uuid.UUID, input StoryInput) (*models.Story, error) {
	log := s.logger.With(zap.String("authorID", authorID.String()), zap.String("storyID", id.String()))

	if err := validateStoryInput(input); err != nil {
		return nil, err
	}
	author, err := s.requireConsentedAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.AuthorID != authorID {
		return nil, models.ErrForbidden
	}

	oldWordCount := story.WordCount
	newWordCount := models.CountWords(input.Content)
	err = s.storyRepo.UpdateContent(ctx, id, strings.TrimSpace(input.Title), input.Content, strings.TrimSpace(input.Genre), newWordCount)
	if err != nil {
		return nil, err
	}

	if delta := newWordCount - oldWordCount; delta != 0 {
		streak := models.AdvanceStreak(author.LastWroteAt, author.StreakDays, time.Now())
		if err := s.userRepo.RecordWriting(ctx, authorID, delta, streak); err != nil {
			log.Error("Failed to record writing progress", zap.Error(err))
		}
	}

	log.Debug("Story updated", zap.Int("wordCount", newWordCount))
	return s.storyRepo.GetByID(ctx, id)
}

// Delete removes the story. Authors may delete their own unpublished
// stories; admins may delete anything.
func (s *storyServiceImpl) Delete(ctx context.Context, callerID uuid.UUID, callerRoles []string, id uuid.UUID) error {
	log := s.logger.With(zap.String("callerID", callerID.String()), zap.String("storyID", id.String()))

	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	isAdmin := models.HasRole(callerRoles, models.RoleAdmin)
	if !isAdmin {
		if story.AuthorID != callerID {
			return models.ErrForbidden
		}
		if story.Status == models.StoryPublished {
			// Published stories are part of the public library; only an
			// admin can take them down.
			return models.ErrForbidden
		}
	}

	if err := s.storyRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.userRepo.AdjustStoryCount(ctx, story.AuthorID, -1); err != nil {
		log.Error("Failed to decrement author story count", zap.Error(err))
	}

	log.Info("Story deleted", zap.Bool("byAdmin", isAdmin))
	return nil
}

// Submit moves the author's draft into the review queue.
func (s *storyServiceImpl) Submit(ctx context.Context, authorID uuid.UUID, id uuid.UUID) error {
	log := s.logger.With(zap.String("authorID", authorID.String()), zap.String("storyID", id.String()))

	if _, err := s.requireConsentedAuthor(ctx, authorID); err != nil {
		return err
	}

	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if story.AuthorID != authorID {
		return models.ErrForbidden
	}
	if story.Status != models.StoryDraft {
		return models.ErrStoryNotDraft
	}
	if models.CountWords(story.Content) == 0 {
		return models.ErrStoryEmpty
	}

	if err := s.storyRepo.UpdateStatus(ctx, id, models.StoryDraft, models.StoryNeedsReview); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Raced with another transition since the read above.
			return models.ErrStoryNotDraft
		}
		return err
	}

	log.Info("Story submitted for review")
	return nil
}

// Approve publishes a story awaiting review and notifies the author.
func (s *storyServiceImpl) Approve(ctx context.Context, reviewerID uuid.UUID, id uuid.UUID) error {
	log := s.logger.With(zap.String("reviewerID", reviewerID.String()), zap.String("storyID", id.String()))

	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if story.Status != models.StoryNeedsReview {
		return models.ErrStoryNotInReview
	}

	if err := s.storyRepo.UpdateStatus(ctx, id, models.StoryNeedsReview, models.StoryPublished); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrStoryNotInReview
		}
		return err
	}

	s.notifier.Notify(ctx, &models.Notification{
		UserID:  story.AuthorID,
		Type:    models.NotificationStoryApproved,
		Title:   "Your story is published!",
		Body:    fmt.Sprintf("%q is now in the library for everyone to read.", story.Title),
		StoryID: &story.ID,
	})

	log.Info("Story approved and published", zap.String("authorID", story.AuthorID.String()))
	return nil
}

// RequestChanges bounces a story awaiting review back to draft.
func (s *storyServiceImpl) RequestChanges(ctx context.Context, reviewerID uuid.UUID, id uuid.UUID, note string) error {
	log := s.logger.With(zap.String("reviewerID", reviewerID.String()), zap.String("storyID", id.String()))

	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if story.Status != models.StoryNeedsReview {
		return models.ErrStoryNotInReview
	}

	if err := s.storyRepo.UpdateStatus(ctx, id, models.StoryNeedsReview, models.StoryDraft); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrStoryNotInReview
		}
		return err
	}

	body := fmt.Sprintf("A mentor asked for changes on %q.", story.Title)
	if note = strings.TrimSpace(note); note != "" {
		body = fmt.Sprintf("%s Note: %s", body, note)
	}
	s.notifier.Notify(ctx, &models.Notification{
		UserID:  story.AuthorID,
		Type:    models.NotificationChangesNeeded,
		Title:   "Changes requested",
		Body:    body,
		StoryID: &story.ID,
	})

	log.Info("Changes requested, story returned to draft", zap.String("authorID", story.AuthorID.String()))
	return nil
}

func (s *storyServiceImpl) ListOwn(ctx context.Context, authorID uuid.UUID, cursor string, limit int) ([]models.Story, string, error) {
	return s.storyRepo.List(ctx, interfaces.StoryFilter{AuthorID: &authorID}, cursor, limit)
}

func (s *storyServiceImpl) ListPublished(ctx context.Context, cursor string, limit int) ([]models.Story, string, error) {
	status := models.StoryPublished
	return s.storyRepo.List(ctx, interfaces.StoryFilter{Status: &status}, cursor, limit)
}

func (s *storyServiceImpl) ListReviewQueue(ctx context.Context, cursor string, limit int) ([]models.Story, string, error) {
	status := models.StoryNeedsReview
	return s.storyRepo.List(ctx, interfaces.StoryFilter{Status: &status}, cursor, limit)
}

// Like records a like on a published story and bumps the counter.
func (s *storyServiceImpl) Like(ctx context.Context, userID, storyID uuid.UUID) error {
	story, err := s.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		return err
	}
	if story.Status != models.StoryPublished {
		return models.ErrStoryNotPublished
	}

	if err := s.likeRepo.AddLike(ctx, userID, storyID); err != nil {
		return err
	}
	if err := s.storyRepo.IncrementLikesCount(ctx, storyID); err != nil {
		s.logger.Error("Failed to increment likes counter", zap.Error(err), zap.String("storyID", storyID.String()))
	}
	return nil
}

// Unlike removes the user's like and drops the counter.
func (s *storyServiceImpl) Unlike(ctx context.Context, userID, storyID uuid.UUID) error {
	if err := s.likeRepo.RemoveLike(ctx, userID, storyID); err != nil {
		return err
	}
	if err := s.storyRepo.DecrementLikesCount(ctx, storyID); err != nil {
		s.logger.Error("Failed to decrement likes counter", zap.Error(err), zap.String("storyID", storyID.String()))
	}
	return nil
}

// ExportStory renders the story for download, consuming export quota.
func (s *storyServiceImpl) ExportStory(ctx context.Context, callerID uuid.UUID, id uuid.UUID, format ExportFormat) (*Export, error) {
	log := s.logger.With(zap.String("callerID", callerID.String()), zap.String("storyID", id.String()))

	story, err := s.storyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if story.AuthorID != callerID {
		return nil, models.ErrForbidden
	}

	caller, err := s.userRepo.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	limits, err := models.LimitsForTier(caller.Tier)
	if err != nil {
		limits, _ = models.LimitsForTier(models.TierFree)
	}
	if err := s.subRepo.ConsumeQuota(ctx, callerID, models.QuotaExports, limits.ExportsPerMonth, time.Now()); err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			log.Info("Export rejected: monthly quota exhausted", zap.String("tier", string(caller.Tier)))
		}
		return nil, err
	}

	export := renderExport(story, caller.DisplayName, format)
	log.Info("Story exported", zap.String("format", string(format)))
	return export, nil
}

func renderExport(story *models.Story, authorName string, format ExportFormat) *Export {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, story.Title)
	if slug == "" {
		slug = "story"
	}

	if format == ExportHTML {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>")
		b.WriteString(html.EscapeString(story.Title))
		b.WriteString("</title></head>\n<body>\n<h1>")
		b.WriteString(html.EscapeString(story.Title))
		b.WriteString("</h1>\n<p><em>by ")
		b.WriteString(html.EscapeString(authorName))
		b.WriteString("</em></p>\n")
		for _, para := range strings.Split(story.Content, "\n\n") {
			b.WriteString("<p>")
			b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
			b.WriteString("</p>\n")
		}
		b.WriteString("</body>\n</html>\n")
		return &Export{
			FileName:    slug + ".html",
			ContentType: "text/html; charset=utf-8",
			Body:        []byte(b.String()),
		}
	}

	var b strings.Builder
	b.WriteString(story.Title)
	b.WriteString("\nby ")
	b.WriteString(authorName)
	b.WriteString("\n\n")
	b.WriteString(story.Content)
	b.WriteString("\n")
	return &Export{
		FileName:    slug + ".txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(b.String()),
	}
}
