package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

const maxCommentLength = 2000

// CommentInput carries the fields of a new mentor comment.
type CommentInput struct {
	Type            models.CommentType
	Content         string
	HighlightedText string
}

// CommentService handles mentor feedback on stories.
type CommentService interface {
	// Create adds a comment on a story. Mentor/admin only (enforced by
	// the handler's role middleware); the author is notified in-app and
	// by email.
	Create(ctx context.Context, mentorID uuid.UUID, storyID uuid.UUID, input CommentInput) (*models.Comment, error)

	ListByStory(ctx context.Context, viewerID uuid.UUID, viewerRoles []string, storyID uuid.UUID) ([]models.Comment, error)

	// Resolve ticks off addressed feedback; allowed for the story's
	// author and for mentors/admins working the review queue.
	Resolve(ctx context.Context, callerID uuid.UUID, callerRoles []string, commentID uuid.UUID, resolved bool) error

	// Delete removes a comment; allowed for its mentor author and admins.
	Delete(ctx context.Context, callerID uuid.UUID, callerRoles []string, commentID uuid.UUID) error
}

// Compile-time check to ensure commentServiceImpl implements CommentService
var _ CommentService = (*commentServiceImpl)(nil)

type commentServiceImpl struct {
	commentRepo interfaces.CommentRepository
	storyRepo   interfaces.StoryRepository
	userRepo    interfaces.UserRepository
	notifier    NotificationService
	emailPub    messaging.EmailPublisher
	logger      *zap.Logger
}

// NewCommentService creates a new instance of commentServiceImpl.
func NewCommentService(
	commentRepo interfaces.CommentRepository,
	storyRepo interfaces.StoryRepository,
	userRepo interfaces.UserRepository,
	notifier NotificationService,
	emailPub messaging.EmailPublisher,
	logger *zap.Logger,
) CommentService {
	return &commentServiceImpl{
		commentRepo: commentRepo,
		storyRepo:   storyRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		emailPub:    emailPub,
		logger:      logger.Named("CommentService"),
	}
}

// Create adds a mentor comment and notifies the story's author.
func (s *commentServiceImpl) Create(ctx context.Context, mentorID uuid.UUID, storyID uuid.UUID, input CommentInput) (*models.Comment, error) {
	log := s.logger.With(zap.String("mentorID", mentorID.String()), zap.String("storyID", storyID.String()))

	if !models.IsValidCommentType(input.Type) {
		return nil, models.ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" || len(content) > maxCommentLength {
		return nil, models.ErrInvalidInput
	}

	story, err := s.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		StoryID:         storyID,
		AuthorID:        mentorID,
		Type:            input.Type,
		Content:         content,
		HighlightedText: input.HighlightedText,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	if err := s.storyRepo.IncrementCommentsCount(ctx, storyID); err != nil {
		log.Error("Failed to increment comments counter", zap.Error(err))
	}

	s.notifier.Notify(ctx, &models.Notification{
		UserID:  story.AuthorID,
		Type:    models.NotificationNewComment,
		Title:   "New feedback from a mentor",
		Body:    fmt.Sprintf("A mentor left %s feedback on %q.", input.Type, story.Title),
		StoryID: &story.ID,
	})
	s.sendFeedbackEmail(ctx, story, content)

	log.Info("Comment created", zap.String("commentID", comment.ID.String()), zap.String("type", string(input.Type)))
	return comment, nil
}

func (s *commentServiceImpl) sendFeedbackEmail(ctx context.Context, story *models.Story, content string) {
	author, err := s.userRepo.GetUserByID(ctx, story.AuthorID)
	if err != nil {
		s.logger.Error("Failed to load author for feedback email", zap.Error(err), zap.String("authorID", story.AuthorID.String()))
		return
	}
	err = s.emailPub.PublishEmail(ctx, messaging.EmailTaskPayload{
		Kind:   messaging.EmailMentorFeedback,
		To:     author.Email,
		ToName: author.DisplayName,
		Data: map[string]string{
			"name":        author.DisplayName,
			"story_title": story.Title,
			"excerpt":     content,
		},
	})
	if err != nil {
		s.logger.Error("Failed to enqueue mentor feedback email", zap.Error(err), zap.String("authorID", story.AuthorID.String()))
	}
}

// ListByStory returns the feedback thread, subject to the same visibility
// rules as the story itself.
func (s *commentServiceImpl) ListByStory(ctx context.Context, viewerID uuid.UUID, viewerRoles []string, storyID uuid.UUID) ([]models.Comment, error) {
	story, err := s.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.Status != models.StoryPublished &&
		story.AuthorID != viewerID &&
		!models.HasRole(viewerRoles, models.RoleMentor) &&
		!models.HasRole(viewerRoles, models.RoleAdmin) {
		return nil, models.ErrStoryNotFound
	}
	return s.commentRepo.ListByStory(ctx, storyID)
}

// Resolve flips the resolution flag for the story's author or a mentor.
func (s *commentServiceImpl) Resolve(ctx context.Context, callerID uuid.UUID, callerRoles []string, commentID uuid.UUID, resolved bool) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	story, err := s.storyRepo.GetByID(ctx, comment.StoryID)
	if err != nil {
		if errors.Is(err, models.ErrStoryNotFound) {
			return models.ErrCommentNotFound
		}
		return err
	}
	if story.AuthorID != callerID &&
		!models.HasRole(callerRoles, models.RoleMentor) &&
		!models.HasRole(callerRoles, models.RoleAdmin) {
		return models.ErrForbidden
	}
	return s.commentRepo.SetResolved(ctx, commentID, resolved)
}

// Delete removes a comment and drops the story counter.
func (s *commentServiceImpl) Delete(ctx context.Context, callerID uuid.UUID, callerRoles []string, commentID uuid.UUID) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != callerID && !models.HasRole(callerRoles, models.RoleAdmin) {
		return models.ErrForbidden
	}

	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return err
	}
	if err := s.storyRepo.DecrementCommentsCount(ctx, comment.StoryID); err != nil {
		s.logger.Error("Failed to decrement comments counter", zap.Error(err), zap.String("storyID", comment.StoryID.String()))
	}
	return nil
}
