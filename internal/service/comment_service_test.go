package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
)

type commentFixture struct {
	comments *mockCommentRepo
	stories  *mockStoryRepo
	users    *mockUserRepo
	notifier *mockNotifier
	emails   *mockEmailPublisher
	svc      CommentService
}

func newCommentFixture() *commentFixture {
	f := &commentFixture{
		comments: &mockCommentRepo{},
		stories:  &mockStoryRepo{},
		users:    &mockUserRepo{},
		notifier: &mockNotifier{},
		emails:   &mockEmailPublisher{},
	}
	f.svc = NewCommentService(f.comments, f.stories, f.users, f.notifier, f.emails, zap.NewNop())
	return f
}

// resolveScene wires a story with one unresolved comment on it and
// returns the story author's ID and the comment ID.
func (f *commentFixture) resolveScene() (uuid.UUID, uuid.UUID) {
	authorID := uuid.New()
	story := draftStory(authorID)
	comment := &models.Comment{
		ID:       uuid.New(),
		StoryID:  story.ID,
		AuthorID: uuid.New(),
		Type:     models.CommentSuggestion,
		Content:  "Try a stronger opening.",
	}
	f.stories.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.Story, error) {
		if id == story.ID {
			return story, nil
		}
		return nil, models.ErrStoryNotFound
	}
	f.comments.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
		if id == comment.ID {
			return comment, nil
		}
		return nil, models.ErrCommentNotFound
	}
	return authorID, comment.ID
}

func TestResolveCommentByAuthor(t *testing.T) {
	f := newCommentFixture()
	authorID, commentID := f.resolveScene()

	require.NoError(t, f.svc.Resolve(context.Background(), authorID, []string{models.RoleChild}, commentID, true))
	assert.Equal(t, []bool{true}, f.comments.resolvedCalls)
}

func TestResolveCommentByMentor(t *testing.T) {
	f := newCommentFixture()
	_, commentID := f.resolveScene()

	mentorID := uuid.New()
	require.NoError(t, f.svc.Resolve(context.Background(), mentorID, []string{models.RoleMentor}, commentID, true))

	// And back to unresolved.
	require.NoError(t, f.svc.Resolve(context.Background(), mentorID, []string{models.RoleMentor}, commentID, false))
	assert.Equal(t, []bool{true, false}, f.comments.resolvedCalls)
}

func TestResolveCommentForbiddenForOtherUsers(t *testing.T) {
	f := newCommentFixture()
	_, commentID := f.resolveScene()

	err := f.svc.Resolve(context.Background(), uuid.New(), []string{models.RoleChild}, commentID, true)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Empty(t, f.comments.resolvedCalls)
}

func TestResolveCommentUnknownComment(t *testing.T) {
	f := newCommentFixture()

	err := f.svc.Resolve(context.Background(), uuid.New(), []string{models.RoleChild}, uuid.New(), true)
	assert.ErrorIs(t, err, models.ErrCommentNotFound)
}

func TestCreateCommentNotifiesAuthor(t *testing.T) {
	f := newCommentFixture()
	authorID := uuid.New()
	story := draftStory(authorID)
	f.stories.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.Story, error) {
		return story, nil
	}
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		return &models.User{ID: authorID, Email: "mia@example.com", DisplayName: "Mia"}, nil
	}

	comment, err := f.svc.Create(context.Background(), uuid.New(), story.ID, CommentInput{
		Type:    models.CommentPraise,
		Content: "Lovely imagery!",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CommentPraise, comment.Type)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, authorID, f.notifier.sent[0].UserID)
	require.Len(t, f.emails.published, 1)
	assert.Equal(t, "mia@example.com", f.emails.published[0].To)
}

func TestCreateCommentRejectsInvalidInput(t *testing.T) {
	f := newCommentFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, uuid.New(), uuid.New(), CommentInput{Type: "shouting", Content: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.Create(ctx, uuid.New(), uuid.New(), CommentInput{Type: models.CommentGrammar, Content: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
