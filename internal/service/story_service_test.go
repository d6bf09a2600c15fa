package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
)

type storyFixture struct {
	stories  *mockStoryRepo
	likes    *mockLikeRepo
	users    *mockUserRepo
	subs     *mockSubRepo
	notifier *mockNotifier
	svc      StoryService
}

func newStoryFixture() *storyFixture {
	f := &storyFixture{
		stories:  &mockStoryRepo{},
		likes:    &mockLikeRepo{},
		users:    &mockUserRepo{},
		subs:     &mockSubRepo{},
		notifier: &mockNotifier{},
	}
	f.svc = NewStoryService(f.stories, f.likes, f.users, f.subs, f.notifier, zap.NewNop())
	return f
}

// withAuthor wires GetUserByID to return the given user.
func (f *storyFixture) withAuthor(user *models.User) {
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		if id == user.ID {
			return user, nil
		}
		return nil, models.ErrUserNotFound
	}
}

// withStory wires GetByID to return the given story.
func (f *storyFixture) withStory(story *models.Story) {
	f.stories.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.Story, error) {
		if id == story.ID {
			return story, nil
		}
		return nil, models.ErrStoryNotFound
	}
}

func consentedAuthor() *models.User {
	return &models.User{
		ID:            uuid.New(),
		Username:      "mia",
		DisplayName:   "Mia",
		Roles:         []string{models.RoleChild},
		Age:           10,
		Status:        models.AccountActive,
		ConsentStatus: models.ConsentGranted,
		Tier:          models.TierFree,
	}
}

func draftStory(authorID uuid.UUID) *models.Story {
	return &models.Story{
		ID:        uuid.New(),
		AuthorID:  authorID,
		Title:     "The Moon Garden",
		Content:   "Mia planted a seed that only grew at night.",
		Genre:     "fantasy",
		Status:    models.StoryDraft,
		WordCount: 9,
	}
}

func TestCreateStory(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	f.withAuthor(author)

	story, err := f.svc.Create(context.Background(), author.ID, StoryInput{
		Title:   "  The Moon Garden  ",
		Content: "Mia planted a seed.",
		Genre:   "fantasy",
	})
	require.NoError(t, err)

	assert.Equal(t, "The Moon Garden", story.Title, "title is trimmed")
	assert.Equal(t, models.StoryDraft, story.Status)
	assert.Equal(t, 4, story.WordCount)
	assert.Equal(t, []int{1}, f.users.adjustStoryCountCalls)
	assert.Equal(t, []int{4}, f.users.recordWritingCalls)
	assert.Equal(t, []int{1}, f.users.recordedStreaks, "first write starts a streak of one")
}

func TestCreateStoryExtendsStreakFromYesterday(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	author.StreakDays = 3
	author.LastWroteAt = time.Now().UTC().AddDate(0, 0, -1)
	f.withAuthor(author)

	_, err := f.svc.Create(context.Background(), author.ID, StoryInput{
		Title:   "Day four",
		Content: "The dragon returned.",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, f.users.recordedStreaks)
}

func TestCreateStoryResetsStreakAfterGap(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	author.StreakDays = 7
	author.LastWroteAt = time.Now().UTC().AddDate(0, 0, -3)
	f.withAuthor(author)

	_, err := f.svc.Create(context.Background(), author.ID, StoryInput{
		Title:   "Back again",
		Content: "The dragon returned.",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, f.users.recordedStreaks)
}

func TestCreateStoryQuotaExceeded(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	f.withAuthor(author)
	// The free tier allows one story per day; the repo reports the
	// counter is already at the limit.
	quotaChecked := false
	f.subs.consumeQuotaFn = func(ctx context.Context, userID uuid.UUID, kind models.QuotaKind, limit int, now time.Time) error {
		quotaChecked = true
		assert.Equal(t, models.QuotaStories, kind)
		assert.Equal(t, 1, limit)
		return models.ErrQuotaExceeded
	}

	_, err := f.svc.Create(context.Background(), author.ID, StoryInput{Title: "T", Content: "c"})
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
	assert.True(t, quotaChecked)
	assert.Empty(t, f.users.adjustStoryCountCalls, "nothing is written after a quota rejection")
}

func TestCreateStoryBlockedWithoutConsent(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	author.ConsentStatus = models.ConsentPending
	f.withAuthor(author)

	_, err := f.svc.Create(context.Background(), author.ID, StoryInput{Title: "T", Content: "c"})
	assert.ErrorIs(t, err, models.ErrConsentPending)
}

func TestCreateStoryValidation(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	f.withAuthor(author)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, author.ID, StoryInput{Title: "   ", Content: "c"})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "blank title")

	_, err = f.svc.Create(ctx, author.ID, StoryInput{Title: strings.Repeat("x", 201), Content: "c"})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "title too long")

	_, err = f.svc.Create(ctx, author.ID, StoryInput{Title: "T", Content: strings.Repeat("x", 50001)})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "content too long")
}

func TestGetVisibility(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withStory(story)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, author.ID, []string{models.RoleChild}, story.ID)
	require.NoError(t, err, "author sees own draft")
	assert.Equal(t, story.ID, got.ID)

	_, err = f.svc.Get(ctx, uuid.New(), []string{models.RoleChild}, story.ID)
	assert.ErrorIs(t, err, models.ErrStoryNotFound, "drafts are invisible to other users")

	_, err = f.svc.Get(ctx, uuid.New(), []string{models.RoleMentor}, story.ID)
	assert.NoError(t, err, "mentors see unpublished stories")

	story.Status = models.StoryPublished
	_, err = f.svc.Get(ctx, uuid.New(), []string{models.RoleChild}, story.ID)
	assert.NoError(t, err, "published stories are public")
}

func TestUpdateStoryNotOwner(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	intruder := consentedAuthor()
	story := draftStory(author.ID)
	f.withStory(story)
	f.users.getByIDFn = func(ctx context.Context, id uuid.UUID) (*models.User, error) {
		return intruder, nil
	}

	_, err := f.svc.Update(context.Background(), intruder.ID, story.ID, StoryInput{Title: "T", Content: "c"})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestSubmitStory(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withAuthor(author)
	f.withStory(story)

	require.NoError(t, f.svc.Submit(context.Background(), author.ID, story.ID))
	require.Len(t, f.stories.statusUpdates, 1)
	assert.Equal(t, [2]models.StoryStatus{models.StoryDraft, models.StoryNeedsReview}, f.stories.statusUpdates[0])
}

func TestSubmitEmptyStory(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	story.Content = "  \n  "
	f.withAuthor(author)
	f.withStory(story)

	err := f.svc.Submit(context.Background(), author.ID, story.ID)
	assert.ErrorIs(t, err, models.ErrStoryEmpty)
	assert.Empty(t, f.stories.statusUpdates)
}

func TestSubmitNonDraft(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	story.Status = models.StoryNeedsReview
	f.withAuthor(author)
	f.withStory(story)

	err := f.svc.Submit(context.Background(), author.ID, story.ID)
	assert.ErrorIs(t, err, models.ErrStoryNotDraft)
}

func TestSubmitLosesRaceToConcurrentTransition(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withAuthor(author)
	f.withStory(story)
	f.stories.updateStatusFn = func(ctx context.Context, id uuid.UUID, expected, next models.StoryStatus) error {
		return models.ErrNotFound
	}

	err := f.svc.Submit(context.Background(), author.ID, story.ID)
	assert.ErrorIs(t, err, models.ErrStoryNotDraft)
}

func TestApprovePublishesAndNotifies(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	story.Status = models.StoryNeedsReview
	f.withStory(story)

	require.NoError(t, f.svc.Approve(context.Background(), uuid.New(), story.ID))

	require.Len(t, f.stories.statusUpdates, 1)
	assert.Equal(t, [2]models.StoryStatus{models.StoryNeedsReview, models.StoryPublished}, f.stories.statusUpdates[0])

	require.Len(t, f.notifier.sent, 1)
	n := f.notifier.sent[0]
	assert.Equal(t, author.ID, n.UserID)
	assert.Equal(t, models.NotificationStoryApproved, n.Type)
	require.NotNil(t, n.StoryID)
	assert.Equal(t, story.ID, *n.StoryID)
}

func TestApproveRejectsDraft(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withStory(story)

	err := f.svc.Approve(context.Background(), uuid.New(), story.ID)
	assert.ErrorIs(t, err, models.ErrStoryNotInReview)
	assert.Empty(t, f.notifier.sent)
}

func TestRequestChangesIncludesNote(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	story.Status = models.StoryNeedsReview
	f.withStory(story)

	require.NoError(t, f.svc.RequestChanges(context.Background(), uuid.New(), story.ID, "  add an ending  "))

	require.Len(t, f.notifier.sent, 1)
	n := f.notifier.sent[0]
	assert.Equal(t, models.NotificationChangesNeeded, n.Type)
	assert.Contains(t, n.Body, "add an ending")
}

func TestDeletePermissions(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withStory(story)
	ctx := context.Background()

	err := f.svc.Delete(ctx, uuid.New(), []string{models.RoleChild}, story.ID)
	assert.ErrorIs(t, err, models.ErrForbidden, "strangers cannot delete")

	story.Status = models.StoryPublished
	err = f.svc.Delete(ctx, author.ID, []string{models.RoleChild}, story.ID)
	assert.ErrorIs(t, err, models.ErrForbidden, "authors cannot take down published stories")

	err = f.svc.Delete(ctx, uuid.New(), []string{models.RoleAdmin}, story.ID)
	assert.NoError(t, err, "admins can delete anything")
	assert.Equal(t, []int{-1}, f.users.adjustStoryCountCalls)
}

func TestLikeRequiresPublishedStory(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withStory(story)

	err := f.svc.Like(context.Background(), uuid.New(), story.ID)
	assert.ErrorIs(t, err, models.ErrStoryNotPublished)
	assert.Zero(t, f.stories.likesDelta)

	story.Status = models.StoryPublished
	require.NoError(t, f.svc.Like(context.Background(), uuid.New(), story.ID))
	assert.Equal(t, 1, f.stories.likesDelta)
}

func TestUnlikeWithoutLike(t *testing.T) {
	f := newStoryFixture()
	f.likes.removeLikeFn = func(ctx context.Context, userID, storyID uuid.UUID) error {
		return models.ErrNotLikedYet
	}

	err := f.svc.Unlike(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotLikedYet)
	assert.Zero(t, f.stories.likesDelta)
}

func TestExportStoryText(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withAuthor(author)
	f.withStory(story)

	export, err := f.svc.ExportStory(context.Background(), author.ID, story.ID, ExportText)
	require.NoError(t, err)

	assert.Equal(t, "the-moon-garden.txt", export.FileName)
	assert.Equal(t, "text/plain; charset=utf-8", export.ContentType)
	body := string(export.Body)
	assert.Contains(t, body, story.Title)
	assert.Contains(t, body, "by Mia")
	assert.Contains(t, body, story.Content)
}

func TestExportStoryHTMLEscapesContent(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	story.Content = "A line with <b>markup</b>\n\nSecond paragraph"
	f.withAuthor(author)
	f.withStory(story)

	export, err := f.svc.ExportStory(context.Background(), author.ID, story.ID, ExportHTML)
	require.NoError(t, err)

	assert.Equal(t, "the-moon-garden.html", export.FileName)
	body := string(export.Body)
	assert.NotContains(t, body, "<b>markup</b>")
	assert.Contains(t, body, "&lt;b&gt;markup&lt;/b&gt;")
	assert.Equal(t, 2, strings.Count(body, "<p>"), "paragraphs split on blank lines")
}

func TestExportStoryNotOwner(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withStory(story)

	_, err := f.svc.ExportStory(context.Background(), uuid.New(), story.ID, ExportText)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestExportStoryQuotaExceeded(t *testing.T) {
	f := newStoryFixture()
	author := consentedAuthor()
	story := draftStory(author.ID)
	f.withAuthor(author)
	f.withStory(story)
	f.subs.consumeQuotaFn = func(ctx context.Context, userID uuid.UUID, kind models.QuotaKind, limit int, now time.Time) error {
		assert.Equal(t, models.QuotaExports, kind)
		return models.ErrQuotaExceeded
	}

	_, err := f.svc.ExportStory(context.Background(), author.ID, story.ID, ExportText)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
}
