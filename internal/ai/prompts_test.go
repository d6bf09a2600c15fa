package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintoons-server/internal/models"
)

func testStory() *models.Story {
	return &models.Story{
		Title:   "The Moon Garden",
		Genre:   "fantasy",
		Content: "Mia planted a seed that only grew at night.",
	}
}

func TestBuildPromptKinds(t *testing.T) {
	story := testStory()

	sys, user, err := BuildPrompt(models.AssistContinue, story, "what happens next?", "test-model")
	require.NoError(t, err)
	assert.Contains(t, sys, "continuing")
	assert.Contains(t, user, story.Title)
	assert.Contains(t, user, story.Genre)
	assert.Contains(t, user, story.Content)
	assert.Contains(t, user, "what happens next?")

	sys, _, err = BuildPrompt(models.AssistIdea, story, "", "test-model")
	require.NoError(t, err)
	assert.Contains(t, sys, "ideas")

	sys, user, err = BuildPrompt(models.AssistAssess, story, "ignore me", "test-model")
	require.NoError(t, err)
	assert.Contains(t, sys, "JSON")
	assert.NotContains(t, user, "ignore me", "assess ignores the free-form prompt")

	_, _, err = BuildPrompt(models.AssistKind("summarize"), story, "", "test-model")
	assert.Error(t, err)
}

func TestBuildPromptOmitsEmptyGenre(t *testing.T) {
	story := testStory()
	story.Genre = ""
	_, user, err := BuildPrompt(models.AssistIdea, story, "", "test-model")
	require.NoError(t, err)
	assert.NotContains(t, user, "Genre:")
}

func TestBuildPromptTruncatesLongStories(t *testing.T) {
	story := testStory()
	story.Content = strings.Repeat("dragon castle wizard ", 5000)

	// Unknown model keeps the estimator on its deterministic fallback.
	_, user, err := BuildPrompt(models.AssistContinue, story, "", "test-model")
	require.NoError(t, err)
	assert.Contains(t, user, "...", "truncated content is marked")
	assert.Less(t, len(user), len(story.Content), "prompt must be shorter than the raw story")
}

func TestParseAssessment(t *testing.T) {
	a, err := ParseAssessment(`{"grammar": 80, "creativity": 92, "overall": 85, "feedback": "Lovely imagery! Try varying sentence length."}`)
	require.NoError(t, err)
	assert.Equal(t, 80, a.Grammar)
	assert.Equal(t, 92, a.Creativity)
	assert.Equal(t, 85, a.Overall)
	assert.Equal(t, "Lovely imagery! Try varying sentence length.", a.Feedback)
}

func TestParseAssessmentWrappedInProse(t *testing.T) {
	response := "Sure! Here is the review:\n```json\n" +
		`{"grammar": 70, "creativity": 88, "overall": 78, "feedback": "Great start."}` +
		"\n```\nHope that helps!"
	a, err := ParseAssessment(response)
	require.NoError(t, err)
	assert.Equal(t, 70, a.Grammar)
	assert.Equal(t, 88, a.Creativity)
}

func TestParseAssessmentClampsScores(t *testing.T) {
	a, err := ParseAssessment(`{"grammar": -10, "creativity": 250, "overall": 100, "feedback": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Grammar)
	assert.Equal(t, 100, a.Creativity)
	assert.Equal(t, 100, a.Overall)
}

func TestParseAssessmentErrors(t *testing.T) {
	_, err := ParseAssessment("the model refused to answer")
	assert.Error(t, err, "no JSON object at all")

	_, err = ParseAssessment(`{"grammar": "eighty"}`)
	assert.Error(t, err, "wrong field type")
}

func TestEstimateTokensFallback(t *testing.T) {
	// Unknown models fall back to the len/4 heuristic.
	n := EstimateTokens("definitely-not-a-real-model", "abcdefgh")
	assert.Equal(t, 2, n)
}
