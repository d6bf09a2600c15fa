package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"mintoons-server/internal/models"
)

// maxStoryPromptTokens bounds how much of the story text is sent to the
// provider; very long stories are truncated from the front so the model
// sees the most recent part.
const maxStoryPromptTokens = 3000

const continueSystemPrompt = `You are a friendly writing coach for children aged 6 to 14.
The child is writing a story and wants help continuing it.
Suggest 2-3 sentences that could come next, matching the story's tone and reading level.
Keep the language age-appropriate, positive and free of violence or scary content.
Do not finish the story for the child; give them a springboard, not a replacement.`

const ideaSystemPrompt = `You are a friendly writing coach for children aged 6 to 14.
The child is looking for ideas for their story.
Offer three short, imaginative directions the story could take, each one or two sentences.
Keep every suggestion age-appropriate, positive and free of violence or scary content.`

const assessSystemPrompt = `You are an encouraging writing teacher reviewing a story written by a child aged 6 to 14.
Score the story and reply with ONLY a JSON object in exactly this shape:
{"grammar": <0-100>, "creativity": <0-100>, "overall": <0-100>, "feedback": "<2-4 encouraging sentences with one concrete suggestion>"}
Be generous and kind; the goal is to motivate, not to grade harshly.`

// BuildPrompt assembles the system prompt and user input for one assist
// task. The returned user input embeds the (possibly truncated) story.
func BuildPrompt(kind models.AssistKind, story *models.Story, userPrompt, model string) (systemPrompt, userInput string, err error) {
	content := truncateToTokens(story.Content, model, maxStoryPromptTokens)

	var b strings.Builder
	fmt.Fprintf(&b, "Story title: %s\n", story.Title)
	if story.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", story.Genre)
	}
	fmt.Fprintf(&b, "Story so far:\n%s\n", content)
	if userPrompt != "" && kind != models.AssistAssess {
		fmt.Fprintf(&b, "\nThe writer asks: %s\n", userPrompt)
	}

	switch kind {
	case models.AssistContinue:
		return continueSystemPrompt, b.String(), nil
	case models.AssistIdea:
		return ideaSystemPrompt, b.String(), nil
	case models.AssistAssess:
		return assessSystemPrompt, b.String(), nil
	default:
		return "", "", fmt.Errorf("unknown assist kind: %q", kind)
	}
}

// truncateToTokens drops text from the front until it fits the budget.
func truncateToTokens(text, model string, budget int) string {
	if EstimateTokens(model, text) <= budget {
		return text
	}
	// Binary search the cut point on runes.
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi) / 2
		if EstimateTokens(model, string(runes[mid:])) > budget {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return "..." + string(runes[lo:])
}

type assessmentPayload struct {
	Grammar    int    `json:"grammar"`
	Creativity int    `json:"creativity"`
	Overall    int    `json:"overall"`
	Feedback   string `json:"feedback"`
}

// ParseAssessment extracts the JSON scores from a model response.
// Models wrap JSON in markdown fences or prose often enough that we cut
// from the first '{' to the last '}' before unmarshalling.
func ParseAssessment(response string) (models.Assessment, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return models.Assessment{}, fmt.Errorf("no JSON object in assessment response")
	}

	var payload assessmentPayload
	if err := json.Unmarshal([]byte(response[start:end+1]), &payload); err != nil {
		return models.Assessment{}, fmt.Errorf("failed to parse assessment JSON: %w", err)
	}

	return models.Assessment{
		Grammar:    clampScore(payload.Grammar),
		Creativity: clampScore(payload.Creativity),
		Overall:    clampScore(payload.Overall),
		Feedback:   strings.TrimSpace(payload.Feedback),
	}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
