package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintoons-server/internal/messaging"
)

func TestRenderWelcome(t *testing.T) {
	msg, err := Render(messaging.EmailTaskPayload{
		Kind:   messaging.EmailWelcome,
		To:     "mia@example.com",
		ToName: "Mia",
		Data:   map[string]string{"name": "Mia"},
	})
	require.NoError(t, err)

	assert.Equal(t, "mia@example.com", msg.To)
	assert.Equal(t, "Welcome to Mintoons!", msg.Subject)
	assert.Contains(t, msg.HTMLContent, "Mia")
	assert.Contains(t, msg.TextContent, "Hi Mia,")
}

func TestRenderParentalConsent(t *testing.T) {
	msg, err := Render(messaging.EmailTaskPayload{
		Kind: messaging.EmailParentalConsent,
		To:   "parent@example.com",
		Data: map[string]string{
			"child_name":  "Mia",
			"consent_url": "https://app.mintoons.com/consent?token=abc",
		},
	})
	require.NoError(t, err)

	assert.Contains(t, msg.HTMLContent, "Mia")
	assert.Contains(t, msg.HTMLContent, "https://app.mintoons.com/consent?token=abc")
	assert.Contains(t, msg.TextContent, "https://app.mintoons.com/consent?token=abc")
}

func TestRenderEscapesHTML(t *testing.T) {
	msg, err := Render(messaging.EmailTaskPayload{
		Kind: messaging.EmailMentorFeedback,
		To:   "kid@example.com",
		Data: map[string]string{
			"name":        "Sam",
			"story_title": "The <script>alert(1)</script> Adventure",
			"excerpt":     "Nice work!",
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTMLContent, "<script>", "template data must be escaped")
}

func TestRenderCustomSubject(t *testing.T) {
	msg, err := Render(messaging.EmailTaskPayload{
		Kind:    messaging.EmailWelcome,
		To:      "a@example.com",
		Subject: "Custom subject",
		Data:    map[string]string{"name": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Custom subject", msg.Subject)
}

func TestRenderUnknownKind(t *testing.T) {
	_, err := Render(messaging.EmailTaskPayload{
		Kind: messaging.EmailKind("carrier_pigeon"),
		To:   "a@example.com",
	})
	assert.Error(t, err)
}

func TestRenderAllKindsHaveTemplates(t *testing.T) {
	kinds := []messaging.EmailKind{
		messaging.EmailWelcome,
		messaging.EmailParentalConsent,
		messaging.EmailPasswordReset,
		messaging.EmailMentorFeedback,
		messaging.EmailWeeklyProgress,
	}
	for _, kind := range kinds {
		_, err := Render(messaging.EmailTaskPayload{Kind: kind, To: "a@example.com", Data: map[string]string{}})
		assert.NoError(t, err, string(kind))
	}
}
