package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"mintoons-server/internal/messaging"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// defaultSubjects maps each email kind to its subject line, used when the
// enqueued task does not carry an explicit one.
var defaultSubjects = map[messaging.EmailKind]string{
	messaging.EmailWelcome:         "Welcome to Mintoons!",
	messaging.EmailParentalConsent: "Please approve your child's Mintoons account",
	messaging.EmailPasswordReset:   "Reset your Mintoons password",
	messaging.EmailMentorFeedback:  "A mentor left feedback on your story",
	messaging.EmailWeeklyProgress:  "Your week of writing on Mintoons",
}

// Message is a fully rendered outbound email.
type Message struct {
	To          string
	ToName      string
	Subject     string
	TextContent string
	HTMLContent string
}

// Render builds a Message from an email task: picks the template by kind
// and executes it with the task's data map.
func Render(task messaging.EmailTaskPayload) (*Message, error) {
	templateName := string(task.Kind) + ".html"
	if templates.Lookup(templateName) == nil {
		return nil, fmt.Errorf("no template for email kind %q", task.Kind)
	}

	var htmlBuf bytes.Buffer
	if err := templates.ExecuteTemplate(&htmlBuf, templateName, task.Data); err != nil {
		return nil, fmt.Errorf("failed to render email template %q: %w", templateName, err)
	}

	subject := task.Subject
	if subject == "" {
		subject = defaultSubjects[task.Kind]
	}

	return &Message{
		To:          task.To,
		ToName:      task.ToName,
		Subject:     subject,
		TextContent: textFallback(task),
		HTMLContent: htmlBuf.String(),
	}, nil
}

// textFallback produces a plain-text alternative for clients that do not
// render HTML. Deliberately simple: greeting plus the key link or note.
func textFallback(task messaging.EmailTaskPayload) string {
	var b bytes.Buffer
	if name := task.Data["name"]; name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", name)
	}
	switch task.Kind {
	case messaging.EmailWelcome:
		b.WriteString("Welcome to Mintoons! Start your first story today.\n")
	case messaging.EmailParentalConsent:
		fmt.Fprintf(&b, "Your child %s would like to write stories on Mintoons.\nApprove here: %s\n",
			task.Data["child_name"], task.Data["consent_url"])
	case messaging.EmailPasswordReset:
		fmt.Fprintf(&b, "Reset your password here: %s\nThe link expires in one hour.\n", task.Data["reset_url"])
	case messaging.EmailMentorFeedback:
		fmt.Fprintf(&b, "A mentor left feedback on %q:\n%s\n", task.Data["story_title"], task.Data["excerpt"])
	case messaging.EmailWeeklyProgress:
		fmt.Fprintf(&b, "This week you wrote %s words across %s stories. Keep going!\n",
			task.Data["words"], task.Data["stories"])
	}
	return b.String()
}
