package email

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// --- SendGrid sender ---

type sendgridSender struct {
	key    string
	from   *sgmail.Email
	logger *zap.Logger
}

// Compile-time check to ensure sendgridSender implements Sender
var _ Sender = (*sendgridSender)(nil)

// NewSendgridSender creates a Sender backed by the SendGrid v3 mail API.
func NewSendgridSender(apiKey, fromAddress, fromName string, logger *zap.Logger) Sender {
	return &sendgridSender{
		key:    apiKey,
		from:   sgmail.NewEmail(fromName, fromAddress),
		logger: logger.Named("SendgridSender"),
	}
}

func (s *sendgridSender) Send(ctx context.Context, msg *Message) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.TextContent),
		sgmail.NewContent("text/html", msg.HTMLContent),
	)

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		s.logger.Error("Failed to send email via SendGrid", zap.Error(err), zap.String("to", msg.To))
		return fmt.Errorf("failed to send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.Error("SendGrid rejected email",
			zap.Int("status", res.StatusCode),
			zap.String("body", res.Body),
			zap.String("to", msg.To))
		return fmt.Errorf("sendgrid rejected email with status %d", res.StatusCode)
	}

	s.logger.Debug("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// --- Console sender ---

// consoleSender logs emails instead of delivering them. Used in
// development and whenever no SendGrid key is configured.
type consoleSender struct {
	logger *zap.Logger
}

// Compile-time check to ensure consoleSender implements Sender
var _ Sender = (*consoleSender)(nil)

// NewConsoleSender creates a Sender that writes emails to the log.
func NewConsoleSender(logger *zap.Logger) Sender {
	return &consoleSender{logger: logger.Named("ConsoleSender")}
}

func (s *consoleSender) Send(_ context.Context, msg *Message) error {
	s.logger.Info("Email (console delivery)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.TextContent))
	return nil
}

// NewSender picks SendGrid when a key is configured, console otherwise.
func NewSender(apiKey, fromAddress, fromName string, logger *zap.Logger) Sender {
	if apiKey == "" {
		logger.Warn("No SendGrid API key configured, emails go to the log")
		return NewConsoleSender(logger)
	}
	return NewSendgridSender(apiKey, fromAddress, fromName, logger)
}
