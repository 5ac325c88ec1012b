package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/utils"
)

// sendGridClient is the part of *sendgrid.Client the notifier uses.
type sendGridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier sends reset emails through the SendGrid API.
type SendGridNotifier struct {
	client   sendGridClient
	from     string
	fromName string
	baseURL  string
}

// NewSendGridNotifier creates a SendGrid notifier from the API key in cfg.
func NewSendGridNotifier(cfg config.NotifierSettings, baseURL string) *SendGridNotifier {
	return &SendGridNotifier{
		client:   sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:     cfg.From,
		fromName: cfg.FromName,
		baseURL:  baseURL,
	}
}

// SendPasswordReset implements Notifier.
func (n *SendGridNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	subject, text, html, err := renderResetEmail(ResetLink(n.baseURL, token))
	if err != nil {
		return err
	}

	from := sgmail.NewEmail(n.fromName, n.from)
	to := sgmail.NewEmail("", email)
	message := sgmail.NewSingleEmail(from, subject, to, text, html)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected reset email: status %d", response.StatusCode)
	}

	log.Info().
		Int("status_code", response.StatusCode).
		Str("email", utils.MaskEmail(email)).
		Msg("Password reset email sent")
	return nil
}
