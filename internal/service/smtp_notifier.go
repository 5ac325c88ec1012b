package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	gomail "github.com/wneessen/go-mail"

	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

// mailSender is the part of *gomail.Client the notifier uses.
type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPNotifier sends reset emails through an SMTP relay.
type SMTPNotifier struct {
	client   mailSender
	from     string
	fromName string
	baseURL  string
}

// NewSMTPNotifier creates an SMTP notifier. SSL selects implicit TLS (port
// 465 on Gmail); otherwise STARTTLS is mandatory.
func NewSMTPNotifier(cfg config.NotifierSettings, baseURL string) (*SMTPNotifier, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = constants.DefaultNotifierTimeout
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTP.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.SMTP.Username),
		gomail.WithPassword(cfg.SMTP.Password),
		gomail.WithTimeout(timeout),
	}
	if cfg.SMTP.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}

	client, err := gomail.NewClient(cfg.SMTP.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return newSMTPNotifier(client, cfg.From, cfg.FromName, baseURL), nil
}

func newSMTPNotifier(client mailSender, from, fromName, baseURL string) *SMTPNotifier {
	return &SMTPNotifier{client: client, from: from, fromName: fromName, baseURL: baseURL}
}

// SendPasswordReset implements Notifier.
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	msg, err := n.buildMessage(email, token)
	if err != nil {
		return err
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	log.Info().Str("email", utils.MaskEmail(email)).Msg("Password reset email sent")
	return nil
}

func (n *SMTPNotifier) buildMessage(email, token string) (*gomail.Msg, error) {
	subject, text, html, err := renderResetEmail(ResetLink(n.baseURL, token))
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(n.fromName, n.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, text)
	msg.AddAlternativeString(gomail.TypeTextHTML, html)

	return msg, nil
}
