package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/config"
	"github.com/fleetportal/passreset/internal/constants"
	"github.com/fleetportal/passreset/internal/utils"
)

// Notifier delivers a reset token to the account's email address.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// NewNotifier builds the notifier selected by notifier.provider.
func NewNotifier(cfg *config.AppConfig) (Notifier, error) {
	switch cfg.Notifier.Provider {
	case constants.NotifierSMTP:
		return NewSMTPNotifier(cfg.Notifier, cfg.Reset.BaseURL)
	case constants.NotifierSendGrid:
		return NewSendGridNotifier(cfg.Notifier, cfg.Reset.BaseURL), nil
	case constants.NotifierLog:
		return NewLogNotifier(os.Stderr, cfg.Reset.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown notifier provider %q", cfg.Notifier.Provider)
	}
}

// ResetLink builds the link the admin opens to choose a new password.
func ResetLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + constants.ResetPasswordPath + "?" + constants.QueryParamToken + "=" + url.QueryEscape(token)
}

const resetEmailSubject = "Password reset request"

var resetEmailHTML = template.Must(template.New("reset").Parse(`<h3>Hello,</h3>
<p>We received a request to reset the password of your fleet management account.
Use the button below to choose a new password. The link is valid for 24 hours and can be used once.</p>
<a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background: #165DFF; color: white; text-decoration: none; border-radius: 4px; margin: 10px 0;">Set a new password</a>
<p>If you did not ask for a reset you can ignore this email; your account stays unchanged.</p>
<p>Regards,<br>The Fleet Management team</p>
`))

// renderResetEmail returns the subject, plain text and HTML bodies for a link.
func renderResetEmail(link string) (string, string, string, error) {
	text := fmt.Sprintf("Hello,\n\n"+
		"We received a request to reset the password of your fleet management account.\n"+
		"Open the link below to choose a new password. It is valid for 24 hours and can be used once:\n\n"+
		"%s\n\n"+
		"If you did not ask for a reset you can ignore this email; your account stays unchanged.\n", link)

	var html bytes.Buffer
	if err := resetEmailHTML.Execute(&html, struct{ Link string }{link}); err != nil {
		return "", "", "", fmt.Errorf("failed to render reset email: %w", err)
	}

	return resetEmailSubject, text, html.String(), nil
}

// LogNotifier writes reset links to a local writer instead of sending mail.
// It is refused in production by configuration validation.
type LogNotifier struct {
	mu      sync.Mutex
	out     io.Writer
	baseURL string
}

// NewLogNotifier creates a LogNotifier writing to out.
func NewLogNotifier(out io.Writer, baseURL string) *LogNotifier {
	return &LogNotifier{out: out, baseURL: baseURL}
}

// SendPasswordReset implements Notifier.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := fmt.Fprintf(n.out, "password reset link for %s: %s\n", email, ResetLink(n.baseURL, token)); err != nil {
		return err
	}

	log.Info().Str("email", utils.MaskEmail(email)).Msg("Password reset link written to local output")
	return nil
}
