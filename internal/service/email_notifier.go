package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/resumekit/resumekit/internal/observability"
)

type VerificationNotification struct {
	AccountID uint
	Email     string
	Code      string
	Token     string
	ExpiresAt time.Time
	LinkURL   string
}

type PasswordResetNotification struct {
	AccountID uint
	Email     string
	Token     string
	ExpiresAt time.Time
	LinkURL   string
}

// EmailNotifier is the delivery boundary. Real SMTP lives behind it; the dev
// notifier below just renders and logs.
type EmailNotifier interface {
	SendVerification(ctx context.Context, n VerificationNotification) error
	SendPasswordReset(ctx context.Context, n PasswordResetNotification) error
}

var verificationEmailTmpl = template.Must(template.New("verification").Parse(`<p>Hi,</p>
<p>Confirm your email to finish setting up your account.</p>
<p>Your verification code is <strong>{{.Code}}</strong>. It expires at {{.ExpiresAt}}.</p>
{{if .Link}}<p>Or open <a href="{{.Link}}">this link</a> directly.</p>{{end}}`))

var resetEmailTmpl = template.Must(template.New("reset").Parse(`<p>Hi,</p>
<p>A password reset was requested for this address.</p>
{{if .Link}}<p>Reset it via <a href="{{.Link}}">this link</a> before {{.ExpiresAt}}.</p>{{end}}
<p>If this wasn't you, ignore this message.</p>`))

// BuildProofLink appends the token to a configured base URL.
func BuildProofLink(baseURL, token string) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid link base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DevEmailNotifier renders the templates and logs the result instead of
// sending. The code and link land in the logs, which is how local flows are
// exercised end to end.
type DevEmailNotifier struct {
	logger *slog.Logger
}

func NewDevEmailNotifier(logger *slog.Logger) *DevEmailNotifier {
	return &DevEmailNotifier{logger: logger}
}

func (n *DevEmailNotifier) SendVerification(ctx context.Context, notification VerificationNotification) error {
	body, err := renderEmail(verificationEmailTmpl, map[string]any{
		"Code":      notification.Code,
		"Link":      notification.LinkURL,
		"ExpiresAt": notification.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		observability.RecordEmailNotification(ctx, "email_verification", "render_error")
		return err
	}
	n.logger.InfoContext(ctx, "verification email rendered",
		"account_id", notification.AccountID,
		"email", notification.Email,
		"code", notification.Code,
		"link", notification.LinkURL,
		"expires_at", notification.ExpiresAt,
		"body_bytes", len(body),
	)
	observability.RecordEmailNotification(ctx, "email_verification", "sent")
	return nil
}

func (n *DevEmailNotifier) SendPasswordReset(ctx context.Context, notification PasswordResetNotification) error {
	body, err := renderEmail(resetEmailTmpl, map[string]any{
		"Link":      notification.LinkURL,
		"ExpiresAt": notification.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		observability.RecordEmailNotification(ctx, "password_reset", "render_error")
		return err
	}
	n.logger.InfoContext(ctx, "password reset email rendered",
		"account_id", notification.AccountID,
		"email", notification.Email,
		"link", notification.LinkURL,
		"expires_at", notification.ExpiresAt,
		"body_bytes", len(body),
	)
	observability.RecordEmailNotification(ctx, "password_reset", "sent")
	return nil
}

func renderEmail(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}
