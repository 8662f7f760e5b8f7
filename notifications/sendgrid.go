// Package notifications delivers verification codes and reset links by email.
package notifications

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	templates "github.com/linesmerrill/laundry-api/templates/html"
)

const defaultResetBaseURL = "https://www.freshfold.com"

// MailClient is the part of the sendgrid client used here
type MailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridDispatcher sends identity emails through SendGrid
type SendGridDispatcher struct {
	Client       MailClient
	FromName     string
	FromAddress  string
	ResetBaseURL string
}

// NewSendGridDispatcher creates a dispatcher backed by the SendGrid API
func NewSendGridDispatcher(apiKey, fromName, fromAddress, resetBaseURL string) *SendGridDispatcher {
	return &SendGridDispatcher{
		Client:       sendgrid.NewSendClient(apiKey),
		FromName:     fromName,
		FromAddress:  fromAddress,
		ResetBaseURL: resetBaseURL,
	}
}

// SendVerificationCode emails a registration code
func (d *SendGridDispatcher) SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error {
	minutes := ttlMinutes(ttl)
	subject := "Your Fresh Fold verification code"
	plain := fmt.Sprintf("Verification code: %s. This code will expire in %d minutes.", code, minutes)
	return d.send(ctx, email, subject, plain, templates.RenderCode(code, minutes))
}

// SendResetToken emails a password reset link carrying token
func (d *SendGridDispatcher) SendResetToken(ctx context.Context, email, token string, ttl time.Duration) error {
	minutes := ttlMinutes(ttl)
	link := BuildResetLink(d.ResetBaseURL, token)
	subject := "Reset your Fresh Fold password"
	plain := fmt.Sprintf("Reset your password using this link: %s. The link expires in %d minutes.", link, minutes)
	return d.send(ctx, email, subject, plain, templates.RenderPasswordReset(link, minutes))
}

func (d *SendGridDispatcher) send(ctx context.Context, toEmail, subject, plain, htmlContent string) error {
	from := mail.NewEmail(d.FromName, d.FromAddress)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plain, htmlContent)

	response, err := d.Client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		zap.S().Warnw("sendgrid returned non-2xx status", "email", toEmail, "statusCode", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid send: status %d", response.StatusCode)
	}
	zap.S().Infow("email sent", "email", toEmail, "subject", subject, "statusCode", response.StatusCode)
	return nil
}

// BuildResetLink returns the front end URL that redeems token
func BuildResetLink(baseURL, token string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultResetBaseURL
	}
	return base + "/reset-password?token=" + url.QueryEscape(token)
}

func ttlMinutes(ttl time.Duration) int {
	m := int(ttl.Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
