package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/config"
)

const maxLogExcerpt = 2000

// EmailNotifier delivers failure alerts over SMTP with STARTTLS.
type EmailNotifier struct {
	cfg config.SMTPConfig
}

// NewEmailNotifier creates an email channel. Returns nil unless host,
// credentials, from and to are all configured.
func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	if !cfg.Configured() {
		return nil
	}
	return &EmailNotifier{cfg: cfg}
}

// NotifyFailure sends the alert as a plain-text email.
func (e *EmailNotifier) NotifyFailure(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logs := alert.Logs
	if len(logs) > maxLogExcerpt {
		logs = logs[:maxLogExcerpt]
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", e.cfg.To)
	fmt.Fprintf(&body, "Subject: Pipeline FAILURE: %s (%s)\r\n\r\n", alert.PipelineName, alert.Provider)
	fmt.Fprintf(&body, "Pipeline: %s\r\n", alert.PipelineName)
	fmt.Fprintf(&body, "Provider: %s\r\n", alert.Provider)
	fmt.Fprintf(&body, "Branch: %s\r\n", alert.Branch)
	fmt.Fprintf(&body, "Triggered by: %s\r\n", alert.Actor)
	fmt.Fprintf(&body, "URL: %s\r\n", alert.URL)
	fmt.Fprintf(&body, "Status: %s\r\n", alert.Status)
	fmt.Fprintf(&body, "Logs:\r\n%s\r\n", logs)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	if err := smtp.SendMail(addr, auth, e.cfg.From, []string{e.cfg.To}, []byte(body.String())); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}
