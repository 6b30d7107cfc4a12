// Package notify sends the end-of-run summary.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/gomail.v2"

	"github.com/rickgao/options-data/internal/manifest"
	"github.com/rickgao/options-data/internal/model"
)

// Subjects of the summary email.
const (
	SubjectComplete = "Options collection complete"
	SubjectFailed   = "Options collection FAILED"
)

// Notifier delivers a run summary. Errors are reported, never fatal to the run.
type Notifier interface {
	Notify(ctx context.Context, s manifest.Snapshot) error
}

// Nop discards summaries.
type Nop struct{}

func (Nop) Notify(context.Context, manifest.Snapshot) error { return nil }

// Failed reports whether a run summary describes a failed run.
func Failed(s manifest.Snapshot) bool {
	return s.Phase == manifest.PhaseFailed || s.WriteError != "" || s.Succeeded == 0
}

// Compose renders the subject and plain-text body of a summary.
func Compose(s manifest.Snapshot) (subject, body string) {
	p := message.NewPrinter(language.English)

	subject = SubjectComplete
	if Failed(s) {
		subject = SubjectFailed
	}

	var b strings.Builder
	p.Fprintf(&b, "%s for %s\n\n", subject, s.Date)
	p.Fprintf(&b, "Run:         %s\n", s.RunID)
	p.Fprintf(&b, "Started:     %s\n", s.StartedAt.UTC().Format(time.DateTime+" MST"))
	p.Fprintf(&b, "Tickers:     %d succeeded, %d failed\n", s.Succeeded, s.Failed)
	p.Fprintf(&b, "Contracts:   %d\n", s.Contracts)
	if s.Artifact != "" {
		p.Fprintf(&b, "Artifact:    %s\n", s.Artifact)
	}
	if s.WriteError != "" {
		p.Fprintf(&b, "Write error: %s\n", s.WriteError)
	}

	var ok, failed []manifest.TickerResult
	for _, r := range s.Results {
		if r.Status == manifest.StatusSucceeded {
			ok = append(ok, r)
		} else {
			failed = append(failed, r)
		}
	}

	if len(failed) > 0 {
		b.WriteString("\nFailed:\n")
		for _, r := range failed {
			p.Fprintf(&b, "  %-8s %s\n", r.Ticker, r.Error)
		}
	}
	if len(ok) > 0 {
		b.WriteString("\nSucceeded:\n")
		for _, r := range ok {
			p.Fprintf(&b, "  %-8s %9d contracts (%d attempt(s))\n", r.Ticker, r.Contracts, r.Attempts)
		}
	}

	return subject, b.String()
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

// Email sends summaries over SMTP.
type Email struct {
	from   string
	to     []string
	send   func(msgs ...*gomail.Message) error
	logger *slog.Logger
}

// EmailOption configures an Email notifier.
type EmailOption func(*Email)

// WithSender delivers messages through s instead of dialing SMTP.
func WithSender(s gomail.Sender) EmailOption {
	return func(e *Email) {
		e.send = func(msgs ...*gomail.Message) error {
			return gomail.Send(s, msgs...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EmailOption {
	return func(e *Email) {
		e.logger = logger
	}
}

// NewEmail creates an SMTP notifier. From and To default to the login user.
func NewEmail(cfg EmailConfig, opts ...EmailOption) *Email {
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	to := cfg.To
	if len(to) == 0 {
		to = []string{from}
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	e := &Email{
		from:   from,
		to:     to,
		send:   dialer.DialAndSend,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Notify sends the summary email. The returned error is a *model.NotifyError.
func (e *Email) Notify(ctx context.Context, s manifest.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return &model.NotifyError{Channel: "email", Err: err}
	}

	subject, body := Compose(s)

	msg := gomail.NewMessage()
	msg.SetHeader("From", e.from)
	msg.SetHeader("To", e.to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() {
		done <- e.send(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &model.NotifyError{Channel: "email", Err: fmt.Errorf("send to %v: %w", e.to, err)}
		}
	case <-ctx.Done():
		return &model.NotifyError{Channel: "email", Err: ctx.Err()}
	}

	e.logger.Info("summary email sent", "to", e.to, "subject", subject)
	return nil
}
