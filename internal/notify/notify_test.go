package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/rickgao/options-data/internal/manifest"
	"github.com/rickgao/options-data/internal/model"
)

func snapshot() manifest.Snapshot {
	return manifest.Snapshot{
		RunID:     "1a2b3c4d-0000-0000-0000-000000000000",
		Date:      "2024-01-10",
		Phase:     manifest.PhaseNotifying,
		StartedAt: time.Date(2024, 1, 10, 21, 0, 0, 0, time.UTC),
		Artifact:  "s3://options-data/date=2024-01-10/options-1a2b3c4d.parquet",
		Succeeded: 1,
		Failed:    1,
		Contracts: 12345,
		Results: []manifest.TickerResult{
			{Ticker: "AAPL", Status: manifest.StatusSucceeded, Contracts: 12345, Attempts: 1},
			{Ticker: "MSFT", Status: manifest.StatusFailed, Attempts: 3, Error: "fetch MSFT failed after 3 attempt(s): 503"},
		},
	}
}

func TestCompose(t *testing.T) {
	subject, body := Compose(snapshot())

	if subject != SubjectComplete {
		t.Errorf("subject = %q, want %q", subject, SubjectComplete)
	}

	for _, want := range []string{
		"for 2024-01-10",
		"1 succeeded, 1 failed",
		"Contracts:   12,345",
		"s3://options-data/date=2024-01-10/options-1a2b3c4d.parquet",
		"MSFT     fetch MSFT failed after 3 attempt(s): 503",
		"AAPL",
		"12,345 contracts",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestComposeFailed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *manifest.Snapshot)
	}{
		{"write error", func(s *manifest.Snapshot) { s.WriteError = "put failed" }},
		{"zero succeeded", func(s *manifest.Snapshot) { s.Succeeded = 0 }},
		{"failed phase", func(s *manifest.Snapshot) { s.Phase = manifest.PhaseFailed }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot()
			tt.mutate(&s)
			subject, _ := Compose(s)
			if subject != SubjectFailed {
				t.Errorf("subject = %q, want %q", subject, SubjectFailed)
			}
		})
	}
}

type sent struct {
	from string
	to   []string
	raw  string
}

func TestEmail_Notify(t *testing.T) {
	var got []sent
	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		var buf bytes.Buffer
		if _, err := msg.WriteTo(&buf); err != nil {
			return err
		}
		got = append(got, sent{from: from, to: to, raw: buf.String()})
		return nil
	})

	e := NewEmail(EmailConfig{Host: "smtp.example.com", Port: 587, User: "me@example.com", Password: "pw"}, WithSender(sender))
	if err := e.Notify(context.Background(), snapshot()); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	if got[0].from != "me@example.com" {
		t.Errorf("from = %q, want sender login", got[0].from)
	}
	if len(got[0].to) != 1 || got[0].to[0] != "me@example.com" {
		t.Errorf("to = %v, want recipient to default to sender", got[0].to)
	}
	if !strings.Contains(got[0].raw, "Subject: "+SubjectComplete) {
		t.Errorf("message missing subject:\n%s", got[0].raw)
	}
}

func TestEmail_NotifyError(t *testing.T) {
	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		return errors.New("535 authentication failed")
	})

	e := NewEmail(EmailConfig{User: "me@example.com", To: []string{"ops@example.com"}}, WithSender(sender))
	err := e.Notify(context.Background(), snapshot())

	var nerr *model.NotifyError
	if !errors.As(err, &nerr) {
		t.Fatalf("error = %v, want *model.NotifyError", err)
	}
	if nerr.Channel != "email" {
		t.Errorf("Channel = %q, want email", nerr.Channel)
	}
	if !strings.Contains(err.Error(), "535 authentication failed") {
		t.Errorf("error = %v, want cause", err)
	}
}

func TestEmail_CanceledContext(t *testing.T) {
	calls := 0
	sender := gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
		calls++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEmail(EmailConfig{User: "me@example.com"}, WithSender(sender))
	if err := e.Notify(ctx, snapshot()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Notify(context.Background(), snapshot()); err != nil {
		t.Errorf("Nop.Notify() = %v", err)
	}
}
