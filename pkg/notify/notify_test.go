package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/config"
)

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) NotifyFailure(ctx context.Context, alert Alert) error {
	s.calls++
	return s.err
}

func TestMultiNoChannels(t *testing.T) {
	m := NewMulti()
	if m.Configured() {
		t.Fatal("empty multi must not report configured")
	}
	if err := m.NotifyFailure(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error with zero channels")
	}
}

func TestMultiPartialSuccess(t *testing.T) {
	failing := &stubNotifier{err: errors.New("smtp down")}
	working := &stubNotifier{}
	m := NewMulti(failing, working, nil)

	if err := m.NotifyFailure(context.Background(), Alert{}); err != nil {
		t.Fatalf("expected success with one working channel, got %v", err)
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", failing.calls, working.calls)
	}
}

func TestMultiAllFail(t *testing.T) {
	m := NewMulti(&stubNotifier{err: errors.New("a")}, &stubNotifier{err: errors.New("b")})
	if err := m.NotifyFailure(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error when every channel fails")
	}
}

func TestSlackNotifier(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	num := 42
	alert := Alert{
		Provider:     "jenkins",
		PipelineName: "deploy",
		BuildNumber:  &num,
		Branch:       "main",
		Actor:        "alice",
		URL:          "http://jenkins/job/deploy/42/",
	}
	if err := n.NotifyFailure(context.Background(), alert); err != nil {
		t.Fatalf("NotifyFailure: %v", err)
	}
	if !strings.Contains(body["text"], "deploy #42") {
		t.Fatalf("message = %q", body["text"])
	}
	if !strings.Contains(body["text"], "alice") {
		t.Fatalf("actor missing from message: %q", body["text"])
	}
}

func TestSlackNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.NotifyFailure(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNotifierConstructorsDisabled(t *testing.T) {
	if NewSlackNotifier("") != nil {
		t.Error("expected nil slack notifier without URL")
	}
	if NewEmailNotifier(config.SMTPConfig{Host: "smtp.example.com"}) != nil {
		t.Error("expected nil email notifier for partial config")
	}
}

func TestAlertSummaryWithoutNumber(t *testing.T) {
	summary := Alert{PipelineName: "ci", Provider: "github", Branch: "main", Actor: "bob"}.Summary()
	if !strings.Contains(summary, "#N/A") {
		t.Fatalf("summary = %q, want N/A placeholder", summary)
	}
}
