// Package notify delivers failure alerts. Delivery is best-effort and
// non-blocking by contract: errors are reported to the caller for logging
// but never affect persisted run state.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Alert carries everything a channel needs to compose a failure summary.
type Alert struct {
	Provider     string
	PipelineName string
	BuildNumber  *int
	Status       string
	Branch       string
	Actor        string
	URL          string
	Logs         string
	StartedAt    *time.Time
}

// Summary renders the one-line failure message shared by all channels.
func (a Alert) Summary() string {
	build := "N/A"
	if a.BuildNumber != nil {
		build = fmt.Sprintf("%d", *a.BuildNumber)
	}
	return fmt.Sprintf("Pipeline failure: %s #%s (%s) on %s, triggered by %s. URL: %s",
		a.PipelineName, build, a.Provider, a.Branch, a.Actor, a.URL)
}

// Notifier delivers a failure alert through a configured channel.
type Notifier interface {
	NotifyFailure(ctx context.Context, alert Alert) error
}

// Multi fans an alert out to several channels. Delivery succeeds if at
// least one channel accepts the alert; with zero channels it reports an
// error so callers do not mark the run as notified.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a fan-out notifier, ignoring nil channels.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Configured reports whether any channel is attached.
func (m *Multi) Configured() bool {
	return len(m.notifiers) > 0
}

// NotifyFailure sends the alert to every channel.
func (m *Multi) NotifyFailure(ctx context.Context, alert Alert) error {
	if len(m.notifiers) == 0 {
		return fmt.Errorf("no notification channel configured")
	}
	var delivered int
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.NotifyFailure(ctx, alert); err != nil {
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("all notification channels failed: %w", lastErr)
	}
	return nil
}
