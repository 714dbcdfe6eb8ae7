package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/db"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/events"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/notify"
)

type captureNotifier struct {
	mu     sync.Mutex
	fail   error
	alerts []notify.Alert
}

func (n *captureNotifier) NotifyFailure(ctx context.Context, alert notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func newReconcileService(t *testing.T, notifier *captureNotifier) (*Service, *capturePublisher) {
	t.Helper()
	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	pub := &capturePublisher{}
	svc := NewService(database, Deps{Notifier: notifier, Publisher: pub})
	return svc, pub
}

func jenkinsObs(pipeline string, number int, status string) *Observation {
	return &Observation{
		Provider:     model.ProviderJenkins,
		PipelineName: pipeline,
		BuildNumber:  &number,
		Status:       status,
	}
}

func TestReconcileCreatesAndNotifies(t *testing.T) {
	notifier := &captureNotifier{}
	svc, pub := newReconcileService(t, notifier)
	ctx := context.Background()

	obs := jenkinsObs("deploy", 1, StatusFailure)
	obs.TriggeredBy = "alice"
	obs.Logs = "step 3 exploded"

	result, err := svc.Reconcile(ctx, obs)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Created || result.Transition != TransitionCreated {
		t.Fatalf("result = created:%v transition:%q", result.Created, result.Transition)
	}
	if !result.Notified || !result.Run.Notified {
		t.Fatal("new failure must be notified")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", notifier.count())
	}
	if notifier.alerts[0].Actor != "alice" {
		t.Errorf("alert actor = %q, want alice", notifier.alerts[0].Actor)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != events.TypeRunUpserted || ev.Transition != TransitionCreated || ev.Status != StatusFailure {
		t.Errorf("event = %+v", ev)
	}
}

func TestReconcileDeduplicatesByIdentity(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})
	ctx := context.Background()

	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 5, StatusRunning)); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	result, err := svc.Reconcile(ctx, jenkinsObs("deploy", 5, StatusSuccess))
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if result.Created {
		t.Fatal("second sighting must not create a new record")
	}
	if result.Transition != "running->success" {
		t.Errorf("transition = %q, want running->success", result.Transition)
	}

	_, total, err := svc.ListRuns(ctx, db.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 record, got %d", total)
	}
}

func TestReconcileMergeKeepsKnownFields(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})
	ctx := context.Background()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	first := jenkinsObs("deploy", 3, StatusRunning)
	first.StartedAt = &start
	first.Branch = "release"
	first.TriggeredBy = "alice"
	first.URL = "http://jenkins/job/deploy/3/"
	if _, err := svc.Reconcile(ctx, first); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	finish := start.Add(45 * time.Second)
	second := jenkinsObs("deploy", 3, StatusSuccess)
	second.FinishedAt = &finish
	result, err := svc.Reconcile(ctx, second)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	run := result.Run
	if run.Status != StatusSuccess {
		t.Errorf("status = %q, want success", run.Status)
	}
	if run.StartedAt == nil || !run.StartedAt.Equal(start) {
		t.Errorf("started_at regressed: %v", run.StartedAt)
	}
	if run.Branch != "release" || run.TriggeredBy != "alice" || run.URL == "" {
		t.Errorf("known fields regressed: branch=%q actor=%q url=%q", run.Branch, run.TriggeredBy, run.URL)
	}
	if run.DurationSeconds == nil || *run.DurationSeconds != 45 {
		t.Errorf("duration = %v, want 45 derived from merged timestamps", run.DurationSeconds)
	}
}

func TestNotifyOncePerFailureEpisode(t *testing.T) {
	notifier := &captureNotifier{}
	svc, _ := newReconcileService(t, notifier)
	ctx := context.Background()
	dao := db.NewRunDAO()

	// New failure alerts.
	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 2, StatusFailure)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", notifier.count())
	}

	// Repeated failure sighting stays silent.
	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 2, StatusFailure)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("repeated failure re-alerted, got %d alerts", notifier.count())
	}

	// Recovery clears the notified flag.
	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 2, StatusSuccess)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	run, err := dao.GetByIdentity(ctx, svc.database, model.ProviderJenkins, "deploy", 2)
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}
	if run.Notified {
		t.Fatal("notified flag must clear when status leaves failure")
	}

	// A fresh failure episode alerts again.
	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 2, StatusFailure)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 alerts after re-failure, got %d", notifier.count())
	}
}

func TestNotifyDeliveryFailureLeavesFlagUnset(t *testing.T) {
	notifier := &captureNotifier{fail: errors.New("webhook down")}
	svc, _ := newReconcileService(t, notifier)
	ctx := context.Background()

	result, err := svc.Reconcile(ctx, jenkinsObs("deploy", 4, StatusFailure))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Notified || result.Run.Notified {
		t.Fatal("failed delivery must not mark the run notified")
	}
}

func TestPushObservationsWithoutNumberAlwaysInsert(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		obs := &Observation{
			Provider:     model.ProviderGitHub,
			PipelineName: "ci",
			Status:       StatusSuccess,
		}
		if _, err := svc.Reconcile(ctx, obs); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	_, total, err := svc.ListRuns(ctx, db.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 records for unnumbered observations, got %d", total)
	}
}

func TestReconcileRejectsMissingIdentity(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})

	_, err := svc.Reconcile(context.Background(), &Observation{PipelineName: "deploy"})
	if !errors.Is(err, ErrPipelineNameMissing) {
		t.Fatalf("expected ErrPipelineNameMissing, got %v", err)
	}
}

func TestReconcileConcurrentSameIdentity(t *testing.T) {
	notifier := &captureNotifier{}
	svc, _ := newReconcileService(t, notifier)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 9, StatusFailure)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent reconcile: %v", err)
	}

	_, total, err := svc.ListRuns(ctx, db.RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 record after concurrent sightings, got %d", total)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly 1 alert after concurrent sightings, got %d", notifier.count())
	}
}
