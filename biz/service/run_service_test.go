package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/db"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/storage/local"
)

func TestGetRunNotFound(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})

	if _, err := svc.GetRun(context.Background(), 999); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestDeleteRun(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})
	ctx := context.Background()

	result, err := svc.Reconcile(ctx, jenkinsObs("deploy", 1, StatusSuccess))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if err := svc.DeleteRun(ctx, result.Run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := svc.GetRun(ctx, result.Run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("run still present after delete: %v", err)
	}
	if err := svc.DeleteRun(ctx, result.Run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("double delete: expected ErrRunNotFound, got %v", err)
	}
}

func TestRunLogsInlineFallback(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})
	ctx := context.Background()

	obs := jenkinsObs("deploy", 1, StatusFailure)
	obs.Logs = "assertion failed in step 3"
	result, err := svc.Reconcile(ctx, obs)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	logs, err := svc.RunLogs(ctx, result.Run.ID)
	if err != nil {
		t.Fatalf("RunLogs: %v", err)
	}
	if logs != "assertion failed in step 3" {
		t.Fatalf("logs = %q", logs)
	}

	// A run without logs has nothing to serve.
	empty, err := svc.Reconcile(ctx, jenkinsObs("deploy", 2, StatusSuccess))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := svc.RunLogs(ctx, empty.Run.ID); !errors.Is(err, ErrLogsNotArchived) {
		t.Fatalf("expected ErrLogsNotArchived, got %v", err)
	}
}

func TestRunLogsFromArchive(t *testing.T) {
	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	archive, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	svc := NewService(database, Deps{Notifier: &captureNotifier{}, Archive: archive})
	ctx := context.Background()

	obs := jenkinsObs("deploy", 7, StatusFailure)
	obs.Logs = "console output of build 7"
	result, err := svc.Reconcile(ctx, obs)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// The failed run's console output was archived during reconcile.
	exists, err := archive.Exists(ctx, "jenkins/deploy/7.log")
	if err != nil || !exists {
		t.Fatalf("archived log missing: exists=%v err=%v", exists, err)
	}

	logs, err := svc.RunLogs(ctx, result.Run.ID)
	if err != nil {
		t.Fatalf("RunLogs: %v", err)
	}
	if logs != "console output of build 7" {
		t.Fatalf("logs = %q", logs)
	}
}

func TestRecentFailuresService(t *testing.T) {
	svc, _ := newReconcileService(t, &captureNotifier{})
	ctx := context.Background()

	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 1, StatusFailure)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := svc.Reconcile(ctx, jenkinsObs("deploy", 2, StatusSuccess)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := svc.Reconcile(ctx, &Observation{
		Provider: model.ProviderGitHub, PipelineName: "ci", Status: StatusFailure,
	}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	failures, err := svc.RecentFailures(ctx, 10, nil)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	for _, f := range failures {
		if f.Status != StatusFailure {
			t.Errorf("non-failure in list: %+v", f)
		}
	}
}
