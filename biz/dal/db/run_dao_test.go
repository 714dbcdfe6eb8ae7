package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"gorm.io/gorm"
)

func TestCreateValidation(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	if err := dao.Create(ctx, database, nil); err == nil {
		t.Error("expected error for nil run")
	}
	if err := dao.Create(ctx, database, &model.PipelineRun{PipelineName: "x"}); err == nil {
		t.Error("expected error for missing provider")
	}
	if err := dao.Create(ctx, database, &model.PipelineRun{Provider: "jenkins"}); err == nil {
		t.Error("expected error for missing pipeline name")
	}
}

func TestGetByIdentity(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	created := CreateTestRun(t, database, "jenkins", "deploy", IntPtr(42), "success")

	run, err := dao.GetByIdentity(ctx, database, "jenkins", "deploy", 42)
	if err != nil {
		t.Fatalf("GetByIdentity: %v", err)
	}
	if run.ID != created.ID {
		t.Fatalf("got run %d, want %d", run.ID, created.ID)
	}

	if _, err := dao.GetByIdentity(ctx, database, "jenkins", "deploy", 43); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestLatestForPipeline(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	for i, started := range []time.Time{older, newer} {
		ts := started
		run := &model.PipelineRun{
			Provider:     "jenkins",
			PipelineName: "deploy",
			BuildNumber:  IntPtr(i + 1),
			Status:       "success",
			StartedAt:    &ts,
		}
		if err := dao.Create(ctx, database, run); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	latest, err := dao.LatestForPipeline(ctx, database, "jenkins", "deploy")
	if err != nil {
		t.Fatalf("LatestForPipeline: %v", err)
	}
	if latest.BuildNumber == nil || *latest.BuildNumber != 2 {
		t.Fatalf("latest build = %v, want 2", latest.BuildNumber)
	}
}

func TestListFilters(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	CreateTestRun(t, database, "jenkins", "deploy-api", IntPtr(1), "success")
	CreateTestRun(t, database, "jenkins", "deploy-api", IntPtr(2), "failure")
	CreateTestRun(t, database, "github", "frontend-ci", nil, "success")
	run := CreateTestRun(t, database, "github", "frontend-ci", nil, "running")
	run.TriggeredBy = "alice"
	if err := dao.Save(ctx, database, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Status filter.
	runs, total, err := dao.List(ctx, database, RunFilter{Status: "success"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(runs) != 2 {
		t.Fatalf("status filter: total=%d len=%d, want 2", total, len(runs))
	}

	// Substring search over pipeline name.
	_, total, err = dao.List(ctx, database, RunFilter{Query: "frontend"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Fatalf("query filter: total=%d, want 2", total)
	}

	// Substring search over the triggering actor.
	runs, total, err = dao.List(ctx, database, RunFilter{Query: "alice"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || runs[0].TriggeredBy != "alice" {
		t.Fatalf("actor query: total=%d", total)
	}

	// Newest-first with limit and offset; total stays the full match count.
	runs, total, err = dao.List(ctx, database, RunFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(runs) != 2 {
		t.Fatalf("paging: total=%d len=%d", total, len(runs))
	}
	if runs[0].ID < runs[1].ID {
		t.Fatal("expected newest-first ordering")
	}
}

func TestRecentFailures(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	CreateTestRun(t, database, "jenkins", "deploy", IntPtr(1), "failure")
	CreateTestRun(t, database, "jenkins", "orphan", nil, "failure") // excluded: no build number
	CreateTestRun(t, database, "github", "ci", nil, "failure")
	CreateTestRun(t, database, "jenkins", "deploy", IntPtr(2), "success")

	failures, err := dao.RecentFailures(ctx, database, 10, nil)
	if err != nil {
		t.Fatalf("RecentFailures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	for _, f := range failures {
		if f.Provider == "jenkins" && f.BuildNumber == nil {
			t.Errorf("unnumbered jenkins run leaked into failures: %+v", f)
		}
	}

	future := time.Now().UTC().Add(time.Hour)
	failures, err = dao.RecentFailures(ctx, database, 10, &future)
	if err != nil {
		t.Fatalf("RecentFailures since: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("future window returned %d failures", len(failures))
	}
}

func TestMetrics(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	durations := []float64{10, 20, 30}
	for i, d := range durations {
		dur := d
		run := CreateTestRun(t, database, "jenkins", "deploy", IntPtr(i+1), "success")
		run.DurationSeconds = &dur
		if err := dao.Save(ctx, database, run); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	CreateTestRun(t, database, "jenkins", "deploy", IntPtr(4), "failure")
	CreateTestRun(t, database, "jenkins", "deploy", IntPtr(5), "running")

	metrics, err := dao.Metrics(ctx, database, nil, nil)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.TotalRuns != 5 || metrics.SuccessCount != 3 || metrics.FailureCount != 1 || metrics.RunningCount != 1 {
		t.Fatalf("counts = %+v", metrics)
	}
	if metrics.SuccessRate != 60.0 {
		t.Errorf("success rate = %v, want 60.0", metrics.SuccessRate)
	}
	if metrics.AverageBuildTimeSeconds == nil || *metrics.AverageBuildTimeSeconds != 20 {
		t.Errorf("avg duration = %v, want 20", metrics.AverageBuildTimeSeconds)
	}
	if metrics.LastBuildStatus == nil || *metrics.LastBuildStatus != "running" {
		t.Errorf("last status = %v, want running", metrics.LastBuildStatus)
	}
}

func TestMetricsEmpty(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)

	metrics, err := NewRunDAO().Metrics(context.Background(), database, nil, nil)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if metrics.TotalRuns != 0 || metrics.SuccessRate != 0 {
		t.Fatalf("empty metrics = %+v", metrics)
	}
	if metrics.LastBuildStatus != nil {
		t.Fatalf("expected nil last status, got %v", *metrics.LastBuildStatus)
	}
}

func TestSaveWritesZeroValues(t *testing.T) {
	database := SetupTestDB(t)
	defer CleanupTestDB(t, database)
	dao := NewRunDAO()
	ctx := context.Background()

	run := CreateTestRun(t, database, "jenkins", "deploy", IntPtr(1), "failure")
	run.Notified = true
	if err := dao.Save(ctx, database, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	run.Notified = false
	if err := dao.Save(ctx, database, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := dao.GetByID(ctx, database, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Notified {
		t.Fatal("cleared notified flag was not persisted")
	}
}
