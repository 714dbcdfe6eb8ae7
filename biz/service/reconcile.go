package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/events"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/notify"
	"gorm.io/gorm"
)

// TransitionCreated marks a reconcile that inserted a new record.
const TransitionCreated = "created"

const notifyTimeout = 5 * time.Second

// ReconcileResult reports what one observation did to the run history.
type ReconcileResult struct {
	Run        *model.PipelineRun
	Created    bool
	Transition string
	Notified   bool
}

// Reconcile merges one observation into the run history. Observations with
// a build number are upserted under a per-identity lock so that concurrent
// sightings of the same build from different entry points can neither
// double-insert nor double-notify. Observations without a build number are
// inserted as fresh records; duplicate suppression is not offered for that
// path.
//
// The field merge never regresses a known value to null, and the status is
// always taken from the newest observation (last write wins). A failure
// notification is attempted at most once per failure transition; delivery
// failure leaves the merge committed and the notified flag unset.
func (s *Service) Reconcile(ctx context.Context, obs *Observation) (*ReconcileResult, error) {
	if obs == nil || obs.Provider == "" || obs.PipelineName == "" {
		return nil, ErrPipelineNameMissing
	}

	var result *ReconcileResult
	var err error
	if obs.BuildNumber == nil {
		result, err = s.insertRun(ctx, obs)
	} else {
		key := identityKey(obs)
		release, lockErr := s.locker.Acquire(ctx, key)
		if lockErr != nil {
			return nil, fmt.Errorf("acquire reconcile lock: %w", lockErr)
		}
		result, err = s.upsertRun(ctx, obs)
		release()
	}
	if err != nil {
		return nil, err
	}

	s.archiveLogs(ctx, result.Run)
	s.publisher.Publish(events.Event{
		Type:         events.TypeRunUpserted,
		RunID:        result.Run.ID,
		Status:       result.Run.Status,
		Transition:   result.Transition,
		Provider:     result.Run.Provider,
		PipelineName: result.Run.PipelineName,
		BuildNumber:  result.Run.BuildNumber,
	})
	return result, nil
}

func identityKey(obs *Observation) string {
	return fmt.Sprintf("%s/%s/%d", obs.Provider, obs.PipelineName, *obs.BuildNumber)
}

// insertRun handles the no-identity path: every accepted observation
// becomes a new record.
func (s *Service) insertRun(ctx context.Context, obs *Observation) (*ReconcileResult, error) {
	run := newRunFromObservation(obs)
	if err := s.runs.Create(ctx, s.database, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	result := &ReconcileResult{Run: run, Created: true, Transition: TransitionCreated}
	s.maybeNotify(ctx, result, "")
	return result, nil
}

// upsertRun runs the locked existence-check/insert-or-merge/notify
// sequence for an identified observation.
func (s *Service) upsertRun(ctx context.Context, obs *Observation) (*ReconcileResult, error) {
	existing, err := s.runs.GetByIdentity(ctx, s.database, obs.Provider, obs.PipelineName, *obs.BuildNumber)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup run: %w", err)
	}

	if existing == nil {
		run := newRunFromObservation(obs)
		if err := s.runs.Create(ctx, s.database, run); err != nil {
			return nil, fmt.Errorf("insert run: %w", err)
		}
		result := &ReconcileResult{Run: run, Created: true, Transition: TransitionCreated}
		s.maybeNotify(ctx, result, "")
		return result, nil
	}

	previous := existing.Status
	mergeObservation(existing, obs)
	if err := s.runs.Save(ctx, s.database, existing); err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}

	result := &ReconcileResult{
		Run:        existing,
		Transition: previous + "->" + existing.Status,
	}
	s.maybeNotify(ctx, result, previous)
	return result, nil
}

func newRunFromObservation(obs *Observation) *model.PipelineRun {
	return &model.PipelineRun{
		Provider:        obs.Provider,
		PipelineName:    obs.PipelineName,
		BuildNumber:     obs.BuildNumber,
		Status:          obs.Status,
		StartedAt:       obs.StartedAt,
		FinishedAt:      obs.FinishedAt,
		DurationSeconds: obs.DurationSeconds,
		Branch:          obs.Branch,
		TriggeredBy:     obs.TriggeredBy,
		URL:             obs.URL,
		Logs:            obs.Logs,
		Notified:        false,
	}
}

// mergeObservation applies the newest observation onto an existing record.
// Status follows last-write-wins; every other field only moves forward,
// never from a known value back to null. Leaving the failure state clears
// the notified flag so a later re-failure alerts again.
func mergeObservation(run *model.PipelineRun, obs *Observation) {
	wasFailure := run.Status == StatusFailure
	run.Status = obs.Status
	if wasFailure && run.Status != StatusFailure {
		run.Notified = false
	}

	if obs.StartedAt != nil {
		run.StartedAt = obs.StartedAt
	}
	if obs.FinishedAt != nil {
		run.FinishedAt = obs.FinishedAt
	}
	if obs.DurationSeconds != nil {
		run.DurationSeconds = obs.DurationSeconds
	}
	if run.DurationSeconds == nil {
		run.DurationSeconds = ComputeDuration(run.StartedAt, run.FinishedAt)
	}
	if obs.Branch != "" {
		run.Branch = obs.Branch
	}
	if obs.TriggeredBy != "" {
		run.TriggeredBy = obs.TriggeredBy
	}
	if obs.URL != "" {
		run.URL = obs.URL
	}
	if obs.Logs != "" {
		run.Logs = obs.Logs
	}
}

// maybeNotify applies the failure-notification decision and, when due,
// attempts delivery. The notified flag flips only after delivery succeeds;
// a failed delivery is logged and the run state left untouched so a later
// observation may retry.
func (s *Service) maybeNotify(ctx context.Context, result *ReconcileResult, previousStatus string) {
	run := result.Run
	due := run.Status == StatusFailure &&
		!run.Notified &&
		(result.Created || previousStatus != StatusFailure)
	if !due {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyFailure(notifyCtx, s.alertFor(run)); err != nil {
		hlog.Warnf("failure alert for %s #%v not delivered: %v", run.PipelineName, run.BuildNumber, err)
		return
	}

	run.Notified = true
	if err := s.runs.Save(ctx, s.database, run); err != nil {
		hlog.Errorf("mark run %d notified: %v", run.ID, err)
		return
	}
	result.Notified = true
}

func (s *Service) alertFor(run *model.PipelineRun) notify.Alert {
	var started *time.Time
	if run.StartedAt != nil {
		local := run.StartedAt.In(s.displayLoc)
		started = &local
	}
	return notify.Alert{
		Provider:     run.Provider,
		PipelineName: run.PipelineName,
		BuildNumber:  run.BuildNumber,
		Status:       run.Status,
		Branch:       run.Branch,
		Actor:        run.TriggeredBy,
		URL:          run.URL,
		Logs:         run.Logs,
		StartedAt:    started,
	}
}

// archiveLogs stores console output of failed runs in the configured
// archive. Best-effort: archive errors never fail the reconcile.
func (s *Service) archiveLogs(ctx context.Context, run *model.PipelineRun) {
	if s.archive == nil || run.Status != StatusFailure || run.Logs == "" {
		return
	}
	key := archiveKey(run)
	reader := strings.NewReader(run.Logs)
	if err := s.archive.Put(ctx, key, reader, int64(len(run.Logs))); err != nil {
		hlog.Warnf("archive logs for run %d: %v", run.ID, err)
	}
}

func archiveKey(run *model.PipelineRun) string {
	if run.BuildNumber != nil {
		return fmt.Sprintf("%s/%s/%d.log", run.Provider, run.PipelineName, *run.BuildNumber)
	}
	return fmt.Sprintf("%s/%s/run-%d.log", run.Provider, run.PipelineName, run.ID)
}
