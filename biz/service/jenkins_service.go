package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/jenkins"
	"gorm.io/gorm"
)

// ErrJenkinsDisabled is returned by Jenkins-backed operations when no base
// URL is configured.
var ErrJenkinsDisabled = errors.New("jenkins integration is not configured")

// JobSummary is a dashboard-shaped view of one Jenkins job and its last
// build, presented in the configured display timezone.
type JobSummary struct {
	Provider        string     `json:"provider"`
	PipelineName    string     `json:"pipeline_name"`
	Status          string     `json:"status"`
	URL             string     `json:"url"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}

// SyncJenkins pulls recent builds for every known job and reconciles each
// one. A job's fetch failure is logged and skipped so the remaining jobs
// still sync; the same holds per build inside a job. Returns how many new
// run records this cycle created.
func (s *Service) SyncJenkins(ctx context.Context) (int, error) {
	if s.jenkins == nil {
		return 0, ErrJenkinsDisabled
	}

	jobs, err := s.jenkins.Jobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jenkins jobs: %w", err)
	}

	created := 0
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return created, ctx.Err()
		default:
		}

		builds, err := s.jenkins.Builds(ctx, job.Name, s.buildsPerJob)
		if err != nil {
			hlog.Warnf("fetch builds for job %s: %v", job.Name, err)
			continue
		}

		for i := range builds {
			obs, err := s.observationFromBuild(job.Name, &builds[i])
			if err != nil {
				hlog.Warnf("skip build of job %s: %v", job.Name, err)
				continue
			}
			result, err := s.Reconcile(ctx, obs)
			if err != nil {
				hlog.Warnf("reconcile %s #%d: %v", job.Name, *obs.BuildNumber, err)
				continue
			}
			if result.Created {
				created++
			}
		}

		s.resyncJobSummary(ctx, job)
	}
	return created, nil
}

// resyncJobSummary refreshes the latest run's status from the job-level
// ball color, outside run-level reconciliation, so job summaries reflect
// states builds never report themselves (disabled, aborted mid-queue).
func (s *Service) resyncJobSummary(ctx context.Context, job jenkins.Job) {
	latest, err := s.runs.LatestForPipeline(ctx, s.database, model.ProviderJenkins, job.Name)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			hlog.Warnf("lookup latest run for job %s: %v", job.Name, err)
		}
		return
	}
	status := JobColorStatus(job.Color)
	if status == StatusUnknown || status == latest.Status {
		return
	}
	latest.Status = status
	if err := s.runs.Save(ctx, s.database, latest); err != nil {
		hlog.Warnf("resync job summary for %s: %v", job.Name, err)
	}
}

// EnrichJenkinsObservation fills actor and timing details from the build
// details API when a webhook envelope arrives with bare fields. Enrichment
// is best-effort; the envelope observation stands on its own.
func (s *Service) EnrichJenkinsObservation(ctx context.Context, obs *Observation) {
	if s.jenkins == nil || obs == nil || obs.BuildNumber == nil {
		return
	}
	details, err := s.jenkins.BuildDetails(ctx, obs.PipelineName, *obs.BuildNumber)
	if err != nil {
		hlog.Warnf("enrich %s #%d: %v", obs.PipelineName, *obs.BuildNumber, err)
		return
	}

	if obs.TriggeredBy == "" {
		obs.TriggeredBy = s.buildActor(details)
	}
	if obs.Branch == "" {
		obs.Branch = s.defaultBranch
	}
	if obs.StartedAt == nil && details.Timestamp > 0 {
		started := EpochMillis(details.Timestamp)
		obs.StartedAt = &started
	}
	if obs.DurationSeconds == nil && details.Duration > 0 {
		secs := MillisToSeconds(details.Duration)
		obs.DurationSeconds = &secs
	}
	if details.Result != "" {
		obs.Status = NormalizeStatus(details.Result)
	}
	deriveFinishedAt(obs)
}

// JobSummaries lists all Jenkins jobs with their last build, shaped for
// the dashboard.
func (s *Service) JobSummaries(ctx context.Context) ([]JobSummary, error) {
	if s.jenkins == nil {
		return nil, ErrJenkinsDisabled
	}
	jobs, err := s.jenkins.Jobs(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summary := JobSummary{
			Provider:     model.ProviderJenkins,
			PipelineName: job.Name,
			Status:       JobColorStatus(job.Color),
			URL:          job.URL,
		}
		if last := job.LastBuild; last != nil {
			if last.Timestamp > 0 {
				started := EpochMillis(last.Timestamp).In(s.displayLoc)
				summary.StartedAt = &started
			}
			if last.Duration > 0 {
				secs := MillisToSeconds(last.Duration)
				summary.DurationSeconds = &secs
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// JobBuilds passes through recent builds of one job.
func (s *Service) JobBuilds(ctx context.Context, jobName string, limit int) ([]jenkins.Build, error) {
	if s.jenkins == nil {
		return nil, ErrJenkinsDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	return s.jenkins.Builds(ctx, jobName, limit)
}

// TriggerJenkinsBuild starts a build for the given job.
func (s *Service) TriggerJenkinsBuild(ctx context.Context, jobName string, params map[string]string) error {
	if s.jenkins == nil {
		return ErrJenkinsDisabled
	}
	return s.jenkins.TriggerBuild(ctx, jobName, params)
}

// JenkinsHealth probes provider connectivity.
func (s *Service) JenkinsHealth(ctx context.Context) (*jenkins.ServerInfo, error) {
	if s.jenkins == nil {
		return nil, ErrJenkinsDisabled
	}
	return s.jenkins.Healthy(ctx)
}
