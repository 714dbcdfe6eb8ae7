package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/db"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrLogsNotArchived = errors.New("no archived logs for run")
)

// ListRuns returns filtered runs newest-first with the total match count.
func (s *Service) ListRuns(ctx context.Context, filter db.RunFilter) ([]model.PipelineRun, int64, error) {
	return s.runs.List(ctx, s.database, filter)
}

// GetRun fetches one run by id.
func (s *Service) GetRun(ctx context.Context, id uint) (*model.PipelineRun, error) {
	run, err := s.runs.GetByID(ctx, s.database, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// DeleteRun removes a run by id. Administrative operation; run history is
// never deleted automatically.
func (s *Service) DeleteRun(ctx context.Context, id uint) error {
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	return s.runs.Delete(ctx, s.database, id)
}

// Metrics aggregates reliability figures, optionally windowed by time.
func (s *Service) Metrics(ctx context.Context, timeFrom, timeTo *time.Time) (*db.RunMetrics, error) {
	return s.runs.Metrics(ctx, s.database, timeFrom, timeTo)
}

// RecentFailures lists the latest failed runs for the notifications panel.
func (s *Service) RecentFailures(ctx context.Context, limit int, since *time.Time) ([]model.PipelineRun, error) {
	return s.runs.RecentFailures(ctx, s.database, limit, since)
}

// RunLogs reads the archived console log of a run. Falls back to the
// inline logs column when no archive backend is configured.
func (s *Service) RunLogs(ctx context.Context, id uint) (string, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return "", err
	}

	if s.archive == nil {
		if run.Logs == "" {
			return "", ErrLogsNotArchived
		}
		return run.Logs, nil
	}

	reader, err := s.archive.Get(ctx, archiveKey(run))
	if err != nil {
		if run.Logs != "" {
			return run.Logs, nil
		}
		return "", fmt.Errorf("%w: %v", ErrLogsNotArchived, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read archived logs: %w", err)
	}
	return string(content), nil
}
