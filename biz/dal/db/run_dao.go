package db

import (
	"context"
	"errors"
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"gorm.io/gorm"
)

// RunDAO wraps CRUD and aggregate queries for pipeline runs.
type RunDAO struct{}

func NewRunDAO() *RunDAO { return &RunDAO{} }

// RunFilter narrows list queries. Query matches pipeline name, branch,
// actor, provider and status as a substring. Time bounds match runs whose
// start or finish instant falls inside the window.
type RunFilter struct {
	Status   string
	Query    string
	TimeFrom *time.Time
	TimeTo   *time.Time
	Limit    int
	Offset   int
}

// RunMetrics aggregates reliability figures over a (possibly windowed)
// slice of run history.
type RunMetrics struct {
	TotalRuns               int64    `json:"total_runs"`
	SuccessCount            int64    `json:"success_count"`
	FailureCount            int64    `json:"failure_count"`
	RunningCount            int64    `json:"running_count"`
	SuccessRate             float64  `json:"success_rate"`
	AverageBuildTimeSeconds *float64 `json:"average_build_time_seconds"`
	LastBuildStatus         *string  `json:"last_build_status"`
}

// Create persists a new run record.
func (dao *RunDAO) Create(ctx context.Context, db *gorm.DB, run *model.PipelineRun) error {
	if run == nil {
		return errors.New("run must not be nil")
	}
	if run.Provider == "" {
		return errors.New("provider is required")
	}
	if run.PipelineName == "" {
		return errors.New("pipeline_name is required")
	}
	return db.WithContext(ctx).Create(run).Error
}

// Save writes back every field of an existing record, including zero values
// such as a cleared notified flag.
func (dao *RunDAO) Save(ctx context.Context, db *gorm.DB, run *model.PipelineRun) error {
	if run == nil || run.ID == 0 {
		return errors.New("run must be persisted before save")
	}
	return db.WithContext(ctx).Save(run).Error
}

// GetByID fetches a single run.
func (dao *RunDAO) GetByID(ctx context.Context, db *gorm.DB, id uint) (*model.PipelineRun, error) {
	var run model.PipelineRun
	if err := db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetByIdentity fetches the run matching the dedup key
// (provider, pipeline_name, build_number).
func (dao *RunDAO) GetByIdentity(ctx context.Context, db *gorm.DB, provider, pipelineName string, buildNumber int) (*model.PipelineRun, error) {
	var run model.PipelineRun
	if err := db.WithContext(ctx).
		Where("provider = ? AND pipeline_name = ? AND build_number = ?", provider, pipelineName, buildNumber).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestForPipeline returns the most recently started run of a pipeline.
func (dao *RunDAO) LatestForPipeline(ctx context.Context, db *gorm.DB, provider, pipelineName string) (*model.PipelineRun, error) {
	var run model.PipelineRun
	if err := db.WithContext(ctx).
		Where("provider = ? AND pipeline_name = ?", provider, pipelineName).
		Order("started_at DESC").
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns filtered runs newest-first along with the total match count.
func (dao *RunDAO) List(ctx context.Context, db *gorm.DB, f RunFilter) ([]model.PipelineRun, int64, error) {
	tx := applyFilter(db.WithContext(ctx).Model(&model.PipelineRun{}), f)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var runs []model.PipelineRun
	if err := tx.Order("id DESC").Limit(limit).Offset(f.Offset).Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// Delete removes a run by id.
func (dao *RunDAO) Delete(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Delete(&model.PipelineRun{}, id).Error
}

// RecentFailures returns the latest failed runs, newest start first,
// excluding polled-provider rows that never resolved a build number.
func (dao *RunDAO) RecentFailures(ctx context.Context, db *gorm.DB, limit int, since *time.Time) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 10
	}
	tx := db.WithContext(ctx).
		Where("status = ?", "failure").
		Where("provider <> ? OR build_number IS NOT NULL", model.ProviderJenkins)
	if since != nil {
		tx = tx.Where("(started_at IS NOT NULL AND started_at >= ?) OR (finished_at IS NOT NULL AND finished_at >= ?)", *since, *since)
	}

	var runs []model.PipelineRun
	if err := tx.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Metrics aggregates counts, success rate and average duration over the
// given time window (nil bounds mean unbounded).
func (dao *RunDAO) Metrics(ctx context.Context, db *gorm.DB, timeFrom, timeTo *time.Time) (*RunMetrics, error) {
	window := func() *gorm.DB {
		return applyTimeWindow(db.WithContext(ctx).Model(&model.PipelineRun{}), timeFrom, timeTo)
	}

	metrics := &RunMetrics{}
	if err := window().Count(&metrics.TotalRuns).Error; err != nil {
		return nil, err
	}
	if err := window().Where("status = ?", "success").Count(&metrics.SuccessCount).Error; err != nil {
		return nil, err
	}
	if err := window().Where("status = ?", "failure").Count(&metrics.FailureCount).Error; err != nil {
		return nil, err
	}
	if err := window().Where("status = ?", "running").Count(&metrics.RunningCount).Error; err != nil {
		return nil, err
	}

	var avg *float64
	if err := window().Where("duration_seconds IS NOT NULL").
		Select("AVG(duration_seconds)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	metrics.AverageBuildTimeSeconds = avg

	var last model.PipelineRun
	err := window().Order("id DESC").First(&last).Error
	switch {
	case err == nil:
		metrics.LastBuildStatus = &last.Status
	case errors.Is(err, gorm.ErrRecordNotFound):
		// empty window
	default:
		return nil, err
	}

	if metrics.TotalRuns > 0 {
		rate := float64(metrics.SuccessCount) / float64(metrics.TotalRuns) * 100
		metrics.SuccessRate = roundTo2(rate)
	}
	return metrics, nil
}

func applyFilter(tx *gorm.DB, f RunFilter) *gorm.DB {
	if f.Status != "" {
		tx = tx.Where("status = ?", f.Status)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		tx = tx.Where(
			"pipeline_name LIKE ? OR branch LIKE ? OR triggered_by LIKE ? OR provider LIKE ? OR status LIKE ?",
			like, like, like, like, like,
		)
	}
	return applyTimeWindow(tx, f.TimeFrom, f.TimeTo)
}

func applyTimeWindow(tx *gorm.DB, timeFrom, timeTo *time.Time) *gorm.DB {
	if timeFrom != nil {
		tx = tx.Where("(started_at IS NOT NULL AND started_at >= ?) OR (finished_at IS NOT NULL AND finished_at >= ?)", *timeFrom, *timeFrom)
	}
	if timeTo != nil {
		tx = tx.Where("(started_at IS NOT NULL AND started_at <= ?) OR (finished_at IS NOT NULL AND finished_at <= ?)", *timeTo, *timeTo)
	}
	return tx
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
