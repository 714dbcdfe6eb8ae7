package model

import "time"

// Run providers implemented by the ingestion pipeline.
const (
	ProviderGitHub  = "github"
	ProviderJenkins = "jenkins"
)

// PipelineRun is one execution instance of a named pipeline. Runs from the
// polled provider carry a build number and are deduplicated on
// (provider, pipeline_name, build_number); webhook-only runs without a
// build number are always inserted fresh.
//
// TriggeredBy carries the actor that caused the run. It serializes as
// "commit" for wire compatibility with existing dashboards.
type PipelineRun struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Provider        string     `gorm:"column:provider;index;uniqueIndex:uk_provider_pipeline_build,priority:1" json:"provider"`
	PipelineName    string     `gorm:"column:pipeline_name;index;uniqueIndex:uk_provider_pipeline_build,priority:2" json:"pipeline_name"`
	BuildNumber     *int       `gorm:"column:build_number;uniqueIndex:uk_provider_pipeline_build,priority:3" json:"build_number,omitempty"`
	Status          string     `gorm:"column:status;index" json:"status"`
	StartedAt       *time.Time `gorm:"column:started_at;index" json:"started_at,omitempty"`
	FinishedAt      *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	DurationSeconds *float64   `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	Branch          string     `gorm:"column:branch" json:"branch,omitempty"`
	TriggeredBy     string     `gorm:"column:triggered_by" json:"commit,omitempty"`
	URL             string     `gorm:"column:url" json:"url,omitempty"`
	Logs            string     `gorm:"column:logs;type:text" json:"logs,omitempty"`
	Notified        bool       `gorm:"column:notified;default:false;index" json:"notified"`
}

// TableName overrides gorm to use the pipeline_runs table.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
