package db

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/biz/dal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Reduce log noise in tests
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// An in-memory database exists per connection; keep the pool at one so
	// every goroutine sees the same database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.PipelineRun{}); err != nil {
		t.Fatalf("Failed to migrate tables: %v", err)
	}

	return db
}

// CleanupTestDB closes the database connection.
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("Warning: Failed to get underlying DB: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		t.Logf("Warning: Failed to close DB: %v", err)
	}
}

// CreateTestRun inserts a run with the given identity and status.
func CreateTestRun(t *testing.T, db *gorm.DB, provider, pipeline string, buildNumber *int, status string) *model.PipelineRun {
	t.Helper()
	dao := NewRunDAO()
	started := time.Now().UTC()
	run := &model.PipelineRun{
		Provider:     provider,
		PipelineName: pipeline,
		BuildNumber:  buildNumber,
		Status:       status,
		StartedAt:    &started,
		Branch:       "main",
	}
	if err := dao.Create(context.Background(), db, run); err != nil {
		t.Fatalf("Failed to create test run: %v", err)
	}
	return run
}

// IntPtr is a literal helper for optional build numbers.
func IntPtr(v int) *int { return &v }
