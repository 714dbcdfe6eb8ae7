package storage

import (
	"fmt"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/config"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/storage/local"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/storage/s3"
)

// New creates a log archive backend based on configuration. Returns
// nil, nil when archiving is disabled.
func New(cfg config.ArchiveConfig) (Archive, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Type {
	case "", "local":
		basePath := cfg.Local.BasePath
		if basePath == "" {
			basePath = "data/logs"
		}
		return local.New(basePath)

	case "s3":
		return s3.New(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})

	default:
		return nil, fmt.Errorf("unsupported archive type: %s", cfg.Type)
	}
}
