package http

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mrlokans/storesync/internal/cache"
	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/observability"
	"github.com/mrlokans/storesync/internal/tasks"
)

// SyncService starts, resumes and cancels sync jobs.
type SyncService interface {
	StartSync(ctx context.Context, rt entities.ResourceType, cfg entities.JobConfig) (*entities.SyncJob, error)
	ResumeSync(ctx context.Context, rt entities.ResourceType) (*entities.SyncJob, error)
	Cancel(ctx context.Context, jobID string) error
	ActiveJobs() map[entities.ResourceType]string
}

// JobReader reads sync jobs.
type JobReader interface {
	Get(ctx context.Context, id string) (*entities.SyncJob, error)
	List(ctx context.Context, resourceType entities.ResourceType, limit int) ([]entities.SyncJob, error)
}

// EventReader reads the batch events of a job.
type EventReader interface {
	ListForJob(ctx context.Context, jobID string, limit int) ([]entities.SyncEvent, error)
}

// CheckpointReader reads resume points.
type CheckpointReader interface {
	Get(ctx context.Context, rt entities.ResourceType) (*entities.Checkpoint, error)
}

// RecordReader pages through the normalized store.
type RecordReader interface {
	ListOrders(ctx context.Context, limit, offset int) ([]entities.Order, int64, error)
	ListProducts(ctx context.Context, limit, offset int) ([]entities.Product, int64, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Sync        SyncService
	Jobs        JobReader
	Events      EventReader
	Checkpoints CheckpointReader
	Records     RecordReader

	// Read cache; nil serves every read from the stores
	Cache *cache.Cache

	// Task queue client (optional)
	TaskClient         *tasks.Client
	EventRetentionDays int

	// Health checks by dependency name
	HealthChecks map[string]HealthCheck

	// Prometheus scrape handler (optional)
	MetricsHandler http.Handler
	HTTPMetrics    *observability.HTTPMetrics

	// Application info
	Version string

	Logger zerolog.Logger
}
