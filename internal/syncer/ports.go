package syncer

import (
	"context"
	"time"

	"github.com/mrlokans/storesync/internal/entities"
	"github.com/mrlokans/storesync/internal/persister"
	"github.com/mrlokans/storesync/internal/shopify"
	"github.com/mrlokans/storesync/internal/transform"
)

// JobStore is implemented by jobs.Repository.
type JobStore interface {
	Create(ctx context.Context, job *entities.SyncJob) error
	Get(ctx context.Context, id string) (*entities.SyncJob, error)
	Latest(ctx context.Context, resourceType entities.ResourceType) (*entities.SyncJob, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, progress, processed, failedItems int) error
	Complete(ctx context.Context, id string, completedAt time.Time) error
	Fail(ctx context.Context, id string, errorMsg string) error
	FailPending(ctx context.Context, id string, errorMsg string) error
	FailActive(ctx context.Context, errorMsg string) (int64, error)
}

// CheckpointStore is implemented by checkpoints.Repository.
type CheckpointStore interface {
	Get(ctx context.Context, resourceType entities.ResourceType) (*entities.Checkpoint, error)
	Set(ctx context.Context, cp *entities.Checkpoint) error
}

// EventLog is implemented by events.Repository.
type EventLog interface {
	Record(ctx context.Context, event *entities.SyncEvent) error
}

// Fetcher is implemented by shopify.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rt entities.ResourceType, cursor string, opts shopify.FetchOptions) (*shopify.Batch, error)
	Count(ctx context.Context, rt entities.ResourceType, opts shopify.FetchOptions) (int, error)
}

// BatchPersister is implemented by persister.Persister.
type BatchPersister interface {
	Persist(ctx context.Context, rt entities.ResourceType, outcomes []transform.Outcome) *persister.Result
}

// Dispatcher schedules Run for a created job.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}
