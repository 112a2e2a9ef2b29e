package syncer

import (
	"errors"
	"fmt"

	"github.com/mrlokans/storesync/internal/entities"
)

var (
	// ErrSyncInProgress is returned when a resource type already has an active job.
	ErrSyncInProgress = errors.New("a sync is already in progress for this resource type")

	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("sync job not found")

	// ErrJobFinished is returned when cancelling a job that already terminated.
	ErrJobFinished = errors.New("sync job already finished")

	// ErrCancelled ends a loop after a cancel request.
	ErrCancelled = errors.New("sync cancelled")

	// ErrInvalidRequest wraps bad resource types and configs.
	ErrInvalidRequest = errors.New("invalid sync request")
)

// SyncInProgressError carries the id of the job holding the resource type.
type SyncInProgressError struct {
	ResourceType entities.ResourceType
	JobID        string
}

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("sync for %s already in progress (job %s)", e.ResourceType, e.JobID)
}

func (e *SyncInProgressError) Is(target error) bool {
	return target == ErrSyncInProgress
}

// CheckpointWriteError is fatal: the batch is persisted but the resume point
// could not be advanced.
type CheckpointWriteError struct {
	ResourceType entities.ResourceType
	Cursor       string
	Err          error
}

func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("write %s checkpoint: %v", e.ResourceType, e.Err)
}

func (e *CheckpointWriteError) Unwrap() error {
	return e.Err
}
