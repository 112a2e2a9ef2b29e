package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
)

// SyncRunner executes one sync job; syncer.Orchestrator satisfies it.
type SyncRunner interface {
	Run(ctx context.Context, jobID string) error
}

// SyncRunTask runs a created sync job on a queue worker.
type SyncRunTask struct {
	JobID string `json:"job_id"`
}

// Config returns the queue configuration for sync runs. A failed run is not
// retried by the queue: recovery goes through the checkpoint.
func (t SyncRunTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_run",
		MaxAttempts: 1,
		Backoff:     time.Minute,
		Timeout:     2 * time.Hour,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncRunProcessor creates a processor function for SyncRunTask.
func SyncRunProcessor(runner SyncRunner) backlite.QueueProcessor[SyncRunTask] {
	return func(ctx context.Context, task SyncRunTask) error {
		if runner == nil {
			return fmt.Errorf("sync runner not configured")
		}
		if err := runner.Run(ctx, task.JobID); err != nil {
			return fmt.Errorf("sync job %s: %w", task.JobID, err)
		}
		return nil
	}
}

// NewSyncRunQueue creates a backlite queue for sync runs.
func NewSyncRunQueue(runner SyncRunner) backlite.Queue {
	return backlite.NewQueue(SyncRunProcessor(runner))
}

// QueueDispatcher enqueues sync runs as durable tasks.
type QueueDispatcher struct {
	client *Client
}

func NewQueueDispatcher(client *Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

func (d *QueueDispatcher) Dispatch(_ context.Context, jobID string) error {
	ids, err := d.client.Add(SyncRunTask{JobID: jobID}).Save()
	if err != nil {
		return fmt.Errorf("enqueue sync run: %w", err)
	}
	d.client.log.Debug().Str("job_id", jobID).Strs("task_ids", ids).Msg("sync run enqueued")
	return nil
}
