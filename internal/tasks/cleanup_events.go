package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog"
)

// SyncEventCleaner provides the ability to delete old sync events.
type SyncEventCleaner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupSyncEventsTask removes batch events older than the retention period.
type CleanupSyncEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for event cleanup tasks.
func (t CleanupSyncEventsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_sync_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupSyncEventsProcessor creates a processor function for CleanupSyncEventsTask.
func CleanupSyncEventsProcessor(cleaner SyncEventCleaner, log zerolog.Logger) backlite.QueueProcessor[CleanupSyncEventsTask] {
	return func(ctx context.Context, task CleanupSyncEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("sync event cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 30
		}
		cutoff := time.Now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)

		deleted, err := cleaner.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup sync events: %w", err)
		}

		log.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("cleaned up sync events")
		return nil
	}
}

// NewCleanupSyncEventsQueue creates a backlite queue for event cleanup tasks.
func NewCleanupSyncEventsQueue(cleaner SyncEventCleaner, log zerolog.Logger) backlite.Queue {
	return backlite.NewQueue(CleanupSyncEventsProcessor(cleaner, log))
}
