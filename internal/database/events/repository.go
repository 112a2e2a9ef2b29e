// Package events keeps the per-batch history of every sync job.
package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/storesync/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Record saves a batch event.
func (r *Repository) Record(ctx context.Context, event *entities.SyncEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Error) > 500 {
		event.Error = event.Error[:497] + "..."
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// ListForJob returns a job's events in page order.
func (r *Repository) ListForJob(ctx context.Context, jobID string, limit int) ([]entities.SyncEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	var events []entities.SyncEvent
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("page ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// DeleteOlderThan removes events created before the cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&entities.SyncEvent{})
	return result.RowsAffected, result.Error
}
