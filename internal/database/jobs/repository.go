// Package jobs provides database operations for sync job tracking.
//
// Transitions are guarded in SQL so a job moves pending → processing →
// completed|failed exactly once, and progress never decreases.
package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/storesync/internal/entities"
)

var (
	// ErrNotFound is returned when no job has the requested id.
	ErrNotFound = errors.New("sync job not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the job's current status.
	ErrInvalidTransition = errors.New("invalid sync job status transition")
)

var activeStatuses = []entities.SyncStatus{entities.SyncStatusPending, entities.SyncStatusProcessing}

// Repository handles all sync job database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new jobs repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create stores a new job. Status defaults to pending.
func (r *Repository) Create(ctx context.Context, job *entities.SyncJob) error {
	if job.Status == "" {
		job.Status = entities.SyncStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	return r.db.WithContext(ctx).Create(job).Error
}

// Get retrieves a job by id.
func (r *Repository) Get(ctx context.Context, id string) (*entities.SyncJob, error) {
	var job entities.SyncJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the most recent jobs, optionally filtered by resource type.
func (r *Repository) List(ctx context.Context, resourceType entities.ResourceType, limit int) ([]entities.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Model(&entities.SyncJob{})
	if resourceType != "" {
		query = query.Where("resource_type = ?", resourceType)
	}

	var jobs []entities.SyncJob
	err := query.Order("created_at DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// Latest returns the newest job for a resource type.
func (r *Repository) Latest(ctx context.Context, resourceType entities.ResourceType) (*entities.SyncJob, error) {
	var job entities.SyncJob
	err := r.db.WithContext(ctx).
		Where("resource_type = ?", resourceType).
		Order("created_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing moves a pending job to processing.
func (r *Repository) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	return r.transition(ctx, id, []entities.SyncStatus{entities.SyncStatusPending}, map[string]any{
		"status":     entities.SyncStatusProcessing,
		"started_at": startedAt,
		"updated_at": time.Now().UTC(),
	})
}

// UpdateProgress records loop progress. The stored progress only moves forward.
func (r *Repository) UpdateProgress(ctx context.Context, id string, progress, processed, failedItems int) error {
	return r.transition(ctx, id, []entities.SyncStatus{entities.SyncStatusProcessing}, map[string]any{
		"progress":     gorm.Expr("MAX(progress, ?)", clampProgress(progress)),
		"processed":    processed,
		"failed_items": failedItems,
		"updated_at":   time.Now().UTC(),
	})
}

// Complete marks a processing job as completed with full progress.
func (r *Repository) Complete(ctx context.Context, id string, completedAt time.Time) error {
	return r.transition(ctx, id, []entities.SyncStatus{entities.SyncStatusProcessing}, map[string]any{
		"status":       entities.SyncStatusCompleted,
		"progress":     100,
		"completed_at": completedAt,
		"updated_at":   time.Now().UTC(),
	})
}

// Fail marks a pending or processing job as failed with the given message.
func (r *Repository) Fail(ctx context.Context, id string, errorMsg string) error {
	if errorMsg == "" {
		errorMsg = "sync failed"
	}
	return r.transition(ctx, id, activeStatuses, map[string]any{
		"status":     entities.SyncStatusFailed,
		"error":      errorMsg,
		"updated_at": time.Now().UTC(),
	})
}

// FailPending fails a job that no loop has picked up yet. It returns
// ErrInvalidTransition once the job is processing.
func (r *Repository) FailPending(ctx context.Context, id string, errorMsg string) error {
	return r.transition(ctx, id, []entities.SyncStatus{entities.SyncStatusPending}, map[string]any{
		"status":     entities.SyncStatusFailed,
		"error":      errorMsg,
		"updated_at": time.Now().UTC(),
	})
}

// FailActive fails all non-terminal jobs, used on startup to close out runs
// interrupted by a previous process exit.
func (r *Repository) FailActive(ctx context.Context, errorMsg string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.SyncJob{}).
		Where("status IN ?", activeStatuses).
		Updates(map[string]any{
			"status":     entities.SyncStatusFailed,
			"error":      errorMsg,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *Repository) transition(ctx context.Context, id string, from []entities.SyncStatus, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&entities.SyncJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
