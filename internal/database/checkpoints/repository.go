// Package checkpoints stores the per-resource resume point of the sync loop.
//
// Set returns only after the row is committed; the orchestrator relies on
// that before it fetches the next page.
package checkpoints

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/storesync/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the checkpoint for a resource type. A resource that was never
// synchronized yields an empty checkpoint rather than an error.
func (r *Repository) Get(ctx context.Context, resourceType entities.ResourceType) (*entities.Checkpoint, error) {
	var cp entities.Checkpoint
	err := r.db.WithContext(ctx).Where("resource_type = ?", resourceType).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &entities.Checkpoint{ResourceType: resourceType}, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Set upserts the checkpoint row.
func (r *Repository) Set(ctx context.Context, cp *entities.Checkpoint) error {
	if cp.ResourceType == "" {
		return errors.New("checkpoint resource type is required")
	}
	cp.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_cursor", "last_entity_id", "last_sync_time", "watermark", "job_id", "updated_at"}),
	}).Create(cp).Error
}

// Reset removes the checkpoint so the next resume starts from the first page.
func (r *Repository) Reset(ctx context.Context, resourceType entities.ResourceType) error {
	return r.db.WithContext(ctx).Where("resource_type = ?", resourceType).Delete(&entities.Checkpoint{}).Error
}

// List returns all stored checkpoints.
func (r *Repository) List(ctx context.Context) ([]entities.Checkpoint, error) {
	var cps []entities.Checkpoint
	err := r.db.WithContext(ctx).Order("resource_type ASC").Find(&cps).Error
	return cps, err
}
