// Package records is the normalized store: orders and products upserted by
// external id, so re-applying a batch overwrites rather than duplicates.
package records

import (
	"context"
	"fmt"

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

// Upsert inserts or fully replaces one normalized record.
func (r *Repository) Upsert(ctx context.Context, record entities.NormalizedRecord) error {
	if record == nil || record.ExternalKey() == "" {
		return fmt.Errorf("upsert: record without external id")
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", record.Resource(), record.ExternalKey(), err)
	}
	return nil
}

// ListOrders returns a page of orders ordered by most recently updated.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int) ([]entities.Order, int64, error) {
	var orders []entities.Order
	total, err := r.page(ctx, &entities.Order{}, &orders, limit, offset)
	return orders, total, err
}

// ListProducts returns a page of products ordered by most recently updated.
func (r *Repository) ListProducts(ctx context.Context, limit, offset int) ([]entities.Product, int64, error) {
	var products []entities.Product
	total, err := r.page(ctx, &entities.Product{}, &products, limit, offset)
	return products, total, err
}

// Count returns the number of stored records of a resource type.
func (r *Repository) Count(ctx context.Context, resourceType entities.ResourceType) (int64, error) {
	var model any
	switch resourceType {
	case entities.ResourceOrders:
		model = &entities.Order{}
	case entities.ResourceProducts:
		model = &entities.Product{}
	default:
		return 0, fmt.Errorf("unknown resource type %q", resourceType)
	}

	var total int64
	err := r.db.WithContext(ctx).Model(model).Count(&total).Error
	return total, err
}

func (r *Repository) page(ctx context.Context, model, dest any, limit, offset int) (int64, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	query := r.db.WithContext(ctx).Model(model)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}

	err := r.db.WithContext(ctx).Model(model).
		Order("updated_at DESC, external_id ASC").
		Limit(limit).Offset(offset).
		Find(dest).Error
	return total, err
}
