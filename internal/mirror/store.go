// Package mirror keeps the raw upstream documents in a database of their own,
// separate from the normalized store.
package mirror

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/storesync/internal/database"
	"github.com/mrlokans/storesync/internal/entities"
)

const writeChunkSize = 100

type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the mirror database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.OpenGorm(path, database.Options{}, log)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	return NewStore(db, log)
}

// NewStore wraps an existing connection and migrates the mirror schema.
func NewStore(db *gorm.DB, log zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&entities.MirrorDocument{}); err != nil {
		return nil, fmt.Errorf("migrate mirror: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// WriteBatch writes all documents in one transaction. Either every document
// is stored or none is.
func (s *Store) WriteBatch(ctx context.Context, docs []*entities.MirrorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_type"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"global_id", "payload", "synced_at"}),
		}).CreateInBatches(docs, writeChunkSize).Error
		if err != nil {
			return fmt.Errorf("write %d mirror documents: %w", len(docs), err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, resourceType entities.ResourceType, externalID string) (*entities.MirrorDocument, error) {
	var doc entities.MirrorDocument
	err := s.db.WithContext(ctx).
		Where("resource_type = ? AND external_id = ?", resourceType, externalID).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) Count(ctx context.Context, resourceType entities.ResourceType) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&entities.MirrorDocument{}).
		Where("resource_type = ?", resourceType).
		Count(&n).Error
	return n, err
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
