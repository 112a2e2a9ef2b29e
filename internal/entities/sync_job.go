package entities

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncJob is one run of the sync loop for a single resource type.
type SyncJob struct {
	ID           string       `gorm:"primaryKey;size:36" json:"id"`
	ResourceType ResourceType `gorm:"size:20;index" json:"resourceType"`
	Status       SyncStatus   `gorm:"size:20;index" json:"status"`
	Progress     int          `json:"progress"`
	Processed    int          `json:"processed"`
	FailedItems  int          `json:"failedItems"`
	Resumed      bool         `json:"resumed"`
	Error        string       `gorm:"type:text" json:"error,omitempty"`
	Config       JobConfig    `gorm:"type:text" json:"config"`
	CreatedAt    time.Time    `gorm:"index" json:"createdAt"`
	StartedAt    *time.Time   `json:"startedAt,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}

// JobConfig holds the optional per-job knobs. It is stored as a JSON column.
type JobConfig struct {
	BatchSize      int        `json:"batchSize,omitempty"`
	UpdatedAfter   *time.Time `json:"updatedAfter,omitempty"`
	UpdatedBefore  *time.Time `json:"updatedBefore,omitempty"`
	Incremental    bool       `json:"incremental,omitempty"`
	ExactProgress  bool       `json:"exactProgress,omitempty"`
	EstimatedTotal int        `json:"estimatedTotal,omitempty"`
}

const (
	DefaultBatchSize = 50
	MaxBatchSize     = 250
)

// EffectiveBatchSize clamps BatchSize to the range accepted upstream.
func (c JobConfig) EffectiveBatchSize() int {
	switch {
	case c.BatchSize <= 0:
		return DefaultBatchSize
	case c.BatchSize > MaxBatchSize:
		return MaxBatchSize
	}
	return c.BatchSize
}

// Validate rejects configs that can never produce a sensible query.
func (c JobConfig) Validate() error {
	if c.BatchSize < 0 {
		return errors.New("batchSize must not be negative")
	}
	if c.EstimatedTotal < 0 {
		return errors.New("estimatedTotal must not be negative")
	}
	if c.UpdatedAfter != nil && c.UpdatedBefore != nil && !c.UpdatedAfter.Before(*c.UpdatedBefore) {
		return errors.New("updatedAfter must be before updatedBefore")
	}
	return nil
}

func (c JobConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *JobConfig) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*c = JobConfig{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for JobConfig")
	}
	if len(data) == 0 {
		*c = JobConfig{}
		return nil
	}
	return json.Unmarshal(data, c)
}
