package entities

import "time"

type SyncEventStatus string

const (
	SyncEventSuccess SyncEventStatus = "success"
	SyncEventFailed  SyncEventStatus = "failed"
)

// SyncEvent records the outcome of one batch of a job.
type SyncEvent struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	JobID              string          `gorm:"size:36;index" json:"jobId"`
	ResourceType       ResourceType    `gorm:"size:20" json:"resourceType"`
	Page               int             `json:"page"`
	Cursor             string          `gorm:"type:text" json:"cursor,omitempty"`
	Items              int             `json:"items"`
	Persisted          int             `json:"persisted"`
	TransformFailures  int             `json:"transformFailures"`
	NormalizedFailures int             `json:"normalizedFailures"`
	MirrorFailures     int             `json:"mirrorFailures"`
	Status             SyncEventStatus `gorm:"size:20" json:"status"`
	Error              string          `gorm:"size:500" json:"error,omitempty"`
	CreatedAt          time.Time       `gorm:"index" json:"createdAt"`
}

func (SyncEvent) TableName() string {
	return "sync_events"
}
