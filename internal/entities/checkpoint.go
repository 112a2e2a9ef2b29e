package entities

import "time"

// Checkpoint is the durable resume point for a resource type. A non-nil
// LastCursor always refers to a page boundary whose records are persisted.
type Checkpoint struct {
	ResourceType ResourceType `gorm:"primaryKey;size:20" json:"resourceType"`
	LastCursor   *string      `gorm:"type:text" json:"lastCursor"`
	LastEntityID *string      `gorm:"size:64" json:"lastEntityId"`
	LastSyncTime *time.Time   `json:"lastSyncTime"`
	// Watermark is the start time of the run that began the current pass. It
	// becomes LastSyncTime once the pass drains, even across resumes.
	Watermark    *time.Time   `json:"watermark,omitempty"`
	JobID        string       `gorm:"size:36" json:"jobId,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

func (Checkpoint) TableName() string {
	return "checkpoints"
}

// Cursor returns the stored cursor or an empty string.
func (c *Checkpoint) Cursor() string {
	if c == nil || c.LastCursor == nil {
		return ""
	}
	return *c.LastCursor
}
