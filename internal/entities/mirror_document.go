package entities

import "time"

// MirrorDocument is the raw upstream record as stored in the mirror.
type MirrorDocument struct {
	ResourceType ResourceType `gorm:"primaryKey;size:20" json:"resourceType"`
	ExternalID   string       `gorm:"primaryKey;size:64" json:"externalId"`
	GlobalID     string       `gorm:"size:128" json:"globalId"`
	Payload      string       `gorm:"type:text" json:"payload"`
	SyncedAt     time.Time    `json:"syncedAt"`
}

func (MirrorDocument) TableName() string {
	return "mirror_documents"
}
