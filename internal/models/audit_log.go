package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of every access change pushed to or
// committed for a user. It does NOT use BaseModel because audit rows are
// never updated.
type AuditLog struct {
	ID           uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	Actor        string                 `json:"actor" gorm:"type:varchar(30);not null;index"`
	Action       string                 `json:"action" gorm:"type:varchar(50);not null;index"`
	ResourceType string                 `json:"resourceType" gorm:"type:varchar(30);not null;index"`
	ResourceID   *uuid.UUID             `json:"resourceID,omitempty" gorm:"type:uuid;index"`
	Email        string                 `json:"email,omitempty" gorm:"type:varchar(255);index"`
	Details      map[string]interface{} `json:"details,omitempty" gorm:"type:jsonb;serializer:json"`
	RequestID    string                 `json:"requestID,omitempty" gorm:"type:varchar(36)"`
	CreatedAt    time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditExportMark is the position of the newest audit row already shipped
// to the bucket. Rows export in (created_at, id) order, so a batch that
// ends halfway through a timestamp resumes at the next id.
type AuditExportMark struct {
	Stream    string    `json:"stream" gorm:"type:varchar(30);primaryKey"`
	AfterAt   time.Time `json:"afterAt" gorm:"not null"`
	AfterID   uuid.UUID `json:"afterID" gorm:"type:uuid"`
	Shipped   int64     `json:"shipped" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (AuditExportMark) TableName() string {
	return "audit_export_marks"
}
