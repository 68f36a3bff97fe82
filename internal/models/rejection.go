package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// RejectionRecord is an append-only audit entry written when a reviewer
// rejects a task under review. Records are never edited or deleted; Seq
// preserves insertion order for timestamp ties.
type RejectionRecord struct {
	Seq          int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	ID           uuid.UUID `json:"id" gorm:"type:uuid;uniqueIndex;not null"`
	TaskID       uuid.UUID `json:"task_id" gorm:"type:uuid;index;not null"`
	ReviewerID   uuid.UUID `json:"reviewer_id" gorm:"type:uuid;not null"`
	ReviewerName string    `json:"reviewer_name"`
	Reason       string    `json:"reason" gorm:"not null"`
	Timestamp    time.Time `json:"timestamp" gorm:"not null"`
}
