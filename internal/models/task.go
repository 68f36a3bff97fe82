package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusAssigned      TaskStatus = "assigned"
	StatusInProgress    TaskStatus = "in_progress"
	StatusPendingReview TaskStatus = "pending_review"
	StatusReviewed      TaskStatus = "reviewed"
	StatusReopened      TaskStatus = "reopened"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusPendingReview, StatusReviewed, StatusReopened:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusReviewed
}

// AssignmentMutable reports whether assignment fields may still change.
func (s TaskStatus) AssignmentMutable() bool {
	return s == StatusAssigned || s == StatusReopened
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Assignment struct {
	AssigneeID         uuid.UUID  `json:"assignee_id" gorm:"type:uuid;not null"`
	AssigneeName       string     `json:"assignee_name"`
	ReviewerID         *uuid.UUID `json:"reviewer_id,omitempty" gorm:"type:uuid"`
	ReviewerName       string     `json:"reviewer_name,omitempty"`
	AssignedAt         time.Time  `json:"assigned_at"`
	LastStatusChangeAt time.Time  `json:"last_status_change_at"`
}

type Task struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string       `json:"title" gorm:"not null"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority" gorm:"not null;default:'medium'"`
	Category    string       `json:"category"`
	Tags        []string     `json:"tags" gorm:"serializer:json"`
	GroupID     *uuid.UUID   `json:"group_id,omitempty" gorm:"type:uuid;index"`
	CreatorID   uuid.UUID    `json:"creator_id" gorm:"type:uuid;not null"`
	Status      TaskStatus   `json:"status" gorm:"not null;default:'assigned'"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Assignment  Assignment   `json:"assignment" gorm:"embedded"`

	// SeriesID and OccurrenceIndex are set only for recurring occurrences.
	// The unique index is the idempotency guard for series advancement.
	SeriesID        *uuid.UUID `json:"series_id,omitempty" gorm:"type:uuid;uniqueIndex:idx_series_occurrence"`
	OccurrenceIndex *int       `json:"occurrence_index,omitempty" gorm:"uniqueIndex:idx_series_occurrence"`

	Version   int64          `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (t *Task) IsAssignee(userID uuid.UUID) bool {
	return t.Assignment.AssigneeID == userID
}

func (t *Task) IsReviewer(userID uuid.UUID) bool {
	return t.Assignment.ReviewerID != nil && *t.Assignment.ReviewerID == userID
}

func (t *Task) InSeries() bool {
	return t.SeriesID != nil && t.OccurrenceIndex != nil
}
