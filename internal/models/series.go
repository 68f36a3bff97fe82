package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

type EndCondition string

const (
	EndNever      EndCondition = "never"
	EndAfterCount EndCondition = "after_count"
	EndUntilDate  EndCondition = "until_date"
)

type RecurrenceRule struct {
	Frequency     Frequency      `json:"frequency" gorm:"not null"`
	Interval      int            `json:"interval" gorm:"not null;default:1"`
	DaysOfWeek    []time.Weekday `json:"days_of_week,omitempty" gorm:"serializer:json"`
	EndCondition  EndCondition   `json:"end_condition" gorm:"not null;default:'never'"`
	EndCount      *int           `json:"end_count,omitempty"`
	EndDate       *time.Time     `json:"end_date,omitempty"`
	AnchorDueDate time.Time      `json:"anchor_due_date" gorm:"not null"`
}

func (r RecurrenceRule) Validate() error {
	if !r.Frequency.Valid() {
		return ErrInvalidRule("unknown frequency")
	}
	if r.Interval < 1 {
		return ErrInvalidRule("interval must be positive")
	}
	switch r.EndCondition {
	case EndNever:
	case EndAfterCount:
		if r.EndCount == nil || *r.EndCount < 1 {
			return ErrInvalidRule("after_count requires a positive count")
		}
	case EndUntilDate:
		if r.EndDate == nil {
			return ErrInvalidRule("until_date requires an end date")
		}
	default:
		return ErrInvalidRule("unknown end condition")
	}
	return nil
}

type ErrInvalidRule string

func (e ErrInvalidRule) Error() string { return "invalid recurrence rule: " + string(e) }

// TaskSeries persists the rule shared by every occurrence of a series.
type TaskSeries struct {
	ID        uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	Rule      RecurrenceRule `json:"rule" gorm:"embedded;embeddedPrefix:rule_"`
	CreatedAt time.Time      `json:"created_at"`
}
