package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasklife/internal/models"
	"tasklife/internal/repositories"

	"github.com/gofrs/uuid"
)

// NextOccurrence computes the due date of the occurrence at
// occurrenceIndex, following fromDate under the rule. It returns nil once
// the series has ended; that is a normal outcome, not an error.
func NextOccurrence(rule models.RecurrenceRule, fromDate time.Time, occurrenceIndex int) *time.Time {
	if rule.EndCondition == models.EndAfterCount && rule.EndCount != nil && occurrenceIndex >= *rule.EndCount {
		return nil
	}

	var next time.Time
	switch rule.Frequency {
	case models.FrequencyDaily:
		next = fromDate.AddDate(0, 0, rule.Interval)
	case models.FrequencyWeekly:
		if len(rule.DaysOfWeek) > 0 {
			next = nextMatchingWeekday(fromDate, rule.DaysOfWeek)
		} else {
			next = fromDate.AddDate(0, 0, 7*rule.Interval)
		}
	case models.FrequencyMonthly:
		next = addMonthsClamped(fromDate, rule.Interval)
	default:
		return nil
	}

	if rule.EndCondition == models.EndUntilDate && rule.EndDate != nil && next.After(*rule.EndDate) {
		return nil
	}
	return &next
}

// nextMatchingWeekday returns the earliest date strictly after from whose
// weekday is in days.
func nextMatchingWeekday(from time.Time, days []time.Weekday) time.Time {
	allowed := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		allowed[d] = true
	}
	next := from.AddDate(0, 0, 1)
	for i := 0; i < 6; i++ {
		if allowed[next.Weekday()] {
			return next
		}
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// addMonthsClamped shifts t by the given number of months, clamping the day
// of month to the last valid day of the target month. time.AddDate would
// normalize Jan 31 + 1 month into Mar 2/3 instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RecurrenceEngine materializes series occurrences lazily: occurrence 0 at
// series creation, each later occurrence only once its predecessor reaches
// Reviewed. Cancelling a series therefore never leaves orphaned future
// tasks.
type RecurrenceEngine struct {
	store repositories.TaskStore
	newID func() uuid.UUID
	now   func() time.Time
}

func NewRecurrenceEngine(store repositories.TaskStore) *RecurrenceEngine {
	return &RecurrenceEngine{
		store: store,
		newID: func() uuid.UUID { return uuid.Must(uuid.NewV4()) },
		now:   time.Now,
	}
}

// MaterializeSeries persists the series rule and occurrence 0. Descriptive
// fields are copied from the template; the due date is the rule's anchor.
func (e *RecurrenceEngine) MaterializeSeries(ctx context.Context, template models.Task, rule models.RecurrenceRule) (models.Task, error) {
	if err := rule.Validate(); err != nil {
		return models.Task{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	series := models.TaskSeries{
		ID:        e.newID(),
		Rule:      rule,
		CreatedAt: e.now(),
	}
	if err := e.store.CreateSeries(ctx, &series); err != nil {
		return models.Task{}, fmt.Errorf("create series: %w", err)
	}

	first := template
	first.ID = e.newID()
	first.SeriesID = &series.ID
	zero := 0
	first.OccurrenceIndex = &zero
	anchor := rule.AnchorDueDate
	first.DueDate = &anchor
	first.Status = models.StatusAssigned
	first.Version = 1

	if err := e.store.Create(ctx, &first); err != nil {
		return models.Task{}, fmt.Errorf("create first occurrence: %w", err)
	}
	return first, nil
}

// AdvanceSeries materializes the occurrence after prior, which has just
// reached Reviewed. It returns (nil, nil) when the series has ended or when
// another trigger already created the occurrence: the unique
// (series, occurrence index) constraint at the store makes duplicate
// triggers a no-op rather than a second task.
func (e *RecurrenceEngine) AdvanceSeries(ctx context.Context, prior *models.Task) (*models.Task, error) {
	if !prior.InSeries() {
		return nil, nil
	}

	series, err := e.store.GetSeries(ctx, *prior.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("load series %s: %w", prior.SeriesID, err)
	}

	from := series.Rule.AnchorDueDate
	if prior.DueDate != nil {
		from = *prior.DueDate
	}
	nextIndex := *prior.OccurrenceIndex + 1
	nextDue := NextOccurrence(series.Rule, from, nextIndex)
	if nextDue == nil {
		return nil, nil
	}

	next := *prior
	next.ID = e.newID()
	next.OccurrenceIndex = &nextIndex
	next.DueDate = nextDue
	next.Status = models.StatusAssigned
	next.Version = 1
	next.CreatedAt = time.Time{}
	next.UpdatedAt = time.Time{}
	next.Assignment.LastStatusChangeAt = e.now()

	if err := e.store.Create(ctx, &next); err != nil {
		if errors.Is(err, repositories.ErrDuplicateOccurrence) {
			return nil, nil
		}
		return nil, fmt.Errorf("create occurrence %d: %w", nextIndex, err)
	}
	return &next, nil
}
