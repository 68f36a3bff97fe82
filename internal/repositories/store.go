package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tasklife/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrSeriesNotFound = errors.New("series not found")
	// ErrVersionConflict means a version-guarded update matched no row
	// because another writer got there first.
	ErrVersionConflict = errors.New("task version conflict")
	// ErrDuplicateOccurrence means a task for this (series, occurrence
	// index) pair already exists. Callers treat it as an idempotent no-op.
	ErrDuplicateOccurrence = errors.New("series occurrence already exists")
	// ErrStoreUnavailable means the store stayed unreachable after the
	// bounded retries were exhausted.
	ErrStoreUnavailable = errors.New("store unavailable")
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
)

type TaskChange struct {
	Kind ChangeKind
	Task models.Task
}

// SubscriptionFilter narrows a subscription to one task or one group. Both
// nil means every change.
type SubscriptionFilter struct {
	TaskID  *uuid.UUID
	GroupID *uuid.UUID
}

func (f SubscriptionFilter) matches(t *models.Task) bool {
	if f.TaskID != nil && *f.TaskID != t.ID {
		return false
	}
	if f.GroupID != nil && (t.GroupID == nil || *t.GroupID != *f.GroupID) {
		return false
	}
	return true
}

// TaskStore is the persistence boundary of the lifecycle engine. The engine
// consumes it and never reaches past it.
type TaskStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	UpdateIfVersion(ctx context.Context, task *models.Task, expectedVersion int64) error
	QueryByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Task, error)
	AppendRejection(ctx context.Context, record *models.RejectionRecord) error
	ListRejections(ctx context.Context, taskID uuid.UUID) ([]models.RejectionRecord, error)
	Archive(ctx context.Context, id uuid.UUID) error
	CreateSeries(ctx context.Context, series *models.TaskSeries) error
	GetSeries(ctx context.Context, id uuid.UUID) (*models.TaskSeries, error)
	Subscribe(filter SubscriptionFilter, fn func(TaskChange)) (cancel func())
}

// MembershipReader exposes the group collaborator's role data. A missing
// membership is (nil, nil), not an error.
type MembershipReader interface {
	GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMembership, error)
}

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// withRetry re-runs fn with linear backoff for transient store failures.
// Only idempotent calls go through it; logic errors pass straight out.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrStoreUnavailable, retryAttempts, err)
}

// transient treats anything that is not a logic outcome or a dead context
// as a retryable store failure.
func transient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrSeriesNotFound),
		errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrDuplicateOccurrence),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

type GormTaskStore struct {
	db *gorm.DB

	mu          sync.RWMutex
	subscribers map[int64]subscription
	nextSubID   int64
}

type subscription struct {
	filter SubscriptionFilter
	fn     func(TaskChange)
}

func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{
		db:          db,
		subscribers: make(map[int64]subscription),
	}
}

func (s *GormTaskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).First(&task, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *GormTaskStore) Create(ctx context.Context, task *models.Task) error {
	err := s.db.WithContext(ctx).Create(task).Error
	if err != nil {
		if task.InSeries() && s.occurrenceExists(ctx, *task.SeriesID, *task.OccurrenceIndex) {
			return ErrDuplicateOccurrence
		}
		return fmt.Errorf("create task: %w", err)
	}
	s.notify(TaskChange{Kind: ChangeCreated, Task: *task})
	return nil
}

// occurrenceExists distinguishes a unique-index violation from other create
// failures without depending on driver-specific error types.
func (s *GormTaskStore) occurrenceExists(ctx context.Context, seriesID uuid.UUID, index int) bool {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("series_id = ? AND occurrence_index = ?", seriesID, index).
		Count(&count).Error
	return err == nil && count > 0
}

// UpdateIfVersion writes the task's mutable fields conditioned on the stored
// version still matching expectedVersion. On success the in-memory task
// carries the incremented version.
func (s *GormTaskStore) UpdateIfVersion(ctx context.Context, task *models.Task, expectedVersion int64) error {
	updates := map[string]interface{}{
		"status":                task.Status,
		"title":                 task.Title,
		"description":           task.Description,
		"priority":              task.Priority,
		"category":              task.Category,
		"due_date":              task.DueDate,
		"assignee_id":           task.Assignment.AssigneeID,
		"assignee_name":         task.Assignment.AssigneeName,
		"reviewer_id":           task.Assignment.ReviewerID,
		"reviewer_name":         task.Assignment.ReviewerName,
		"assigned_at":           task.Assignment.AssignedAt,
		"last_status_change_at": task.Assignment.LastStatusChangeAt,
		"version":               expectedVersion + 1,
	}

	err := withRetry(ctx, func() error {
		result := s.db.WithContext(ctx).Model(&models.Task{}).
			Where("id = ? AND version = ?", task.ID, expectedVersion).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.Task{}).
				Where("id = ?", task.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrTaskNotFound
			}
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return err
	}

	task.Version = expectedVersion + 1
	s.notify(TaskChange{Kind: ChangeUpdated, Task: *task})
	return nil
}

// Archive soft-deletes the task. The row stays behind the deleted_at
// filter, so the (series_id, occurrence_index) guard and the rejection
// ledger keep working.
func (s *GormTaskStore) Archive(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.Task{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *GormTaskStore) QueryByGroup(ctx context.Context, groupID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).
			Where("group_id = ?", groupID).
			Order("created_at asc").
			Find(&tasks).Error
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *GormTaskStore) AppendRejection(ctx context.Context, record *models.RejectionRecord) error {
	// Append-only: no update or delete path exists for rejection records.
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *GormTaskStore) ListRejections(ctx context.Context, taskID uuid.UUID) ([]models.RejectionRecord, error) {
	var records []models.RejectionRecord
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).
			Where("task_id = ?", taskID).
			Order("timestamp asc, seq asc").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormTaskStore) CreateSeries(ctx context.Context, series *models.TaskSeries) error {
	return s.db.WithContext(ctx).Create(series).Error
}

func (s *GormTaskStore) GetSeries(ctx context.Context, id uuid.UUID) (*models.TaskSeries, error) {
	var series models.TaskSeries
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).First(&series, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}
	return &series, nil
}

// Subscribe registers a change callback. Delivery is best effort and may
// trail the latest write; readers needing strict freshness should Get.
func (s *GormTaskStore) Subscribe(filter SubscriptionFilter, fn func(TaskChange)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = subscription{filter: filter, fn: fn}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *GormTaskStore) notify(change TaskChange) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subscribers {
		if sub.filter.matches(&change.Task) {
			sub.fn(change)
		}
	}
}

type GormMembershipStore struct {
	db *gorm.DB
}

func NewGormMembershipStore(db *gorm.DB) *GormMembershipStore {
	return &GormMembershipStore{db: db}
}

func (s *GormMembershipStore) GetMembership(ctx context.Context, groupID, userID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).
			First(&membership, "group_id = ? AND user_id = ?", groupID, userID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}
