package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasklife/internal/models"
	"tasklife/internal/repositories"

	"github.com/gofrs/uuid"
)

// EventPublisher receives lifecycle events for downstream consumers
// (notifications, activity feeds). Delivery is fire-and-forget from the
// orchestrator's perspective.
type EventPublisher interface {
	Publish(ctx context.Context, kind string, payload map[string]interface{}) error
}

const (
	EventTaskCreated       = "task_created"
	EventStatusChanged     = "status_changed"
	EventReviewRequested   = "review_requested"
	EventTaskRejected      = "task_rejected"
	EventOccurrenceCreated = "occurrence_created"
	EventTaskArchived      = "task_archived"
)

type CreateTaskInput struct {
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	Priority     models.TaskPriority `json:"priority"`
	Category     string              `json:"category"`
	Tags         []string            `json:"tags"`
	GroupID      *uuid.UUID          `json:"group_id"`
	CreatorID    uuid.UUID           `json:"creator_id"`
	DueDate      *time.Time          `json:"due_date"`
	AssigneeID   uuid.UUID           `json:"assignee_id"`
	AssigneeName string              `json:"assignee_name"`
	ReviewerID   *uuid.UUID          `json:"reviewer_id"`
	ReviewerName string              `json:"reviewer_name"`
}

type TransitionRequest struct {
	TaskID    uuid.UUID
	ActorID   uuid.UUID
	ActorName string
	Action    Action
	Reason    string
}

// LifecycleService composes the permission resolver, status machine,
// rejection ledger and recurrence engine into the operations the
// surrounding application calls. Every status mutation flows through
// ApplyTransition; there is no other write path for status.
type LifecycleService struct {
	store      repositories.TaskStore
	groups     repositories.MembershipReader
	recurrence *RecurrenceEngine
	events     EventPublisher

	newID func() uuid.UUID
	now   func() time.Time
}

// NewLifecycleService wires the orchestrator. events may be nil when no
// downstream consumer is attached.
func NewLifecycleService(store repositories.TaskStore, groups repositories.MembershipReader, recurrence *RecurrenceEngine, events EventPublisher) *LifecycleService {
	return &LifecycleService{
		store:      store,
		groups:     groups,
		recurrence: recurrence,
		events:     events,
		newID:      func() uuid.UUID { return uuid.Must(uuid.NewV4()) },
		now:        time.Now,
	}
}

func (s *LifecycleService) buildTask(input CreateTaskInput) (models.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return models.Task{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.AssigneeID == uuid.Nil {
		return models.Task{}, fmt.Errorf("%w: assignee is required", ErrValidation)
	}
	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}

	now := s.now()
	return models.Task{
		ID:          s.newID(),
		Title:       input.Title,
		Description: input.Description,
		Priority:    priority,
		Category:    input.Category,
		Tags:        input.Tags,
		GroupID:     input.GroupID,
		CreatorID:   input.CreatorID,
		Status:      models.StatusAssigned,
		DueDate:     input.DueDate,
		Assignment: models.Assignment{
			AssigneeID:         input.AssigneeID,
			AssigneeName:       input.AssigneeName,
			ReviewerID:         input.ReviewerID,
			ReviewerName:       input.ReviewerName,
			AssignedAt:         now,
			LastStatusChangeAt: now,
		},
		Version: 1,
	}, nil
}

func (s *LifecycleService) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	task, err := s.buildTask(input)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, &task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.publish(ctx, EventTaskCreated, map[string]interface{}{
		"task_id":     task.ID.String(),
		"assignee_id": task.Assignment.AssigneeID.String(),
		"title":       task.Title,
	})
	return &task, nil
}

// CreateRecurringTask creates a series and its first occurrence. Later
// occurrences materialize lazily as their predecessors are approved.
func (s *LifecycleService) CreateRecurringTask(ctx context.Context, input CreateTaskInput, rule models.RecurrenceRule) (*models.Task, error) {
	template, err := s.buildTask(input)
	if err != nil {
		return nil, err
	}
	task, err := s.recurrence.MaterializeSeries(ctx, template, rule)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventTaskCreated, map[string]interface{}{
		"task_id":     task.ID.String(),
		"series_id":   task.SeriesID.String(),
		"assignee_id": task.Assignment.AssigneeID.String(),
		"title":       task.Title,
	})
	return &task, nil
}

// ApplyTransition authorizes, validates and executes one status change with
// optimistic concurrency: a lost write is re-read and re-evaluated exactly
// once against the fresh state before ConcurrentModification surfaces.
func (s *LifecycleService) ApplyTransition(ctx context.Context, req TransitionRequest) (*models.Task, error) {
	if !req.Action.Valid() {
		return nil, lifecycleErr(req.TaskID, req.ActorID, req.Action,
			fmt.Errorf("%w: unknown action %q", ErrValidation, req.Action))
	}

	task, err := s.getTask(ctx, req.TaskID)
	if err != nil {
		return nil, lifecycleErr(req.TaskID, req.ActorID, req.Action, err)
	}

	updated, err := s.attemptTransition(ctx, task, req)
	if errors.Is(err, repositories.ErrVersionConflict) {
		task, err = s.getTask(ctx, req.TaskID)
		if err != nil {
			return nil, lifecycleErr(req.TaskID, req.ActorID, req.Action, err)
		}
		updated, err = s.attemptTransition(ctx, task, req)
		if errors.Is(err, repositories.ErrVersionConflict) {
			err = ErrConcurrentModification
		}
	}
	if err != nil {
		return nil, lifecycleErr(req.TaskID, req.ActorID, req.Action, err)
	}

	s.publishTransition(ctx, updated, req)

	if updated.Status == models.StatusReviewed && updated.InSeries() {
		next, err := s.recurrence.AdvanceSeries(ctx, updated)
		if err != nil {
			return updated, lifecycleErr(req.TaskID, req.ActorID, req.Action,
				fmt.Errorf("advance series: %w", err))
		}
		if next != nil {
			s.publish(ctx, EventOccurrenceCreated, map[string]interface{}{
				"task_id":          next.ID.String(),
				"series_id":        next.SeriesID.String(),
				"occurrence_index": *next.OccurrenceIndex,
				"assignee_id":      next.Assignment.AssigneeID.String(),
			})
		}
	}
	return updated, nil
}

// attemptTransition runs one authorize-validate-write cycle against a
// snapshot of the task.
func (s *LifecycleService) attemptTransition(ctx context.Context, task *models.Task, req TransitionRequest) (*models.Task, error) {
	roles, err := s.resolveRoles(ctx, task, req.ActorID)
	if err != nil {
		return nil, err
	}

	updated, err := Transition(*task, roles, req.Action, req.Reason, s.now())
	if err != nil {
		return nil, err
	}

	// Ledger before persist: a Reopened task must always be explainable by
	// at least one record with timestamp at or before its transition time.
	if req.Action == ActionReject {
		record := models.RejectionRecord{
			ID:           s.newID(),
			TaskID:       task.ID,
			ReviewerID:   req.ActorID,
			ReviewerName: s.reviewerName(task, req),
			Reason:       req.Reason,
			Timestamp:    updated.Assignment.LastStatusChangeAt,
		}
		if err := s.store.AppendRejection(ctx, &record); err != nil {
			return nil, fmt.Errorf("append rejection: %w", err)
		}
	}

	if err := s.store.UpdateIfVersion(ctx, &updated, task.Version); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *LifecycleService) resolveRoles(ctx context.Context, task *models.Task, actorID uuid.UUID) (RoleSet, error) {
	var membership *models.GroupMembership
	if task.GroupID != nil {
		var err error
		membership, err = s.groups.GetMembership(ctx, *task.GroupID, actorID)
		if err != nil {
			return RoleSet{}, fmt.Errorf("resolve membership: %w", err)
		}
	}
	return ResolveRoles(task, actorID, membership), nil
}

func (s *LifecycleService) reviewerName(task *models.Task, req TransitionRequest) string {
	if req.ActorName != "" {
		return req.ActorName
	}
	if task.IsReviewer(req.ActorID) {
		return task.Assignment.ReviewerName
	}
	return ""
}

func (s *LifecycleService) getTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// ArchiveTask soft-deletes a task. Only the creator or a group admin may
// archive; the rejection ledger and any series bookkeeping stay intact.
func (s *LifecycleService) ArchiveTask(ctx context.Context, taskID, actorID uuid.UUID) (*models.Task, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	roles, err := s.resolveRoles(ctx, task, actorID)
	if err != nil {
		return nil, err
	}
	if task.CreatorID != actorID && !roles.IsAdmin {
		return nil, fmt.Errorf("%w: only the creator or a group admin may archive", ErrUnauthorized)
	}

	if err := s.store.Archive(ctx, taskID); err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive task: %w", err)
	}

	s.publish(ctx, EventTaskArchived, map[string]interface{}{
		"task_id":  task.ID.String(),
		"actor_id": actorID.String(),
	})
	return task, nil
}

func (s *LifecycleService) ListTasksForGroup(ctx context.Context, groupID uuid.UUID) ([]models.Task, error) {
	return s.store.QueryByGroup(ctx, groupID)
}

func (s *LifecycleService) ListRejections(ctx context.Context, taskID uuid.UUID) ([]models.RejectionRecord, error) {
	return s.store.ListRejections(ctx, taskID)
}

func (s *LifecycleService) publishTransition(ctx context.Context, task *models.Task, req TransitionRequest) {
	payload := map[string]interface{}{
		"task_id":  task.ID.String(),
		"actor_id": req.ActorID.String(),
		"action":   string(req.Action),
		"status":   string(task.Status),
	}
	s.publish(ctx, EventStatusChanged, payload)

	switch req.Action {
	case ActionSubmit:
		s.publish(ctx, EventReviewRequested, payload)
	case ActionReject:
		rejected := map[string]interface{}{
			"task_id":  task.ID.String(),
			"actor_id": req.ActorID.String(),
			"reason":   req.Reason,
		}
		s.publish(ctx, EventTaskRejected, rejected)
	}
}

func (s *LifecycleService) publish(ctx context.Context, kind string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	// Event emission never fails a lifecycle operation.
	_ = s.events.Publish(ctx, kind, payload)
}
