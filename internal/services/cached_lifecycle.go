package services

import (
	"context"

	"tasklife/internal/cache"
	"tasklife/internal/models"

	"github.com/gofrs/uuid"
)

// CachedLifecycleService layers the redis read cache over the orchestrator.
// Group listings are served from cache when fresh; every mutation
// invalidates the affected keys. Slightly stale reads are acceptable by
// contract.
type CachedLifecycleService struct {
	inner *LifecycleService
	cache *cache.TaskCache
}

func NewCachedLifecycleService(inner *LifecycleService, taskCache *cache.TaskCache) *CachedLifecycleService {
	return &CachedLifecycleService{inner: inner, cache: taskCache}
}

func (s *CachedLifecycleService) CreateTask(ctx context.Context, input CreateTaskInput) (*models.Task, error) {
	task, err := s.inner.CreateTask(ctx, input)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, task)
	return task, nil
}

func (s *CachedLifecycleService) CreateRecurringTask(ctx context.Context, input CreateTaskInput, rule models.RecurrenceRule) (*models.Task, error) {
	task, err := s.inner.CreateRecurringTask(ctx, input, rule)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, task)
	return task, nil
}

func (s *CachedLifecycleService) ApplyTransition(ctx context.Context, req TransitionRequest) (*models.Task, error) {
	task, err := s.inner.ApplyTransition(ctx, req)
	if task != nil {
		s.refresh(ctx, task)
	}
	return task, err
}

func (s *CachedLifecycleService) ArchiveTask(ctx context.Context, taskID, actorID uuid.UUID) (*models.Task, error) {
	task, err := s.inner.ArchiveTask(ctx, taskID, actorID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Invalidate(ctx, task)
	return task, nil
}

func (s *CachedLifecycleService) ListTasksForGroup(ctx context.Context, groupID uuid.UUID) ([]models.Task, error) {
	if tasks, err := s.cache.GetGroupTasks(ctx, groupID); err == nil {
		return tasks, nil
	}

	tasks, err := s.inner.ListTasksForGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetGroupTasks(ctx, groupID, tasks)
	return tasks, nil
}

func (s *CachedLifecycleService) ListRejections(ctx context.Context, taskID uuid.UUID) ([]models.RejectionRecord, error) {
	return s.inner.ListRejections(ctx, taskID)
}

// refresh best-effort updates the task key and drops the group listing; a
// cache failure never fails the operation.
func (s *CachedLifecycleService) refresh(ctx context.Context, task *models.Task) {
	_ = s.cache.Invalidate(ctx, task)
	_ = s.cache.SetTask(ctx, task)
}
