package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tasklife/internal/models"
	"tasklife/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// Lifecycle is the orchestrator contract the HTTP layer depends on. Both
// the plain and the cached service satisfy it.
type Lifecycle interface {
	CreateTask(ctx context.Context, input services.CreateTaskInput) (*models.Task, error)
	CreateRecurringTask(ctx context.Context, input services.CreateTaskInput, rule models.RecurrenceRule) (*models.Task, error)
	ApplyTransition(ctx context.Context, req services.TransitionRequest) (*models.Task, error)
	ArchiveTask(ctx context.Context, taskID, actorID uuid.UUID) (*models.Task, error)
	ListTasksForGroup(ctx context.Context, groupID uuid.UUID) ([]models.Task, error)
	ListRejections(ctx context.Context, taskID uuid.UUID) ([]models.RejectionRecord, error)
}

type TaskHandler struct {
	lifecycle Lifecycle
}

func NewTaskHandler(lifecycle Lifecycle) *TaskHandler {
	return &TaskHandler{lifecycle: lifecycle}
}

type taskInput struct {
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	Category     string     `json:"category"`
	Tags         []string   `json:"tags"`
	GroupID      *string    `json:"group_id"`
	DueDate      *time.Time `json:"due_date"`
	AssigneeID   string     `json:"assignee_id" binding:"required"`
	AssigneeName string     `json:"assignee_name"`
	ReviewerID   *string    `json:"reviewer_id"`
	ReviewerName string     `json:"reviewer_name"`
}

type ruleInput struct {
	Frequency     string     `json:"frequency" binding:"required"`
	Interval      int        `json:"interval"`
	DaysOfWeek    []int      `json:"days_of_week"`
	EndCondition  string     `json:"end_condition"`
	EndCount      *int       `json:"end_count"`
	EndDate       *time.Time `json:"end_date"`
	AnchorDueDate time.Time  `json:"anchor_due_date" binding:"required"`
}

type recurringTaskInput struct {
	Task taskInput `json:"task" binding:"required"`
	Rule ruleInput `json:"rule" binding:"required"`
}

type transitionInput struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

func actorFromContext(c *gin.Context) (uuid.UUID, string, bool) {
	idValue, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return uuid.Nil, "", false
	}
	idStr, ok := idValue.(string)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user ID format"})
		return uuid.Nil, "", false
	}
	actorID := uuid.FromStringOrNil(idStr)
	if actorID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
		return uuid.Nil, "", false
	}
	return actorID, c.GetString("user_name"), true
}

func (in taskInput) toCreateInput(creatorID uuid.UUID) (services.CreateTaskInput, error) {
	assigneeID := uuid.FromStringOrNil(in.AssigneeID)
	if assigneeID == uuid.Nil {
		return services.CreateTaskInput{}, errors.New("assignee_id is not a valid uuid")
	}

	input := services.CreateTaskInput{
		Title:        in.Title,
		Description:  in.Description,
		Priority:     models.TaskPriority(in.Priority),
		Category:     in.Category,
		Tags:         in.Tags,
		CreatorID:    creatorID,
		DueDate:      in.DueDate,
		AssigneeID:   assigneeID,
		AssigneeName: in.AssigneeName,
		ReviewerName: in.ReviewerName,
	}
	if in.GroupID != nil {
		groupID := uuid.FromStringOrNil(*in.GroupID)
		if groupID == uuid.Nil {
			return services.CreateTaskInput{}, errors.New("group_id is not a valid uuid")
		}
		input.GroupID = &groupID
	}
	if in.ReviewerID != nil {
		reviewerID := uuid.FromStringOrNil(*in.ReviewerID)
		if reviewerID == uuid.Nil {
			return services.CreateTaskInput{}, errors.New("reviewer_id is not a valid uuid")
		}
		input.ReviewerID = &reviewerID
	}
	return input, nil
}

func (in ruleInput) toRule() models.RecurrenceRule {
	interval := in.Interval
	if interval == 0 {
		interval = 1
	}
	endCondition := models.EndCondition(in.EndCondition)
	if in.EndCondition == "" {
		endCondition = models.EndNever
	}

	rule := models.RecurrenceRule{
		Frequency:     models.Frequency(in.Frequency),
		Interval:      interval,
		EndCondition:  endCondition,
		EndCount:      in.EndCount,
		EndDate:       in.EndDate,
		AnchorDueDate: in.AnchorDueDate,
	}
	for _, d := range in.DaysOfWeek {
		rule.DaysOfWeek = append(rule.DaysOfWeek, time.Weekday(d))
	}
	return rule
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		return
	}

	var in taskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := in.toCreateInput(actorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.lifecycle.CreateTask(c.Request.Context(), input)
	if err != nil {
		handleLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) CreateRecurringTask(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		return
	}

	var in recurringTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input, err := in.Task.toCreateInput(actorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.lifecycle.CreateRecurringTask(c.Request.Context(), input, in.Rule.toRule())
	if err != nil {
		handleLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) ApplyTransition(c *gin.Context) {
	actorID, actorName, ok := actorFromContext(c)
	if !ok {
		return
	}

	taskID := uuid.FromStringOrNil(c.Param("id"))
	if taskID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task id is not a valid uuid"})
		return
	}

	var in transitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.lifecycle.ApplyTransition(c.Request.Context(), services.TransitionRequest{
		TaskID:    taskID,
		ActorID:   actorID,
		ActorName: actorName,
		Action:    services.Action(in.Action),
		Reason:    in.Reason,
	})
	if err != nil {
		handleLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ArchiveTask(c *gin.Context) {
	actorID, _, ok := actorFromContext(c)
	if !ok {
		return
	}

	taskID := uuid.FromStringOrNil(c.Param("id"))
	if taskID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task id is not a valid uuid"})
		return
	}

	if _, err := h.lifecycle.ArchiveTask(c.Request.Context(), taskID, actorID); err != nil {
		handleLifecycleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) ListGroupTasks(c *gin.Context) {
	groupID := uuid.FromStringOrNil(c.Param("group_id"))
	if groupID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group id is not a valid uuid"})
		return
	}

	tasks, err := h.lifecycle.ListTasksForGroup(c.Request.Context(), groupID)
	if err != nil {
		handleLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": len(tasks),
	})
}

func (h *TaskHandler) ListRejections(c *gin.Context) {
	taskID := uuid.FromStringOrNil(c.Param("id"))
	if taskID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task id is not a valid uuid"})
		return
	}

	records, err := h.lifecycle.ListRejections(c.Request.Context(), taskID)
	if err != nil {
		handleLifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rejections": records,
		"total":      len(records),
	})
}

func handleLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process task request"})
	}
}
