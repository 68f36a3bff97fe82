package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tasklife/internal/handlers"
	"tasklife/internal/models"
	"tasklife/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type MockLifecycle struct {
	returnErr    error
	lastInput    services.CreateTaskInput
	lastRule     models.RecurrenceRule
	lastRequest  services.TransitionRequest
	archivedID   uuid.UUID
	groupTasks   []models.Task
	rejections   []models.RejectionRecord
}

func (m *MockLifecycle) CreateTask(ctx context.Context, input services.CreateTaskInput) (*models.Task, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	m.lastInput = input
	task := models.Task{
		ID:        uuid.Must(uuid.NewV4()),
		Title:     input.Title,
		Status:    models.StatusAssigned,
		CreatorID: input.CreatorID,
	}
	return &task, nil
}

func (m *MockLifecycle) CreateRecurringTask(ctx context.Context, input services.CreateTaskInput, rule models.RecurrenceRule) (*models.Task, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	m.lastInput = input
	m.lastRule = rule
	seriesID := uuid.Must(uuid.NewV4())
	zero := 0
	task := models.Task{
		ID:              uuid.Must(uuid.NewV4()),
		Title:           input.Title,
		Status:          models.StatusAssigned,
		SeriesID:        &seriesID,
		OccurrenceIndex: &zero,
	}
	return &task, nil
}

func (m *MockLifecycle) ApplyTransition(ctx context.Context, req services.TransitionRequest) (*models.Task, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	m.lastRequest = req
	task := models.Task{ID: req.TaskID, Status: models.StatusInProgress}
	return &task, nil
}

func (m *MockLifecycle) ArchiveTask(ctx context.Context, taskID, actorID uuid.UUID) (*models.Task, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	m.archivedID = taskID
	return &models.Task{ID: taskID}, nil
}

func (m *MockLifecycle) ListTasksForGroup(ctx context.Context, groupID uuid.UUID) ([]models.Task, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return m.groupTasks, nil
}

func (m *MockLifecycle) ListRejections(ctx context.Context, taskID uuid.UUID) ([]models.RejectionRecord, error) {
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return m.rejections, nil
}

func setupTaskHandler() (*MockLifecycle, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	mock := &MockLifecycle{}
	handler := handlers.NewTaskHandler(mock)
	router := gin.New()

	// Mock authentication middleware
	router.Use(func(c *gin.Context) {
		c.Set("user_id", uuid.Must(uuid.NewV4()).String())
		c.Set("user_name", "Robin")
		c.Next()
	})

	router.POST("/api/tasks", handler.CreateTask)
	router.POST("/api/tasks/recurring", handler.CreateRecurringTask)
	router.POST("/api/tasks/:id/transitions", handler.ApplyTransition)
	router.DELETE("/api/tasks/:id", handler.ArchiveTask)
	router.GET("/api/tasks/:id/rejections", handler.ListRejections)
	router.GET("/api/groups/:group_id/tasks", handler.ListGroupTasks)

	return mock, router
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateTask(t *testing.T) {
	_, router := setupTaskHandler()

	w := postJSON(router, "/api/tasks", map[string]interface{}{
		"title":       "Test Task",
		"assignee_id": uuid.Must(uuid.NewV4()).String(),
	})

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}
}

func TestCreateTaskMissingTitle(t *testing.T) {
	_, router := setupTaskHandler()

	w := postJSON(router, "/api/tasks", map[string]interface{}{
		"assignee_id": uuid.Must(uuid.NewV4()).String(),
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateTaskInvalidAssignee(t *testing.T) {
	_, router := setupTaskHandler()

	w := postJSON(router, "/api/tasks", map[string]interface{}{
		"title":       "Test Task",
		"assignee_id": "not-a-uuid",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateRecurringTask(t *testing.T) {
	mock, router := setupTaskHandler()

	w := postJSON(router, "/api/tasks/recurring", map[string]interface{}{
		"task": map[string]interface{}{
			"title":       "Weekly report",
			"assignee_id": uuid.Must(uuid.NewV4()).String(),
		},
		"rule": map[string]interface{}{
			"frequency":       "weekly",
			"days_of_week":    []int{1, 3},
			"anchor_due_date": time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
		},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	if mock.lastRule.Frequency != models.FrequencyWeekly {
		t.Errorf("Expected weekly frequency, got %s", mock.lastRule.Frequency)
	}
	if mock.lastRule.Interval != 1 {
		t.Errorf("Expected default interval 1, got %d", mock.lastRule.Interval)
	}
	if mock.lastRule.EndCondition != models.EndNever {
		t.Errorf("Expected default end condition never, got %s", mock.lastRule.EndCondition)
	}
	if len(mock.lastRule.DaysOfWeek) != 2 {
		t.Errorf("Expected 2 weekdays, got %d", len(mock.lastRule.DaysOfWeek))
	}
}

func TestApplyTransition(t *testing.T) {
	mock, router := setupTaskHandler()

	taskID := uuid.Must(uuid.NewV4())
	w := postJSON(router, fmt.Sprintf("/api/tasks/%s/transitions", taskID), map[string]interface{}{
		"action": "start",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if mock.lastRequest.TaskID != taskID {
		t.Errorf("Expected task ID %s, got %s", taskID, mock.lastRequest.TaskID)
	}
	if mock.lastRequest.Action != services.ActionStart {
		t.Errorf("Expected action start, got %s", mock.lastRequest.Action)
	}
	if mock.lastRequest.ActorName != "Robin" {
		t.Errorf("Expected actor name from context, got %q", mock.lastRequest.ActorName)
	}
}

func TestApplyTransitionErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", services.ErrUnauthorized, http.StatusForbidden},
		{"invalid transition", services.ErrInvalidTransition, http.StatusConflict},
		{"validation", services.ErrValidation, http.StatusBadRequest},
		{"not found", services.ErrNotFound, http.StatusNotFound},
		{"concurrent modification", services.ErrConcurrentModification, http.StatusConflict},
		{"store unavailable", services.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, router := setupTaskHandler()
			taskID := uuid.Must(uuid.NewV4())
			actorID := uuid.Must(uuid.NewV4())
			mock.returnErr = &services.LifecycleError{
				TaskID: taskID, ActorID: actorID, Action: services.ActionApprove, Err: tt.err,
			}

			w := postJSON(router, fmt.Sprintf("/api/tasks/%s/transitions", taskID), map[string]interface{}{
				"action": "approve",
			})

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestApplyTransitionBadTaskID(t *testing.T) {
	_, router := setupTaskHandler()

	w := postJSON(router, "/api/tasks/not-a-uuid/transitions", map[string]interface{}{
		"action": "start",
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestArchiveTask(t *testing.T) {
	mock, router := setupTaskHandler()

	taskID := uuid.Must(uuid.NewV4())
	req, _ := http.NewRequest("DELETE", fmt.Sprintf("/api/tasks/%s", taskID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if mock.archivedID != taskID {
		t.Errorf("Expected archived task %s, got %s", taskID, mock.archivedID)
	}
}

func TestArchiveTaskUnauthorized(t *testing.T) {
	mock, router := setupTaskHandler()
	taskID := uuid.Must(uuid.NewV4())
	mock.returnErr = services.ErrUnauthorized

	req, _ := http.NewRequest("DELETE", fmt.Sprintf("/api/tasks/%s", taskID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestListGroupTasks(t *testing.T) {
	mock, router := setupTaskHandler()
	mock.groupTasks = []models.Task{
		{Title: "Task 1", Status: models.StatusAssigned},
		{Title: "Task 2", Status: models.StatusReviewed},
	}

	groupID := uuid.Must(uuid.NewV4())
	req, _ := http.NewRequest("GET", fmt.Sprintf("/api/groups/%s/tasks", groupID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["total"] != float64(2) {
		t.Errorf("Expected total 2, got %v", response["total"])
	}
}

func TestListRejections(t *testing.T) {
	mock, router := setupTaskHandler()
	mock.rejections = []models.RejectionRecord{
		{ID: uuid.Must(uuid.NewV4()), Reason: "needs more detail"},
	}

	taskID := uuid.Must(uuid.NewV4())
	req, _ := http.NewRequest("GET", fmt.Sprintf("/api/tasks/%s/rejections", taskID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if response["total"] != float64(1) {
		t.Errorf("Expected total 1, got %v", response["total"])
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewTaskHandler(&MockLifecycle{})
	router := gin.New()
	router.POST("/api/tasks", handler.CreateTask)

	w := postJSON(router, "/api/tasks", map[string]interface{}{
		"title":       "Test Task",
		"assignee_id": uuid.Must(uuid.NewV4()).String(),
	})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}
