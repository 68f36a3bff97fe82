package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tasklife/internal/models"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
)

const (
	taskTTL      = 30 * time.Minute
	groupListTTL = 5 * time.Minute
	opTimeout    = 3 * time.Second
)

// TaskCache is a read-through cache over the task store. Reads may trail
// the latest write; every write path invalidates the affected keys.
type TaskCache struct {
	client *redis.Client
}

type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func NewTaskCache(cfg *Config) *TaskCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &TaskCache{client: client}
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id)
}

func groupKey(id uuid.UUID) string {
	return fmt.Sprintf("group_tasks:%s", id)
}

func (c *TaskCache) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, taskKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var task models.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("decode cached task: %w", err)
	}
	return &task, nil
}

func (c *TaskCache) SetTask(ctx context.Context, task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Set(ctx, taskKey(task.ID), data, taskTTL).Err()
}

func (c *TaskCache) GetGroupTasks(ctx context.Context, groupID uuid.UUID) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, groupKey(groupID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var tasks []models.Task
	if err := json.Unmarshal([]byte(data), &tasks); err != nil {
		return nil, fmt.Errorf("decode cached group listing: %w", err)
	}
	return tasks, nil
}

func (c *TaskCache) SetGroupTasks(ctx context.Context, groupID uuid.UUID, tasks []models.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode group listing: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Set(ctx, groupKey(groupID), data, groupListTTL).Err()
}

// Invalidate drops the task key and, when the task belongs to a group, the
// group listing key in one round trip.
func (c *TaskCache) Invalidate(ctx context.Context, task *models.Task) error {
	keys := []string{taskKey(task.ID)}
	if task.GroupID != nil {
		keys = append(keys, groupKey(*task.GroupID))
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Del(ctx, keys...).Err()
}

func (c *TaskCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *TaskCache) Close() error {
	return c.client.Close()
}
