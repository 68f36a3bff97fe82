package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tasklife/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*redis.Client, *worker.EventQueue) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, worker.NewEventQueue(client)
}

func newTestDispatcher(t *testing.T, client *redis.Client, queues ...string) *worker.Dispatcher {
	d := worker.NewDispatcher(worker.DispatcherConfig{
		RedisClient: client,
		Queues:      queues,
		PollTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(d.Stop)
	return d
}

func TestPublishEnqueuesEvent(t *testing.T) {
	client, q := setupTestQueue(t)
	ctx := context.Background()

	err := q.Publish(ctx, "status_changed", map[string]interface{}{
		"task_id": "abc",
		"from":    "assigned",
		"to":      "in_progress",
	})
	require.NoError(t, err)

	size, err := q.Size(ctx, worker.QueueNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	raw, err := client.LRange(ctx, worker.QueueNotifications, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var event worker.Event
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &event))
	assert.Equal(t, "status_changed", event.Kind)
	assert.Equal(t, "in_progress", event.Payload["to"])
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 3, event.MaxTries)
}

func TestDispatcherInvokesHandler(t *testing.T) {
	client, q := setupTestQueue(t)
	d := newTestDispatcher(t, client, worker.QueueNotifications)

	received := make(chan *worker.Event, 1)
	d.RegisterHandler("task_created", func(ctx context.Context, event *worker.Event) error {
		received <- event
		return nil
	})
	d.Start(1)

	require.NoError(t, q.Publish(context.Background(), "task_created", map[string]interface{}{
		"task_id": "xyz",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "task_created", event.Kind)
		assert.Equal(t, "xyz", event.Payload["task_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestFailedEventMovesToRetryQueue(t *testing.T) {
	client, q := setupTestQueue(t)
	d := newTestDispatcher(t, client, worker.QueueNotifications)

	attempted := make(chan struct{}, 1)
	d.RegisterHandler("task_rejected", func(ctx context.Context, event *worker.Event) error {
		attempted <- struct{}{}
		return assert.AnError
	})
	d.Start(1)

	require.NoError(t, q.Publish(context.Background(), "task_rejected", nil))

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		size, err := q.Size(context.Background(), worker.QueueRetry)
		require.NoError(t, err)
		if size == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 event on retry queue, got %d", size)
		}
		time.Sleep(20 * time.Millisecond)
	}

	raw, err := client.LRange(context.Background(), worker.QueueRetry, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var event worker.Event
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &event))
	assert.Equal(t, 1, event.Attempts)
	assert.True(t, event.ProcessAt.After(time.Now()), "retry should be deferred")
}

func TestExhaustedEventMovesToDeadQueue(t *testing.T) {
	client, q := setupTestQueue(t)
	d := newTestDispatcher(t, client, worker.QueueNotifications)

	d.RegisterHandler("task_created", func(ctx context.Context, event *worker.Event) error {
		return assert.AnError
	})
	d.Start(1)

	// An event already on its last allowed attempt.
	event := worker.Event{
		ID:        "final-attempt",
		Kind:      "task_created",
		Attempts:  2,
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: time.Now().Add(-time.Second),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, client.RPush(context.Background(), worker.QueueNotifications, data).Err())

	deadline := time.Now().Add(2 * time.Second)
	for {
		size, err := q.Size(context.Background(), worker.QueueDead)
		require.NoError(t, err)
		if size == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 event on dead queue, got %d", size)
		}
		time.Sleep(20 * time.Millisecond)
	}

	retrySize, err := q.Size(context.Background(), worker.QueueRetry)
	require.NoError(t, err)
	assert.Equal(t, int64(0), retrySize)
}

func TestDeferredEventIsNotDispatchedEarly(t *testing.T) {
	client, _ := setupTestQueue(t)
	d := newTestDispatcher(t, client, worker.QueueNotifications)

	invoked := make(chan struct{}, 1)
	d.RegisterHandler("occurrence_created", func(ctx context.Context, event *worker.Event) error {
		invoked <- struct{}{}
		return nil
	})
	d.Start(1)

	event := worker.Event{
		ID:        "deferred",
		Kind:      "occurrence_created",
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: time.Now().Add(time.Hour),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, client.RPush(context.Background(), worker.QueueNotifications, data).Err())

	select {
	case <-invoked:
		t.Fatal("deferred event was dispatched before its process time")
	case <-time.After(300 * time.Millisecond):
	}
}
