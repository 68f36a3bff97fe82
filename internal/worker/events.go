package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	QueueNotifications = "notifications"
	QueueRetry         = "notifications_retry"
	QueueDead          = "notifications_dead"
)

// Event is the unit the lifecycle engine emits for downstream consumers
// (push delivery, activity feeds). This core only produces and dispatches
// the data; delivery itself lives outside.
type Event struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type EventHandler func(ctx context.Context, event *Event) error

// EventQueue pushes lifecycle events onto the redis notification queue. It
// satisfies the orchestrator's EventPublisher contract.
type EventQueue struct {
	client *redis.Client
}

func NewEventQueue(client *redis.Client) *EventQueue {
	return &EventQueue{client: client}
}

func (q *EventQueue) Publish(ctx context.Context, kind string, payload map[string]interface{}) error {
	event := &Event{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Kind:      kind,
		Payload:   payload,
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return q.client.RPush(ctx, QueueNotifications, data).Err()
}

func (q *EventQueue) Size(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.client.LLen(ctx, queue).Result()
}

// Dispatcher drains the notification queues with a pool of goroutines and
// routes each event to the handler registered for its kind. Failed events
// retry with exponential delay until MaxTries, then land on the dead queue.
type Dispatcher struct {
	client      *redis.Client
	handlers    map[string]EventHandler
	queues      []string
	pollTimeout time.Duration

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type DispatcherConfig struct {
	RedisClient *redis.Client
	Queues      []string
	PollTimeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	queues := cfg.Queues
	if len(queues) == 0 {
		queues = []string{QueueNotifications, QueueRetry}
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}

	return &Dispatcher{
		client:      cfg.RedisClient,
		handlers:    make(map[string]EventHandler),
		queues:      queues,
		pollTimeout: pollTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (d *Dispatcher) RegisterHandler(kind string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

func (d *Dispatcher) Start(concurrency int) {
	log.Printf("Starting event dispatcher with %d goroutines", concurrency)

	for i := 0; i < concurrency; i++ {
		d.wg.Add(1)
		go d.loop()
	}
}

func (d *Dispatcher) Stop() {
	log.Println("Stopping event dispatcher...")
	d.cancel()
	d.wg.Wait()
	log.Println("Event dispatcher stopped")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if err := d.processNext(); err != nil {
				log.Printf("Error processing event: %v", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (d *Dispatcher) processNext() error {
	result, err := d.client.BLPop(d.ctx, d.pollTimeout, d.queues...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("pop event: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("malformed pop result")
	}

	queue := result[0]
	var event Event
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	if time.Now().Before(event.ProcessAt) {
		return d.push(queue, &event)
	}
	return d.dispatch(&event)
}

func (d *Dispatcher) dispatch(event *Event) error {
	d.mu.RLock()
	handler, ok := d.handlers[event.Kind]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no handler registered for event kind %q", event.Kind)
	}

	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	if err := handler(ctx, event); err != nil {
		event.Attempts++
		if event.Attempts < event.MaxTries {
			log.Printf("Event %s failed (attempt %d/%d), retrying: %v",
				event.ID, event.Attempts, event.MaxTries, err)
			event.ProcessAt = time.Now().Add(time.Duration(1<<event.Attempts) * time.Minute)
			return d.push(QueueRetry, event)
		}

		log.Printf("Event %s failed permanently after %d attempts: %v",
			event.ID, event.Attempts, err)
		return d.moveToDeadQueue(event, err)
	}
	return nil
}

func (d *Dispatcher) push(queue string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return d.client.RPush(d.ctx, queue, data).Err()
}

func (d *Dispatcher) moveToDeadQueue(event *Event, cause error) error {
	dead := map[string]interface{}{
		"event":     event,
		"error":     cause.Error(),
		"failed_at": time.Now(),
	}
	data, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("marshal dead event: %w", err)
	}
	return d.client.RPush(d.ctx, QueueDead, data).Err()
}
