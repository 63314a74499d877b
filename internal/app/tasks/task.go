// Package tasks runs background work: a Redis list broker, a worker pool
// that executes named handlers and a cron scheduler that enqueues periodic
// tasks.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxAttempts is how many times a failing task runs before it is
// dead-lettered.
const MaxAttempts = 3

// ErrEmpty is returned by Broker.Pop when no task arrived in time.
var ErrEmpty = errors.New("tasks: queue empty")

// Task is the queued unit of work.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	Attempts   int             `json:"attempts"`
}

// Expired reports whether t should be dropped at now.
func (t Task) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Decode unmarshals the payload into v.
func (t Task) Decode(v interface{}) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("task %s has no payload", t.Name)
	}
	return json.Unmarshal(t.Payload, v)
}

// Handler executes one task.
type Handler func(ctx context.Context, t Task) error

// Broker moves tasks between producers and workers.
type Broker interface {
	Push(ctx context.Context, t Task) error
	// Pop blocks up to timeout and returns ErrEmpty when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (Task, error)
	DeadLetter(ctx context.Context, t Task) error
}

// Queue builds tasks and pushes them to a broker.
type Queue struct {
	broker Broker
	now    func() time.Time
}

// NewQueue wraps broker.
func NewQueue(broker Broker) *Queue {
	return &Queue{broker: broker, now: time.Now}
}

// Enqueue schedules name with payload.
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}) error {
	return q.EnqueueWithExpiry(ctx, name, payload, 0)
}

// EnqueueWithExpiry schedules name; workers drop it once ttl has passed. A
// zero ttl never expires.
func (q *Queue) EnqueueWithExpiry(ctx context.Context, name string, payload interface{}, ttl time.Duration) error {
	t := Task{ID: uuid.NewString(), Name: name, EnqueuedAt: q.now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", name, err)
		}
		t.Payload = raw
	}
	if ttl > 0 {
		exp := t.EnqueuedAt.Add(ttl)
		t.ExpiresAt = &exp
	}
	return q.broker.Push(ctx, t)
}
