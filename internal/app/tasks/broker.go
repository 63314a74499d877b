package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBroker keeps tasks in a Redis list: producers LPUSH, workers BRPOP.
type RedisBroker struct {
	client *redis.Client
	queue  string
}

// NewRedisBroker uses the list named queue.
func NewRedisBroker(client *redis.Client, queue string) *RedisBroker {
	return &RedisBroker{client: client, queue: queue}
}

// DeadQueue is the list failed tasks are moved to.
func (b *RedisBroker) DeadQueue() string { return b.queue + ":dead" }

func (b *RedisBroker) Push(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.client.LPush(ctx, b.queue, raw).Err()
}

func (b *RedisBroker) Pop(ctx context.Context, timeout time.Duration) (Task, error) {
	res, err := b.client.BRPop(ctx, timeout, b.queue).Result()
	if errors.Is(err, redis.Nil) {
		return Task{}, ErrEmpty
	}
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (b *RedisBroker) DeadLetter(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.client.LPush(ctx, b.DeadQueue(), raw).Err()
}

// MemoryBroker is an in-process FIFO used by tests and single-process runs.
type MemoryBroker struct {
	mu     sync.Mutex
	items  []Task
	dead   []Task
	notify chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{notify: make(chan struct{}, 1)}
}

func (b *MemoryBroker) Push(_ context.Context, t Task) error {
	b.mu.Lock()
	b.items = append(b.items, t)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, timeout time.Duration) (Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			t := b.items[0]
			b.items = b.items[1:]
			more := len(b.items) > 0
			b.mu.Unlock()
			if more {
				select {
				case b.notify <- struct{}{}:
				default:
				}
			}
			return t, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, ctx.Err()
		case <-timer.C:
			return Task{}, ErrEmpty
		case <-b.notify:
		}
	}
}

func (b *MemoryBroker) DeadLetter(_ context.Context, t Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead = append(b.dead, t)
	return nil
}

// Len returns the number of queued tasks.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dead returns a copy of the dead-lettered tasks.
func (b *MemoryBroker) Dead() []Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Task(nil), b.dead...)
}
