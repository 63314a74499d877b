package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/sentinel/internal/app/system"
	"github.com/R3E-Network/sentinel/internal/logging"
)

var _ system.Service = (*Scheduler)(nil)

// Entry is one periodic task.
type Entry struct {
	Spec   string
	Task   string
	Expiry time.Duration
}

// Scheduler enqueues periodic tasks. It never runs them itself.
type Scheduler struct {
	queue *Queue
	log   *logging.Logger
	cron  *cron.Cron

	mu      sync.Mutex
	entries []Entry
	running bool
}

// NewScheduler creates a seconds-capable cron scheduler enqueueing on queue.
func NewScheduler(queue *Queue, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault("beat")
	}
	return &Scheduler{
		queue: queue,
		log:   log,
		cron:  cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{log})),
	}
}

// Add registers e. Specs accept six-field cron lines and @every descriptors.
func (s *Scheduler) Add(e Entry) error {
	_, err := s.cron.AddFunc(e.Spec, func() { s.fire(e) })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

// Entries returns the registered entries.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Scheduler) fire(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.queue.EnqueueWithExpiry(ctx, e.Task, nil, e.Expiry); err != nil {
		s.log.WithError(err).WithField("task", e.Task).Error("enqueue scheduled task failed")
		return
	}
	s.log.WithField("task", e.Task).Debug("scheduled task enqueued")
}

func (s *Scheduler) Name() string { return "task-scheduler" }

func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.cron.Start()
	s.log.WithField("entries", len(s.entries)).Info("scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("scheduler stopped")
	return nil
}

type cronLogger struct{ log *logging.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out[k] = kv[i+1]
		}
	}
	return out
}
