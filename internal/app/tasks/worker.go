package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/metrics"
	"github.com/R3E-Network/sentinel/internal/app/system"
	"github.com/R3E-Network/sentinel/internal/logging"
)

var _ system.Service = (*Worker)(nil)

const popTimeout = 2 * time.Second

// Worker pops tasks with a fixed number of goroutines and runs the handler
// registered for each task name.
type Worker struct {
	broker      Broker
	log         *logging.Logger
	concurrency int
	now         func() time.Time

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker creates a worker with concurrency goroutines.
func NewWorker(broker Broker, concurrency int, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.NewDefault("worker")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		broker:      broker,
		log:         log,
		concurrency: concurrency,
		now:         time.Now,
		handlers:    make(map[string]Handler),
	}
}

// Handle registers h for tasks called name.
func (w *Worker) Handle(name string, h Handler) {
	w.handlersMu.Lock()
	w.handlers[name] = h
	w.handlersMu.Unlock()
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.handlersMu.RLock()
	defer w.handlersMu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

func (w *Worker) Name() string { return "task-worker" }

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(runCtx)
		}()
	}
	w.log.WithField("concurrency", w.concurrency).Info("task worker started")
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.log.Info("task worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		t, err := w.broker.Pop(ctx, popTimeout)
		switch {
		case errors.Is(err, ErrEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Warn("pop task failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.Process(ctx, t)
	}
}

// Process runs one task, requeueing it on failure until MaxAttempts and
// dead-lettering it afterwards.
func (w *Worker) Process(ctx context.Context, t Task) {
	entry := w.log.WithField("task", t.Name).WithField("task_id", t.ID)

	h, ok := w.handler(t.Name)
	if !ok {
		entry.Warn("dropping task with no registered handler")
		return
	}
	if t.Expired(w.now()) {
		entry.Info("dropping expired task")
		return
	}

	t.Attempts++
	start := time.Now()
	err := run(ctx, h, t)
	metrics.RecordTask(t.Name, time.Since(start), err)
	if err == nil {
		entry.WithField("attempt", t.Attempts).Debug("task completed")
		return
	}

	entry = entry.WithError(err).WithField("attempt", t.Attempts)
	if t.Attempts < MaxAttempts {
		entry.Warn("task failed, requeueing")
		if perr := w.broker.Push(ctx, t); perr != nil {
			entry.WithField("push_error", perr.Error()).Error("requeue failed")
		}
		return
	}
	entry.Error("task failed permanently")
	if derr := w.broker.DeadLetter(ctx, t); derr != nil {
		entry.WithField("dead_letter_error", derr.Error()).Error("dead-letter failed")
	}
}

func run(ctx context.Context, h Handler, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
	}()
	return h(ctx, t)
}
