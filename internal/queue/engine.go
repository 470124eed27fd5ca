package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const metaHandlerName = "handler_name"

var (
	ErrEngineStopped  = errors.New("queue engine is stopped")
	ErrUnknownHandler = errors.New("handler not registered")
)

// Handler processes one task payload.
type Handler = func(ctx context.Context, payload map[string]any) error

// Config configures an Engine.
type Config struct {
	WorkerCount int           `yaml:"worker_count" json:"worker_count"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	Backoff     time.Duration `yaml:"backoff" json:"backoff"`
}

// DefaultConfig returns two workers, three retries and a 500ms backoff step.
func DefaultConfig() Config {
	return Config{
		WorkerCount: 2,
		MaxRetries:  3,
		Backoff:     500 * time.Millisecond,
	}
}

// Engine runs registered handlers for tasks pulled from a Backend.
type Engine struct {
	backend Backend
	config  Config
	logger  *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	active    atomic.Int32
	enqueued  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// NewEngine creates an engine. A nil backend means a MemoryBackend.
func NewEngine(backend Backend, config Config, logger *zap.Logger) *Engine {
	if backend == nil {
		backend = NewMemoryBackend(0)
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backend:  backend,
		config:   config,
		logger:   logger.With(zap.String("component", "queue")),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler binds name to h, replacing an earlier registration.
func (e *Engine) RegisterHandler(name string, h Handler) {
	e.mu.Lock()
	e.handlers[name] = h
	e.mu.Unlock()
}

func (e *Engine) handler(name string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[name]
	return h, ok
}

// Start launches the workers. It is a no-op when already running. Workers
// outlive ctx and stop only through Stop.
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	for i := 0; i < e.config.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}
	e.logger.Info("queue engine started", zap.Int("workers", e.config.WorkerCount))
	return nil
}

// Stop cancels the workers and waits for them until ctx is done. Tasks in
// flight see a cancelled context.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("queue engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the workers are started.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Enqueue stores a task for the named handler and returns its id. An empty
// taskID is replaced by a UUID.
func (e *Engine) Enqueue(ctx context.Context, taskID, handlerName string, payload, metadata map[string]any) (string, error) {
	if _, ok := e.handler(handlerName); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownHandler, handlerName)
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[metaHandlerName] = handlerName

	if err := e.backend.Put(ctx, &Task{ID: taskID, Payload: payload, Metadata: meta}); err != nil {
		return "", err
	}
	e.enqueued.Add(1)
	return taskID, nil
}

func (e *Engine) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker", id))
	for {
		task, err := e.backend.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to fetch task", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.config.Backoff):
			}
			continue
		}

		e.active.Add(1)
		err = e.process(ctx, task)
		e.active.Add(-1)
		if err != nil {
			e.failed.Add(1)
			logger.Error("task failed", zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		e.completed.Add(1)
		logger.Debug("task processed", zap.String("task_id", task.ID))
	}
}

// process runs the task handler with linear backoff between attempts.
func (e *Engine) process(ctx context.Context, task *Task) error {
	h, ok := e.handler(task.HandlerName())
	if !ok {
		return fmt.Errorf("%w for task %s: %q", ErrUnknownHandler, task.ID, task.HandlerName())
	}
	attempts := 0
	for {
		err := safeRun(ctx, h, task.Payload)
		if err == nil {
			return nil
		}
		attempts++
		if attempts > e.config.MaxRetries || ctx.Err() != nil {
			return err
		}
		e.retried.Add(1)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(e.config.Backoff * time.Duration(attempts)):
		}
	}
}

func safeRun(ctx context.Context, h Handler, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

// Stats is a point-in-time view of the engine counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int64 `json:"queued"`
	Enqueued  int64 `json:"enqueued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retried   int64 `json:"retried"`
}

// Stats returns the engine counters. Queued is -1 when the backend cannot
// report its length.
func (e *Engine) Stats(ctx context.Context) Stats {
	queued, err := e.backend.Len(ctx)
	if err != nil {
		queued = -1
	}
	workers := 0
	if e.Running() {
		workers = e.config.WorkerCount
	}
	return Stats{
		Workers:   workers,
		Active:    int(e.active.Load()),
		Queued:    queued,
		Enqueued:  e.enqueued.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Retried:   e.retried.Load(),
	}
}
