package indexer

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// Engine pulls tasks from a metadata.Store's priority queue and runs them
// through a ProcessFunc with a bounded worker pool, exponential backoff on
// failure, and dead-letter escalation once the retry budget is exhausted.
type Engine struct {
	store   metadata.Store
	process ProcessFunc
	config  Config

	mu      sync.Mutex
	running bool
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an Engine. store is the durable task queue
// (internal/metadata); process performs the actual indexing work for one
// task.
func New(store metadata.Store, process ProcessFunc, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Engine{store: store, process: process, config: cfg}
}

// Enqueue adds a new task to the queue at the given priority.
func (e *Engine) Enqueue(ctx context.Context, filePath string, priority int) error {
	task := &metadata.IndexTask{
		ID:         uuid.NewString(),
		FilePath:   filePath,
		Priority:   priority,
		State:      metadata.TaskPending,
		EnqueuedAt: time.Now(),
		UpdatedAt:  time.Now(),
	}
	return e.store.EnqueueTask(ctx, task)
}

// Start runs the worker pool until ctx is cancelled or Stop is called.
// Non-blocking; call Wait to block for completion. Tasks a previous run
// left stranded in processing (a crash mid-task) are reset to pending
// first; failed tasks waiting out a backoff need no sweep, since their
// deadline is persisted and NextTask selects them once it passes.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	e.mu.Unlock()

	if n, err := e.store.RequeueProcessingTasks(ctx); err != nil {
		slog.Warn("indexer: failed to requeue stranded tasks", slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Info("indexer: requeued tasks stranded by a previous run", slog.Int("count", n))
	}

	go func() {
		defer close(e.done)
		defer func() {
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
		}()
		e.run(runCtx)
	}()
}

// Stop cancels the worker pool and blocks until it drains.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the engine stops (ctx cancellation or Stop()).
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pause suspends dequeuing of new tasks; tasks already claimed by a worker
// run to completion. Resume reverses this.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume reverses a prior Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// ClearDeadLetter empties the dead-letter queue, for the command surface's
// "clear_dead_letter" operation.
func (e *Engine) ClearDeadLetter(ctx context.Context) (int, error) {
	return e.store.ClearDeadLetter(ctx)
}

func (e *Engine) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.config.Workers)

	for {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return
		default:
		}

		if e.isPaused() {
			select {
			case <-gctx.Done():
				_ = g.Wait()
				return
			case <-time.After(e.config.PollInterval):
			}
			continue
		}

		task, err := e.store.NextTask(gctx)
		if err != nil {
			slog.Warn("indexer: failed to fetch next task", slog.String("error", err.Error()))
			select {
			case <-gctx.Done():
				_ = g.Wait()
				return
			case <-time.After(e.config.PollInterval):
			}
			continue
		}
		if task == nil {
			select {
			case <-gctx.Done():
				_ = g.Wait()
				return
			case <-time.After(e.config.PollInterval):
			}
			continue
		}

		// Claim the task before handing it to a worker. NextTask only
		// selects by state; this transition happens on the same
		// single-writer connection the store serializes through, so
		// no other caller of NextTask can observe it as pending again
		// until a worker later moves it out of Processing.
		if err := e.store.UpdateTaskState(gctx, task.ID, metadata.TaskProcessing, ""); err != nil {
			slog.Warn("indexer: failed to claim task",
				slog.String("task_id", task.ID), slog.String("error", err.Error()))
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			_ = g.Wait()
			return
		}

		g.Go(func() error {
			defer func() { <-sem }()
			e.runTask(gctx, task)
			return nil
		})
	}
}

// runTask executes process for one task and applies the retry/dead-letter
// state transitions.
func (e *Engine) runTask(ctx context.Context, task *metadata.IndexTask) {
	err := e.process(ctx, task)
	if err == nil {
		if setErr := e.store.UpdateTaskState(ctx, task.ID, metadata.TaskCompleted, ""); setErr != nil {
			slog.Warn("indexer: failed to mark task completed",
				slog.String("task_id", task.ID), slog.String("error", setErr.Error()))
		}
		return
	}

	task.RetryCount++
	if task.RetryCount > e.config.MaxRetries {
		if setErr := e.store.UpdateTaskState(ctx, task.ID, metadata.TaskDeadLetter, err.Error()); setErr != nil {
			slog.Warn("indexer: failed to dead-letter task",
				slog.String("task_id", task.ID), slog.String("error", setErr.Error()))
		}
		return
	}

	// The backoff deadline is persisted with the failure, not waited out
	// in memory: NextTask re-selects the task once the deadline passes,
	// and a restart mid-backoff changes nothing.
	delay := backoffDelay(task.RetryCount, e.config.MaxBackoff, err)
	if setErr := e.store.ScheduleTaskRetry(ctx, task.ID, err.Error(), time.Now().Add(delay)); setErr != nil {
		slog.Warn("indexer: failed to schedule task retry",
			slog.String("task_id", task.ID), slog.String("error", setErr.Error()))
	}
}

// backoffDelay computes the retry delay: a fixed short delay for a locked
// file (expected to clear on its own), otherwise 2^retryCount seconds
// capped at maxBackoff, with ±25% jitter to avoid synchronized retry
// storms across many tasks failing at once.
func backoffDelay(retryCount int, maxBackoff time.Duration, cause error) time.Duration {
	if errors.Is(cause, ErrFileLocked) {
		return FileLockedRetryDelay
	}

	base := time.Duration(math.Pow(2, float64(retryCount))) * time.Second
	if base > maxBackoff {
		base = maxBackoff
	}

	jitter := 0.75 + rand.Float64()*0.5 // 0.75x - 1.25x
	return time.Duration(float64(base) * jitter)
}

// Stats reports current queue depth by state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.Pending, err = e.store.CountTasksByState(ctx, metadata.TaskPending); err != nil {
		return s, err
	}
	if s.Processing, err = e.store.CountTasksByState(ctx, metadata.TaskProcessing); err != nil {
		return s, err
	}
	if s.Completed, err = e.store.CountTasksByState(ctx, metadata.TaskCompleted); err != nil {
		return s, err
	}
	if s.Failed, err = e.store.CountTasksByState(ctx, metadata.TaskFailed); err != nil {
		return s, err
	}
	if s.DeadLetter, err = e.store.CountTasksByState(ctx, metadata.TaskDeadLetter); err != nil {
		return s, err
	}
	return s, nil
}

// DeadLetter returns up to DefaultDeadLetterLimit dead-lettered tasks.
func (e *Engine) DeadLetter(ctx context.Context) ([]*metadata.IndexTask, error) {
	return e.store.ListDeadLetter(ctx, DefaultDeadLetterLimit)
}

// Requeue moves a dead-lettered task back to pending with a reset retry
// budget, for manual operator recovery (e.g. after fixing a permissions
// issue that caused repeated failures).
func (e *Engine) Requeue(ctx context.Context, taskID string) error {
	return e.store.RequeueDeadLetter(ctx, taskID)
}
