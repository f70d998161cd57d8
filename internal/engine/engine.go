package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"batchplane/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Store is the transactional surface the engine depends on.
type Store interface {
	store.Dispatcher
	store.CompensationLog
}

// Config holds engine tuning knobs.
type Config struct {
	// Owner identifies this worker process in claimed rows. Defaults to
	// "local#<pid>".
	Owner string

	// PollInterval is the period between engine ticks (default 2s).
	PollInterval time.Duration

	// Batch is the maximum number of dispatches per tick (default 16).
	Batch int

	// PoolSize bounds concurrent workers (default max(16, cores*8)).
	// When all slots are busy the poller runs the task inline, which
	// backpressures polling naturally.
	PoolSize int
}

// Engine drives the dispatch pipeline: claim one ready task, persist a run,
// hand the pair to a worker, write the outcome back.
type Engine struct {
	store        Store
	runners      *Registry
	compensators *CompensatorRegistry
	cfg          Config
	log          *slog.Logger

	sem     chan struct{}
	running sync.Map // task id -> struct{}
	cancels sync.Map // task id -> context.CancelFunc
	wg      sync.WaitGroup

	tracer     trace.Tracer
	dispatched metric.Int64Counter
	completed  metric.Int64Counter
}

// New creates an engine. Zero config fields get defaults.
func New(s Store, runners *Registry, compensators *CompensatorRegistry, cfg Config, log *slog.Logger) *Engine {
	if cfg.Owner == "" {
		cfg.Owner = fmt.Sprintf("local#%d", os.Getpid())
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 16
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU() * 8
		if cfg.PoolSize < 16 {
			cfg.PoolSize = 16
		}
	}
	if log == nil {
		log = slog.Default()
	}

	meter := otel.Meter("batchplane-engine")
	dispatched, _ := meter.Int64Counter("batchplane.tasks.dispatched",
		metric.WithDescription("Tasks submitted to the worker pool"))
	completed, _ := meter.Int64Counter("batchplane.tasks.completed",
		metric.WithDescription("Tasks finished, by final status"))

	return &Engine{
		store:        s,
		runners:      runners,
		compensators: compensators,
		cfg:          cfg,
		log:          log,
		sem:          make(chan struct{}, cfg.PoolSize),
		tracer:       otel.Tracer("batchplane-engine"),
		dispatched:   dispatched,
		completed:    completed,
	}
}

// Runners exposes the runner registry for startup wiring.
func (e *Engine) Runners() *Registry {
	return e.runners
}

// Compensators exposes the compensator registry for startup wiring.
func (e *Engine) Compensators() *CompensatorRegistry {
	return e.compensators
}

// Run ticks the poll loop until ctx is cancelled, then drains in-flight
// workers.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "owner", e.cfg.Owner,
		"poll_interval", e.cfg.PollInterval, "batch", e.cfg.Batch, "pool", e.cfg.PoolSize)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopping, waiting for running tasks")
			e.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			for i := 0; i < e.cfg.Batch; i++ {
				claimed, err := e.PollAndRunOnce(ctx)
				if err != nil {
					e.log.Error("poll failed", "error", err)
					break
				}
				if !claimed {
					break
				}
			}
		}
	}
}

// PollAndRunOnce claims at most one ready task, persists its run and submits
// it to the pool. Returns whether a task was claimed.
func (e *Engine) PollAndRunOnce(ctx context.Context) (bool, error) {
	task, err := e.store.ClaimOne(ctx, e.cfg.Owner)
	if err != nil {
		return false, fmt.Errorf("claim failed: %w", err)
	}
	if task == nil {
		return false, nil
	}

	run, err := e.store.CreateRun(ctx, task.ID, time.Now())
	if err != nil {
		return true, fmt.Errorf("create run for task %d failed: %w", task.ID, err)
	}

	payload := strings.TrimSpace(task.Payload)
	if payload == "" {
		payload = "{}"
	}

	e.log.Info("submitting task to pool", "task_id", task.ID, "type", task.Type, "run_id", run.ID)
	e.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("task.type", task.Type)))

	// The execution context is detached from the poll context so a process
	// shutdown drains workers instead of flagging them as interrupted.
	execCtx, cancel := context.WithCancel(context.Background())
	e.cancels.Store(task.ID, cancel)

	e.wg.Add(1)
	select {
	case e.sem <- struct{}{}:
		go func() {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.executeAndComplete(execCtx, task.ID, task.Type, payload, run.ID)
		}()
	default:
		// pool saturated: the poller executes inline (caller-runs)
		func() {
			defer e.wg.Done()
			e.executeAndComplete(execCtx, task.ID, task.Type, payload, run.ID)
		}()
	}

	return true, nil
}

// IsRunning reports whether the task executes on this process right now.
func (e *Engine) IsRunning(taskID int64) bool {
	_, ok := e.running.Load(taskID)
	return ok
}

// InterruptIfRunning cancels the worker context of a running task. The
// worker observes the cancellation at its next check or blocking point,
// records CANCELED and skips compensation.
func (e *Engine) InterruptIfRunning(taskID int64) bool {
	v, ok := e.cancels.Load(taskID)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// executeAndComplete is the worker procedure. The completion write-back in
// the deferred block runs on every path, including panics.
func (e *Engine) executeAndComplete(ctx context.Context, taskID int64, typeCode, payload string, runID int64) {
	e.running.Store(taskID, struct{}{})
	ctx = store.WithRun(ctx, runID)

	ctx, span := e.tracer.Start(ctx, "execute_task", trace.WithAttributes(
		attribute.Int64("task.id", taskID),
		attribute.String("task.type", typeCode),
		attribute.Int64("run.id", runID),
	))

	var succeeded bool
	var errMsg string
	var finalStatus store.TaskStatus

	defer func() {
		// write-back uses a fresh context: the execution context may have
		// been cancelled by an interrupt
		wctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.store.Complete(wctx, taskID, runID, succeeded, errMsg, time.Now(), finalStatus); err != nil {
			e.log.Error("completion write-back failed", "task_id", taskID, "run_id", runID, "error", err)
		}

		e.running.Delete(taskID)
		if v, ok := e.cancels.LoadAndDelete(taskID); ok {
			v.(context.CancelFunc)()
		}

		status := string(finalStatus)
		if status == "" {
			status = string(store.TaskStatusFailed)
		}
		e.completed.Add(wctx, 1, metric.WithAttributes(
			attribute.String("task.type", typeCode),
			attribute.String("task.status", status),
		))
		span.SetAttributes(attribute.String("task.status", status))
		span.End()
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("task panicked", "task_id", taskID, "panic", r)
				errMsg = trimErr(fmt.Sprint(r))
				if finalStatus == "" {
					finalStatus = store.TaskStatusFailed
				}
				e.replayWithErrorCapture(taskID, runID, &errMsg)
			}
		}()

		e.log.Info("start executing task", "task_id", taskID, "type", typeCode, "run_id", runID)

		canceled, err := e.store.IsCancelRequested(ctx, taskID)
		if err != nil {
			errMsg = trimErr(err.Error())
			finalStatus = store.TaskStatusFailed
			return
		}
		if canceled {
			finalStatus = store.TaskStatusCanceled
			errMsg = "Canceled before start"
			return
		}

		runner, ok := e.runners.Get(typeCode)
		if !ok {
			errMsg = "No runner for type=" + typeCode
			finalStatus = store.TaskStatusFailed
			e.replayWithErrorCapture(taskID, runID, &errMsg)
			return
		}

		canceled, err = e.store.IsCancelRequested(ctx, taskID)
		if err != nil {
			errMsg = trimErr(err.Error())
			finalStatus = store.TaskStatusFailed
			return
		}
		if canceled {
			finalStatus = store.TaskStatusCanceled
			errMsg = "Canceled right before start"
			return
		}
		if ctx.Err() != nil {
			finalStatus = store.TaskStatusCanceled
			errMsg = "Interrupted before start"
			return
		}

		if !json.Valid([]byte(payload)) {
			errMsg = "invalid task payload JSON"
			finalStatus = store.TaskStatusFailed
			e.replayWithErrorCapture(taskID, runID, &errMsg)
			return
		}

		err = runner.Run(ctx, json.RawMessage(payload))
		if err == nil {
			succeeded = true
			finalStatus = store.TaskStatusSucceed
			return
		}

		if ctx.Err() != nil {
			// cooperative interrupt observed mid-run; no compensation
			e.log.Warn("task interrupted", "task_id", taskID)
			finalStatus = store.TaskStatusCanceled
			errMsg = "Interrupted during execution"
			return
		}

		e.log.Error("task failed", "task_id", taskID, "error", err)
		errMsg = trimErr(err.Error())
		if finalStatus == "" {
			finalStatus = store.TaskStatusFailed
		}
		e.replayWithErrorCapture(taskID, runID, &errMsg)
	}()
}

// replayWithErrorCapture runs the compensation replay and appends any error it
// returns (a failed log fetch or the collected compensator failures) to the
// task message as "CompensationError: ...". The final status is not changed.
func (e *Engine) replayWithErrorCapture(taskID, runID int64, errMsg *string) {
	rctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	rctx = store.WithRun(rctx, runID)

	if cerr := e.compensateRun(rctx, runID); cerr != nil {
		trimmed := trimErr(cerr.Error())
		e.log.Error("compensation replay errored", "task_id", taskID, "run_id", runID, "error", trimmed)
		if *errMsg != "" {
			*errMsg += " | "
		}
		*errMsg += "CompensationError: " + trimmed
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// trimErr collapses whitespace and caps the message below the task message
// column limit.
func trimErr(m string) string {
	m = strings.TrimSpace(whitespaceRe.ReplaceAllString(m, " "))
	if len(m) > 1900 {
		return m[:1900]
	}
	return m
}
