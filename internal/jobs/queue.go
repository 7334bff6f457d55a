package jobs

// queue.go dispatches import jobs through Redis with asynq, so any number
// of worker processes can share the load. The job record stays the source
// of truth: a task only carries the job id, and the runner's claim decides
// which delivery actually processes it.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// TaskRunImport is the asynq task type for import jobs.
const TaskRunImport = "import:run"

// DefaultQueue is used when no queue name is configured.
const DefaultQueue = "imports"

type runImportPayload struct {
	JobID string `json:"jobId"`
}

// QueueDispatcher enqueues jobs as asynq tasks.
type QueueDispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
}

// NewQueueDispatcher creates a dispatcher for the given Redis connection.
// timeout bounds a task's processing on the worker side.
func NewQueueDispatcher(redisOpt asynq.RedisClientOpt, queue string, timeout time.Duration) *QueueDispatcher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueueDispatcher{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     queue,
		timeout:   timeout,
	}
}

// Dispatch enqueues jobID. The task id is the job id, so a job already
// waiting in the queue is not enqueued twice. A finished task left under
// the same id (archived after a failed run) is replaced, since the job
// record says the job still needs a run.
func (d *QueueDispatcher) Dispatch(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(runImportPayload{JobID: jobID})
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(d.queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	task := asynq.NewTask(TaskRunImport, payload)
	_, err = d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		replaced, err := d.clearFinished(jobID)
		if err != nil {
			return core.NewInfrastructure("inspect import task", err)
		}
		if !replaced {
			slog.Debug("import job already enqueued", "job_id", jobID)
			return nil
		}
		_, err = d.client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
	}
	if err != nil {
		return core.NewInfrastructure("enqueue import job", err)
	}
	return nil
}

// clearFinished deletes the task stored under jobID when it will never run
// again. It reports whether the id is free for a new task.
func (d *QueueDispatcher) clearFinished(jobID string) (bool, error) {
	info, err := d.inspector.GetTaskInfo(d.queue, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
	default:
		return false, nil
	}

	slog.Info("replacing finished import task", "job_id", jobID, "state", info.State.String(), "last_error", info.LastErr)
	err = d.inspector.DeleteTask(d.queue, jobID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, err
	}
	return true, nil
}

// Close releases the Redis connections.
func (d *QueueDispatcher) Close() error {
	return errors.Join(d.inspector.Close(), d.client.Close())
}

// QueueWorkerConfig configures a QueueWorker.
type QueueWorkerConfig struct {
	Concurrency int
	Queue       string
}

// QueueWorker consumes import tasks and hands them to a Runner.
type QueueWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewQueueWorker creates a worker bound to runner.
func NewQueueWorker(redisOpt asynq.RedisClientOpt, runner *Runner, cfg QueueWorkerConfig) *QueueWorker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultPoolSize
	}
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		LogLevel:    asynq.WarnLevel,
	})

	mux := asynq.NewServeMux()
	mux.Use(loggingMiddleware)
	mux.HandleFunc(TaskRunImport, runImportHandler(runner))

	return &QueueWorker{server: server, mux: mux}
}

// Start begins processing in the background.
func (w *QueueWorker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown waits for in-flight tasks and stops the worker.
func (w *QueueWorker) Shutdown() {
	w.server.Shutdown()
}

func runImportHandler(runner *Runner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p runImportPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", TaskRunImport, err, asynq.SkipRetry)
		}

		err := runner.Run(ctx, p.JobID)
		if errors.Is(err, core.ErrJobNotClaimable) || errors.Is(err, core.ErrJobNotFound) {
			slog.Debug("import task dropped", "job_id", p.JobID, "reason", err)
			return nil
		}
		return err
	}
}

func loggingMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		id, _ := asynq.GetTaskID(ctx)
		err := next.ProcessTask(ctx, t)
		slog.Debug("task processed",
			"task_type", t.Type(),
			"task_id", id,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return err
	})
}
