package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/service"
)

const (
	TaskTypeSeparate = "stems:separate"
	QueueStems       = "stems"
)

// TaskEnqueuer is the subset of *asynq.Client used by the launcher
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqLauncher hands separation jobs to the asynq worker server
type AsynqLauncher struct {
	enqueuer TaskEnqueuer
	timeout  time.Duration
}

// NewAsynqLauncher creates a launcher; timeout bounds each task's run, 0 uses the asynq default
func NewAsynqLauncher(enqueuer TaskEnqueuer, timeout time.Duration) *AsynqLauncher {
	return &AsynqLauncher{
		enqueuer: enqueuer,
		timeout:  timeout,
	}
}

// NewSeparateTask builds the asynq task for a separation job
func NewSeparateTask(task model.SeparationTask) (*asynq.Task, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeSeparate, data), nil
}

// Launch enqueues the job. Failed jobs are never retried; callers resubmit instead.
func (l *AsynqLauncher) Launch(ctx context.Context, task model.SeparationTask) error {
	t, err := NewSeparateTask(task)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueStems),
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if l.timeout > 0 {
		opts = append(opts, asynq.Timeout(l.timeout))
	}

	info, err := l.enqueuer.EnqueueContext(ctx, t, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Printf("[Stems] Job %s enqueued as task %s", task.JobID, info.ID)
	return nil
}

// SeparationWorker runs queued separation jobs
type SeparationWorker struct {
	runner service.JobRunner
}

// NewSeparationWorker creates a new separation worker
func NewSeparationWorker(runner service.JobRunner) *SeparationWorker {
	return &SeparationWorker{runner: runner}
}

// ProcessTask handles separation task processing. The job record already
// carries the failure, so errors are returned with asynq.SkipRetry.
func (w *SeparationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task model.SeparationTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Starting separation job: %s", task.JobID)

	if err := w.runner.Run(ctx, task); err != nil {
		return fmt.Errorf("separation job %s failed: %v: %w", task.JobID, err, asynq.SkipRetry)
	}

	log.Printf("Separation job %s completed", task.JobID)
	return nil
}
