package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/makeasinger/stems/internal/model"
)

// Launcher starts the background pipeline for a job without waiting for it
type Launcher interface {
	Launch(ctx context.Context, task model.SeparationTask) error
}

// JobRunner runs the pipeline for one job
type JobRunner interface {
	Run(ctx context.Context, task model.SeparationTask) error
}

// GoroutineLauncher runs each job in its own goroutine, detached from the
// submitting request and bounded by an overall timeout.
type GoroutineLauncher struct {
	runner  JobRunner
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewGoroutineLauncher creates an in-process launcher; a timeout of 0 means no limit
func NewGoroutineLauncher(runner JobRunner, timeout time.Duration) *GoroutineLauncher {
	return &GoroutineLauncher{
		runner:  runner,
		timeout: timeout,
	}
}

// Launch starts the job and returns immediately
func (l *GoroutineLauncher) Launch(_ context.Context, task model.SeparationTask) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx := context.Background()
		if l.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}

		if err := l.runner.Run(ctx, task); err != nil {
			log.Printf("[Stems] Background job %s ended with error: %v", task.JobID, err)
		}
	}()
	return nil
}

// Wait blocks until all launched jobs have returned
func (l *GoroutineLauncher) Wait() {
	l.wg.Wait()
}
