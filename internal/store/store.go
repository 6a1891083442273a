package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/makeasinger/stems/internal/model"
)

var (
	// ErrNotFound is returned when no job matches the lookup
	ErrNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when updating a COMPLETED or FAILED job
	ErrJobTerminal = errors.New("job already finished")
)

// InFlightError reports that the subject already has a PENDING or PROCESSING job
type InFlightError struct {
	ExistingJobID string
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("a separation job is already in progress for this subject: %s", e.ExistingJobID)
}

// UpdateFunc mutates a job in place. Returning an error aborts the update.
type UpdateFunc func(job *model.SeparationJob) error

// JobStore persists separation jobs.
//
// Create enforces the one-in-flight-job-per-subject rule atomically, so two
// concurrent submissions for the same subject can never both be admitted.
// Jobs handed out are copies; mutations go through Update.
type JobStore interface {
	Create(ctx context.Context, job *model.SeparationJob) error
	Get(ctx context.Context, id string) (*model.SeparationJob, error)
	LatestBySubject(ctx context.Context, subjectID string) (*model.SeparationJob, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.SeparationJob, error)
}
