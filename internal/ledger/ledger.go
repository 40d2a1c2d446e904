// Package ledger stores enhancement job records keyed by job id. The ledger is
// the single source of truth for job status: the API creates records, workers
// move them forward, and every backend enforces create-only inserts and
// monotonic status transitions with its own atomic primitives.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/enhancely/api/internal/model"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Transition describes a worker-driven status change.
type Transition struct {
	To            model.JobStatus
	ResultLocator string // required when To is completed
	Detail        string // recorded when To is failed
	At            time.Time
}

// Processing returns the transition a worker applies when it picks up a job.
func Processing(at time.Time) Transition {
	return Transition{To: model.JobStatusProcessing, At: at}
}

// Completed returns the transition recording a finished job and its result.
func Completed(resultLocator string, at time.Time) Transition {
	return Transition{To: model.JobStatusCompleted, ResultLocator: resultLocator, At: at}
}

// Failed returns the transition recording a failed job.
func Failed(detail string, at time.Time) Transition {
	return Transition{To: model.JobStatusFailed, Detail: detail, At: at}
}

// Validate checks the transition on its own, independent of the stored record.
func (t Transition) Validate() error {
	switch t.To {
	case model.JobStatusProcessing, model.JobStatusFailed:
	case model.JobStatusCompleted:
		if t.ResultLocator == "" {
			return fmt.Errorf("%w: completed requires a result locator", ErrInvalidTransition)
		}
	default:
		return fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, t.To)
	}
	return nil
}

// Apply mutates job according to t. The job is left untouched on error.
func (t Transition) Apply(job *model.Job) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if !job.Status.CanTransition(t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, t.To)
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	job.Status = t.To
	switch t.To {
	case model.JobStatusProcessing:
		job.StartedAt = &at
	case model.JobStatusCompleted:
		locator := t.ResultLocator
		job.ResultLocator = &locator
		job.CompletedAt = &at
	case model.JobStatusFailed:
		detail := t.Detail
		job.Error = &detail
		job.CompletedAt = &at
	}
	return nil
}

func validateNew(job *model.Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is required")
	}
	if job.Status != model.JobStatusPending {
		return fmt.Errorf("new jobs must be %s, got %q", model.JobStatusPending, job.Status)
	}
	if job.HasResult() {
		return errors.New("new jobs cannot carry a result locator")
	}
	return nil
}
