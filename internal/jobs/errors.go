package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateSubmission is matched by *DuplicateError.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrStaging is returned when the upload could not be written to disk.
	// No job is created.
	ErrStaging = errors.New("failed to stage upload")

	// ErrScheduling is returned when the worker pool refused the job.
	ErrScheduling = errors.New("failed to schedule job")

	// ErrNotFound is returned by Status when no job matches the key.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned for edges outside the job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DuplicateError reports a filename that already has a job. JobID is the
// existing job and may be empty if it vanished between the conflict and the lookup.
type DuplicateError struct {
	Filename string
	JobID    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("A job with the filename '%s' already exists.", e.Filename)
}

// Is makes errors.Is(err, ErrDuplicateSubmission) match.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateSubmission
}
