package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

var (
	// ErrNotFound is returned when no job matches the requested key.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateFilename is returned by stores that enforce filename
	// uniqueness when a job with the same filename already exists.
	ErrDuplicateFilename = errors.New("duplicate filename")

	// ErrStaleTransition is returned when a job is not in the status the
	// caller expected to move it from.
	ErrStaleTransition = errors.New("stale status transition")
)

// JobStore persists job records. Every method may be a network call and must
// be treated as fallible.
type JobStore interface {
	// Create inserts a new job record.
	Create(ctx context.Context, job *types.Job) error

	// Get returns the job with the given id.
	Get(ctx context.Context, id string) (*types.Job, error)

	// GetByFilename returns the job submitted under filename.
	GetByFilename(ctx context.Context, filename string) (*types.Job, error)

	// Transition moves a job from one status to another in a single atomic
	// step and attaches result (nil for non-terminal statuses).
	Transition(ctx context.Context, id string, from, to types.Status, result *types.Result) error

	// Name identifies the backend: "memory", "sqlite" or "postgres".
	Name() string

	Close() error
}

// Consumer is implemented by volatile stores that hand a terminal record out
// once and forget it.
type Consumer interface {
	// Consume returns the job with the given id and, if it is terminal,
	// removes it in the same critical section.
	Consume(ctx context.Context, id string) (*types.Job, error)
}

func encodeResult(r *types.Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return b, nil
}

func decodeResult(b []byte) (*types.Result, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var r types.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}
