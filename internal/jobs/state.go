package jobs

import (
	"fmt"

	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// Mode selects how jobs are keyed and how long they live. The two modes are
// not interchangeable and are chosen once per deployment.
type Mode string

const (
	// ModeVolatile keys jobs by id, allows repeated filenames and removes a
	// terminal job from the store the first time it is polled.
	ModeVolatile Mode = "volatile"

	// ModeDurable enforces one job per filename, answers polls by filename or
	// id and keeps records for unlimited re-polling.
	ModeDurable Mode = "durable"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeVolatile, ModeDurable:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown job mode %q (want %q or %q)", s, ModeVolatile, ModeDurable)
}

// CanTransition reports whether a job may move from one status to another.
// queued -> processing -> {complete | error}; terminal statuses are final.
func CanTransition(from, to types.Status) bool {
	switch from {
	case types.StatusQueued:
		return to == types.StatusProcessing
	case types.StatusProcessing:
		return to == types.StatusComplete || to == types.StatusError
	default:
		return false
	}
}

// Outcome is the result of one engine invocation: a transcript or a failure message.
type Outcome struct {
	Transcript *types.Transcript
	Failure    string
}

// Succeeded wraps a transcript.
func Succeeded(t *types.Transcript) Outcome {
	return Outcome{Transcript: t}
}

// Failed wraps a failure message.
func Failed(msg string) Outcome {
	return Outcome{Failure: msg}
}

// OK reports whether the engine produced a transcript.
func (o Outcome) OK() bool {
	return o.Transcript != nil && o.Failure == ""
}

// Status is the terminal status this outcome leads to.
func (o Outcome) Status() types.Status {
	if o.OK() {
		return types.StatusComplete
	}
	return types.StatusError
}

// Result is the payload stored with the terminal status.
func (o Outcome) Result() *types.Result {
	if o.OK() {
		return types.CompleteResult(o.Transcript)
	}
	return types.ErrorResult(o.Failure)
}
