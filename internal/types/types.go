package types

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a transcription job
type Status string

// Job status constants
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition can follow s
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Job is one submitted transcription request and its tracked lifecycle
type Job struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    Status    `json:"status"`
	Result    *Result   `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is the payload attached to a job once it reaches a terminal status.
// A complete job carries the transcript fields, a failed one only Error.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
	Error    string    `json:"error,omitempty"`
}

// MarshalJSON writes one of two shapes: {"error"} for a failure, otherwise
// {"text", "language", "segments"} with segments always present.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	segments := r.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return json.Marshal(struct {
		Text     string    `json:"text"`
		Language string    `json:"language,omitempty"`
		Segments []Segment `json:"segments"`
	}{r.Text, r.Language, segments})
}

// Transcript represents the output from Whisper
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Word is a single recognised word with its timing and confidence
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// CompleteResult builds the result stored on a complete job
func CompleteResult(t *Transcript) *Result {
	segments := t.Segments
	if segments == nil {
		segments = []Segment{}
	}
	return &Result{
		Text:     t.Text,
		Language: t.Language,
		Segments: segments,
	}
}

// DefaultFailure is stored when a failure carries no message of its own.
const DefaultFailure = "transcription failed"

// ErrorResult builds the result stored on a failed job. The message is never empty.
func ErrorResult(msg string) *Result {
	if msg == "" {
		msg = DefaultFailure
	}
	return &Result{Error: msg}
}
