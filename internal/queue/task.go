package queue

import (
	"context"
	"time"
)

// Task is one scheduled unit of transcription work
type Task struct {
	JobID    string
	Filename string
	FilePath string
	QueuedAt time.Time
}

// Handler runs a task. It is called at most once per enqueued task.
type Handler func(ctx context.Context, task Task)

// NewTask creates a task stamped with the current time
func NewTask(jobID, filename, filePath string) Task {
	return Task{
		JobID:    jobID,
		Filename: filename,
		FilePath: filePath,
		QueuedAt: time.Now(),
	}
}
