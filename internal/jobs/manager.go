package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/whisper-jobs/internal/metrics"
	"github.com/codebuildervaibhav/whisper-jobs/internal/queue"
	"github.com/codebuildervaibhav/whisper-jobs/internal/storage"
	"github.com/codebuildervaibhav/whisper-jobs/internal/transcription"
	"github.com/codebuildervaibhav/whisper-jobs/internal/types"
)

// Scheduler accepts tasks for background execution without blocking.
type Scheduler interface {
	Enqueue(task queue.Task) error
}

// Stager holds uploaded bytes on disk until the job that owns them finishes.
type Stager interface {
	Stage(filename string, r io.Reader) (string, error)
	Release(path string) error
}

// Options configures a Manager.
type Options struct {
	Mode      Mode
	Store     storage.JobStore
	Stager    Stager
	Scheduler Scheduler
	Engine    transcription.Engine
	Language  string
	Log       zerolog.Logger
}

// SubmitResult is returned to the caller of Submit.
type SubmitResult struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

// Stats counts jobs seen by this process.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Stuck     int64 `json:"stuck"`
}

// Manager owns the job lifecycle: it creates jobs, runs each one exactly once
// in the background and answers status polls. It is the only writer of job
// status.
type Manager struct {
	mode      Mode
	store     storage.JobStore
	consumer  storage.Consumer
	stager    Stager
	scheduler Scheduler
	engine    transcription.Engine
	language  string
	log       zerolog.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	stuck     atomic.Int64
}

// NewManager validates opts and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Store == nil || opts.Stager == nil || opts.Scheduler == nil || opts.Engine == nil {
		return nil, errors.New("jobs: store, stager, scheduler and engine are required")
	}

	m := &Manager{
		mode:      opts.Mode,
		store:     opts.Store,
		stager:    opts.Stager,
		scheduler: opts.Scheduler,
		engine:    opts.Engine,
		language:  opts.Language,
		log:       opts.Log,
	}
	if m.language == "" {
		m.language = transcription.DefaultLanguage
	}

	if m.mode == ModeVolatile {
		consumer, ok := opts.Store.(storage.Consumer)
		if !ok {
			return nil, fmt.Errorf("jobs: %s store cannot serve volatile mode", opts.Store.Name())
		}
		m.consumer = consumer
	}
	return m, nil
}

// Mode returns the configured mode.
func (m *Manager) Mode() Mode { return m.mode }

// Stats returns lifetime counters for this process.
func (m *Manager) Stats() Stats {
	return Stats{
		Submitted: m.submitted.Load(),
		Completed: m.completed.Load(),
		Failed:    m.failed.Load(),
		Stuck:     m.stuck.Load(),
	}
}

// Submit stages content, creates a queued job and schedules it. It returns as
// soon as the task is queued.
func (m *Manager) Submit(ctx context.Context, filename string, content io.Reader) (*SubmitResult, error) {
	if m.mode == ModeDurable {
		existing, err := m.store.GetByFilename(ctx, filename)
		switch {
		case err == nil:
			metrics.JobsDuplicateTotal.Inc()
			return nil, &DuplicateError{Filename: filename, JobID: existing.ID}
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("check filename: %w", err)
		}
	}

	path, err := m.stager.Stage(filename, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaging, err)
	}

	now := time.Now().UTC()
	job := &types.Job{
		ID:        uuid.New().String(),
		Filename:  filename,
		Status:    types.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	log := m.log.With().Str("job_id", job.ID).Str("filename", filename).Logger()

	if err := m.store.Create(ctx, job); err != nil {
		m.release(log, path)
		if errors.Is(err, storage.ErrDuplicateFilename) {
			// Lost a race with a concurrent submit of the same filename
			metrics.JobsDuplicateTotal.Inc()
			dup := &DuplicateError{Filename: filename}
			if existing, lookupErr := m.store.GetByFilename(ctx, filename); lookupErr == nil {
				dup.JobID = existing.ID
			}
			return nil, dup
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.scheduler.Enqueue(queue.NewTask(job.ID, filename, path)); err != nil {
		log.Error().Err(err).Msg("scheduler refused job")
		m.abandon(ctx, log, job.ID, fmt.Sprintf("failed to schedule transcription: %v", err))
		m.release(log, path)
		return nil, fmt.Errorf("%w: %w", ErrScheduling, err)
	}

	m.submitted.Add(1)
	metrics.JobsSubmittedTotal.Inc()
	log.Info().Str("path", path).Msg("job queued")

	return &SubmitResult{JobID: job.ID, Filename: filename}, nil
}

// Execute runs the transcription for one task and records its terminal
// status. The staged file is released on every exit path.
func (m *Manager) Execute(ctx context.Context, task queue.Task) {
	log := m.log.With().Str("job_id", task.JobID).Logger()
	defer m.release(log, task.FilePath)

	if err := m.transition(ctx, task.JobID, types.StatusQueued, types.StatusProcessing, nil); err != nil {
		// Without the processing edge the job cannot legally reach a terminal status
		log.Error().Err(err).Msg("failed to mark job processing; job left queued")
		m.markStuck()
		return
	}
	log.Info().Str("engine", m.engine.Name()).Msg("transcription started")

	outcome := m.run(ctx, task.FilePath)
	m.finish(ctx, log, task.JobID, outcome)
}

// run invokes the engine and converts its return value, or a panic, into an Outcome.
func (m *Manager) run(ctx context.Context, path string) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Failed(fmt.Sprintf("transcription engine panic: %v", r))
		}
		metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	}()

	transcript, err := m.engine.Transcribe(ctx, path, m.language)
	if err != nil {
		return Failed(err.Error())
	}
	if transcript == nil {
		return Failed("transcription engine returned no transcript")
	}
	return Succeeded(transcript)
}

// finish writes the terminal status. A store failure while saving a
// transcript is itself recorded as an error; if that write fails too the job
// is left in processing and only logged.
func (m *Manager) finish(ctx context.Context, log zerolog.Logger, id string, out Outcome) {
	err := m.transition(ctx, id, types.StatusProcessing, out.Status(), out.Result())
	if err == nil {
		m.count(log, out)
		return
	}

	if out.OK() {
		log.Error().Err(err).Msg("failed to store transcript")
		out = Failed(fmt.Sprintf("failed to store transcript: %v", err))
		err = m.transition(ctx, id, types.StatusProcessing, types.StatusError, out.Result())
		if err == nil {
			m.count(log, out)
			return
		}
	}

	log.Error().Err(err).Str("status", string(out.Status())).Msg("failed to record terminal status; job left processing")
	m.markStuck()
}

// abandon drives a job that will never run through processing to error.
func (m *Manager) abandon(ctx context.Context, log zerolog.Logger, id, reason string) {
	if err := m.transition(ctx, id, types.StatusQueued, types.StatusProcessing, nil); err != nil {
		log.Error().Err(err).Msg("failed to abandon job; job left queued")
		m.markStuck()
		return
	}
	m.finish(ctx, log, id, Failed(reason))
}

func (m *Manager) count(log zerolog.Logger, out Outcome) {
	metrics.JobsFinishedTotal.WithLabelValues(string(out.Status())).Inc()
	if out.OK() {
		m.completed.Add(1)
		log.Info().
			Int("segments", len(out.Transcript.Segments)).
			Float64("duration", out.Transcript.Duration).
			Msg("transcription complete")
		return
	}
	m.failed.Add(1)
	log.Warn().Str("error", out.Failure).Msg("transcription failed")
}

func (m *Manager) markStuck() {
	m.stuck.Add(1)
	metrics.JobsStuckTotal.Inc()
}

func (m *Manager) transition(ctx context.Context, id string, from, to types.Status, result *types.Result) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return m.store.Transition(ctx, id, from, to, result)
}

func (m *Manager) release(log zerolog.Logger, path string) {
	if err := m.stager.Release(path); err != nil {
		log.Warn().Err(err).Msg("failed to release staged file")
		return
	}
	log.Debug().Str("path", path).Msg("staged file released")
}

// Status returns the current record for key. In volatile mode key is a job id
// and a terminal record is removed as it is returned, so it can be read once.
// In durable mode key is matched against filenames first, then ids.
func (m *Manager) Status(ctx context.Context, key string) (*types.Job, error) {
	var (
		job *types.Job
		err error
	)

	switch m.mode {
	case ModeVolatile:
		job, err = m.consumer.Consume(ctx, key)
		if err == nil && job.Status.Terminal() {
			m.log.Debug().Str("job_id", job.ID).Msg("terminal job delivered and removed")
		}
	default:
		job, err = m.store.GetByFilename(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			job, err = m.store.Get(ctx, key)
		}
	}

	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup job: %w", err)
	}
	return job, nil
}
