package queue

import (
	"context"
	"errors"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/whisper-jobs/internal/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when a bounded queue has no room.
	ErrQueueFull = errors.New("job queue is full")

	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("worker pool stopped")
)

// WorkerPoolOptions configures the worker pool.
type WorkerPoolOptions struct {
	Workers   int
	QueueSize int // 0 means unbounded
	Log       zerolog.Logger
}

// QueueStats reports the current state of the queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Running   int64 `json:"running"`
	Processed int64 `json:"processed"`
	Panicked  int64 `json:"panicked"`
}

// WorkerPool manages a pool of workers processing transcription tasks
type WorkerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Task
	active  map[string]int // staged paths of running tasks
	stopped bool

	opts   WorkerPoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running   atomic.Int64
	processed atomic.Int64
	panicked  atomic.Int64
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(opts WorkerPoolOptions) *WorkerPool {
	if opts.Workers < 0 {
		opts.Workers = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	wp := &WorkerPool{
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
		active: make(map[string]int),
	}
	wp.cond = sync.NewCond(&wp.mu)
	return wp
}

// Start launches the worker goroutines, each running handler for the tasks it dequeues
func (wp *WorkerPool) Start(handler Handler) {
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i, handler)
	}
	wp.log.Info().Int("workers", wp.opts.Workers).Int("queue_size", wp.opts.QueueSize).Msg("worker pool started")
}

// Stop refuses new tasks, lets workers drain what is already queued and waits
// for them. It returns ctx.Err() if ctx expires first.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	wp.stopped = true
	wp.cond.Broadcast()
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.log.Info().
			Int64("processed", wp.processed.Load()).
			Int64("panicked", wp.panicked.Load()).
			Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		wp.log.Warn().Int("pending", wp.pendingLen()).Msg("worker pool did not drain before deadline")
		return ctx.Err()
	}
}

// Enqueue adds a task to the queue without blocking
func (wp *WorkerPool) Enqueue(task Task) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrStopped
	}
	if wp.opts.QueueSize > 0 && len(wp.pending) >= wp.opts.QueueSize {
		return ErrQueueFull
	}
	if task.QueuedAt.IsZero() {
		task.QueuedAt = time.Now()
	}
	wp.pending = append(wp.pending, task)
	metrics.QueuePending.Set(float64(len(wp.pending)))
	wp.cond.Signal()

	wp.log.Debug().Str("job_id", task.JobID).Str("filename", task.Filename).Msg("task enqueued")
	return nil
}

// Stats returns current queue statistics.
func (wp *WorkerPool) Stats() QueueStats {
	return QueueStats{
		Pending:   wp.pendingLen(),
		Running:   wp.running.Load(),
		Processed: wp.processed.Load(),
		Panicked:  wp.panicked.Load(),
	}
}

// Holds reports whether path belongs to a task that is pending or running.
func (wp *WorkerPool) Holds(path string) bool {
	path = filepath.Clean(path)

	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.active[path] > 0 {
		return true
	}
	for _, task := range wp.pending {
		if task.FilePath != "" && filepath.Clean(task.FilePath) == path {
			return true
		}
	}
	return false
}

func (wp *WorkerPool) pendingLen() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.pending)
}

// next blocks until a task is available. It returns false once the pool is
// stopped and the queue is empty.
func (wp *WorkerPool) next() (Task, bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	for len(wp.pending) == 0 && !wp.stopped {
		wp.cond.Wait()
	}
	if len(wp.pending) == 0 {
		return Task{}, false
	}
	task := wp.pending[0]
	wp.pending[0] = Task{}
	wp.pending = wp.pending[1:]
	if task.FilePath != "" {
		wp.active[filepath.Clean(task.FilePath)]++
	}
	metrics.QueuePending.Set(float64(len(wp.pending)))
	return task, true
}

func (wp *WorkerPool) done(task Task) {
	if task.FilePath == "" {
		return
	}
	path := filepath.Clean(task.FilePath)

	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.active[path]--; wp.active[path] <= 0 {
		delete(wp.active, path)
	}
}

// worker processes tasks from the queue
func (wp *WorkerPool) worker(id int, handler Handler) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		task, ok := wp.next()
		if !ok {
			log.Debug().Msg("worker exiting")
			return
		}
		wp.run(log, handler, task)
	}
}

func (wp *WorkerPool) run(log zerolog.Logger, handler Handler, task Task) {
	wp.running.Add(1)
	defer func() {
		wp.done(task)
		wp.running.Add(-1)
		wp.processed.Add(1)
		if r := recover(); r != nil {
			wp.panicked.Add(1)
			log.Error().
				Str("job_id", task.JobID).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("panic processing task")
		}
	}()

	log.Debug().
		Str("job_id", task.JobID).
		Dur("waited", time.Since(task.QueuedAt)).
		Msg("processing task")
	handler(wp.ctx, task)
}
