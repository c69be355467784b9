package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(workers, queueSize int) *WorkerPool {
	return NewWorkerPool(WorkerPoolOptions{
		Workers:   workers,
		QueueSize: queueSize,
		Log:       zerolog.Nop(),
	})
}

func TestWorkerPool_EnqueueBeforeStart(t *testing.T) {
	wp := newTestPool(2, 5)
	// Enqueue buffers until Start
	require.NoError(t, wp.Enqueue(NewTask("a", "a.wav", "/tmp/a.wav")))
	assert.Equal(t, 1, wp.Stats().Pending)
}

func TestWorkerPool_EnqueueFull(t *testing.T) {
	wp := newTestPool(0, 2) // 0 workers = nobody draining

	require.NoError(t, wp.Enqueue(Task{JobID: "1"}))
	require.NoError(t, wp.Enqueue(Task{JobID: "2"}))
	assert.ErrorIs(t, wp.Enqueue(Task{JobID: "3"}), ErrQueueFull)
}

func TestWorkerPool_Unbounded(t *testing.T) {
	wp := newTestPool(0, 0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, wp.Enqueue(Task{JobID: "x"}))
	}
	assert.Equal(t, 1000, wp.Stats().Pending)
}

func TestWorkerPool_EnqueueAfterStop(t *testing.T) {
	wp := newTestPool(1, 10)
	wp.Start(func(context.Context, Task) {})
	require.NoError(t, wp.Stop(context.Background()))

	assert.ErrorIs(t, wp.Enqueue(Task{JobID: "1"}), ErrStopped)
}

func TestWorkerPool_RunsEveryTaskOnce(t *testing.T) {
	wp := newTestPool(4, 0)

	var mu sync.Mutex
	seen := map[string]int{}
	wp.Start(func(ctx context.Context, task Task) {
		mu.Lock()
		seen[task.JobID]++
		mu.Unlock()
	})

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, wp.Enqueue(Task{JobID: fmt.Sprintf("job-%d", i)}))
	}
	require.NoError(t, wp.Stop(context.Background()))

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, id)
	}
	stats := wp.Stats()
	assert.Equal(t, int64(n), stats.Processed)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, int64(0), stats.Running)
}

func TestWorkerPool_StopDrainsPending(t *testing.T) {
	wp := newTestPool(1, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, wp.Enqueue(Task{JobID: "queued"}))
	}

	var ran atomic.Int32
	wp.Start(func(context.Context, Task) {
		time.Sleep(time.Millisecond)
		ran.Add(1)
	})
	require.NoError(t, wp.Stop(context.Background()))
	assert.Equal(t, int32(5), ran.Load())
}

func TestWorkerPool_StopDeadline(t *testing.T) {
	wp := newTestPool(1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	wp.Start(func(context.Context, Task) {
		close(started)
		<-release
	})
	require.NoError(t, wp.Enqueue(Task{JobID: "slow"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, wp.Stop(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, wp.Stop(context.Background()))
}

func TestWorkerPool_PanicDoesNotKillWorker(t *testing.T) {
	wp := newTestPool(1, 0)

	var ran atomic.Int32
	wp.Start(func(ctx context.Context, task Task) {
		if task.JobID == "bad" {
			panic("handler bug")
		}
		ran.Add(1)
	})

	require.NoError(t, wp.Enqueue(Task{JobID: "bad"}))
	require.NoError(t, wp.Enqueue(Task{JobID: "good"}))
	require.NoError(t, wp.Stop(context.Background()))

	assert.Equal(t, int32(1), ran.Load())
	assert.Equal(t, int64(1), wp.Stats().Panicked)
	assert.Equal(t, int64(2), wp.Stats().Processed)
}

func TestWorkerPool_EnqueueDoesNotBlockOnBusyWorkers(t *testing.T) {
	wp := newTestPool(1, 0)
	release := make(chan struct{})
	wp.Start(func(context.Context, Task) { <-release })
	defer func() {
		close(release)
		wp.Stop(context.Background())
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = wp.Enqueue(Task{JobID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked while the worker was busy")
	}
}

func TestNewTask(t *testing.T) {
	before := time.Now()
	task := NewTask("id", "clip.wav", "/tmp/upload-1.wav")
	assert.Equal(t, "id", task.JobID)
	assert.Equal(t, "clip.wav", task.Filename)
	assert.Equal(t, "/tmp/upload-1.wav", task.FilePath)
	assert.False(t, task.QueuedAt.Before(before))
}

func TestWorkerPool_HoldsPendingAndRunningPaths(t *testing.T) {
	wp := newTestPool(1, 0)
	require.NoError(t, wp.Enqueue(NewTask("a", "a.wav", "/staging/upload-a.wav")))
	require.NoError(t, wp.Enqueue(NewTask("b", "b.wav", "/staging/upload-b.wav")))

	assert.True(t, wp.Holds("/staging/upload-a.wav"))
	assert.True(t, wp.Holds("/staging/./upload-b.wav"))
	assert.False(t, wp.Holds("/staging/upload-c.wav"))

	started := make(chan string, 2)
	release := make(chan struct{})
	wp.Start(func(ctx context.Context, task Task) {
		started <- task.FilePath
		<-release
	})

	running := <-started
	assert.Equal(t, "/staging/upload-a.wav", running)
	assert.True(t, wp.Holds(running), "running task keeps its file")
	assert.True(t, wp.Holds("/staging/upload-b.wav"), "pending task keeps its file")

	close(release)
	require.NoError(t, wp.Stop(context.Background()))
	assert.False(t, wp.Holds("/staging/upload-a.wav"))
	assert.False(t, wp.Holds("/staging/upload-b.wav"))
}
