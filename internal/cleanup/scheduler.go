package cleanup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler removes staged files that outlived the job that owned them, such
// as uploads left behind by a crash between staging and execution.
type Scheduler struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	inUse    func(path string) bool
	log      zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewScheduler creates a new cleanup scheduler. Files for which inUse returns
// true are never removed, however old; inUse may be nil.
func NewScheduler(dir string, interval, maxAge time.Duration, inUse func(path string) bool, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
		inUse:    inUse,
		log:      log,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start runs one sweep immediately, then one per interval until Stop
func (s *Scheduler) Start() {
	s.Sweep()

	if s.interval <= 0 {
		s.log.Info().Msg("periodic staging cleanup disabled")
		return
	}
	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("cleanup scheduler started")
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.log.Info().Msg("cleanup scheduler stopped")
	})
}

// Sweep removes files older than maxAge from the staging directory and
// returns how many were deleted and their total size.
func (s *Scheduler) Sweep() (int, int64) {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if s.inUse != nil && s.inUse(path) {
			s.log.Debug().Str("file", filepath.Base(path)).Dur("age", age.Round(time.Minute)).Msg("stale file still owned by a job; kept")
			return nil
		}
		size := info.Size()
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to delete stale staged file")
			return nil
		}
		deletedCount++
		deletedSize += size
		s.log.Debug().
			Str("file", filepath.Base(path)).
			Dur("age", age.Round(time.Minute)).
			Int64("size_kb", size/1024).
			Msg("deleted stale staged file")
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("error during cleanup")
	}

	if deletedCount > 0 {
		s.log.Info().
			Int("files", deletedCount).
			Float64("freed_mb", float64(deletedSize)/(1024*1024)).
			Msg("cleanup complete")
	}
	return deletedCount, deletedSize
}
