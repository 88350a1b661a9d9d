// Package logging implements the async, non-blocking log sink: a single
// background worker drains a bounded queue and writes to a hybrid
// size-and-time rotating file, with startup cleanup of stale rotated files.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationInterval selects the time dimension of the hybrid rotation policy.
type RotationInterval string

const (
	RotateDaily   RotationInterval = "daily"
	RotateWeekly  RotationInterval = "weekly"
	RotateMonthly RotationInterval = "monthly"
	RotateNone    RotationInterval = ""
)

const (
	queueCapacity  = 1000
	flushBatchSize = 50
	flushInterval  = 100 * time.Millisecond
	shutdownDrain  = 5 * time.Second
)

// Config configures a Sink.
type Config struct {
	Dir              string
	BaseName         string // e.g. "waterbalance.log"
	MaxBytes         int    // size rotation threshold; 0 or less uses 100 MB
	Interval         RotationInterval
	BackupCount      int
	RetentionDays    int // startup cleanup horizon; 0 disables cleanup
}

// Sink is an io.Writer that never blocks the producer: records are queued
// on a bounded channel and a single worker goroutine performs the actual
// (potentially slow) file I/O and rotation.
type Sink struct {
	cfg     Config
	queue   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	file    *lumberjack.Logger
	lastRot time.Time
	mu      sync.Mutex // guards lastRot/rotation bookkeeping from the worker only
}

// NewSink constructs and starts a Sink. It performs the §startup cleanup
// pass (deleting rotated files in cfg.Dir older than RetentionDays) before
// returning.
func NewSink(cfg Config) (*Sink, error) {
	if cfg.BaseName == "" {
		cfg.BaseName = "app.log"
	}
	if cfg.BackupCount <= 0 {
		cfg.BackupCount = 10
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}

	s := &Sink{
		cfg:   cfg,
		queue: make(chan []byte, queueCapacity),
		done:  make(chan struct{}),
		file: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, cfg.BaseName),
			MaxSize:    maxSizeMB(cfg.MaxBytes),
			MaxBackups: cfg.BackupCount,
			Compress:   false,
		},
		lastRot: time.Now(),
	}

	if cfg.RetentionDays > 0 {
		s.cleanupStale()
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

func maxSizeMB(maxBytes int) int {
	if maxBytes <= 0 {
		return 100 // lumberjack's own default size threshold
	}
	mb := maxBytes / (1024 * 1024)
	if mb < 1 {
		mb = 1
	}
	return mb
}

// Write implements io.Writer. It never blocks: if the queue is full the
// record is dropped and written directly to stderr instead, matching the
// try_put-with-drop-to-stderr fallback.
func (s *Sink) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)

	select {
	case s.queue <- cp:
		return len(p), nil
	default:
		fmt.Fprintf(os.Stderr, "[logging: queue full, dropped record] %s", cp)
		return len(p), nil
	}
}

func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([][]byte, 0, flushBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.maybeRotateOnTime()
		for _, rec := range batch {
			if err := s.writeLossy(rec); err != nil {
				fmt.Fprintf(os.Stderr, "[logging: write failed, truncated notice] %v\n", err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-s.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			// drain whatever remains, bounded by shutdownDrain
			deadline := time.After(shutdownDrain)
		drain:
			for {
				select {
				case rec, ok := <-s.queue:
					if !ok {
						break drain
					}
					batch = append(batch, rec)
				case <-deadline:
					break drain
				default:
					break drain
				}
			}
			flush()
			return
		}
	}
}

// writeLossy attempts to write rec as-is; on failure it retries with a
// lossy UTF-8 replacement, and if that still fails it emits a truncated
// notice to stderr and returns the error to the worker, which logs it to
// stderr and moves on to the next record.
func (s *Sink) writeLossy(rec []byte) error {
	if _, err := s.file.Write(rec); err != nil {
		lossy := []byte(strings.ToValidUTF8(string(rec), "�"))
		if _, err2 := s.file.Write(lossy); err2 != nil {
			fmt.Fprintf(os.Stderr, "[logging: record truncated after lossy retry]\n")
			return err2
		}
	}
	return nil
}

func (s *Sink) maybeRotateOnTime() {
	if s.cfg.Interval == RotateNone {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	due := false
	switch s.cfg.Interval {
	case RotateDaily:
		due = now.YearDay() != s.lastRot.YearDay() || now.Year() != s.lastRot.Year()
	case RotateWeekly:
		y1, w1 := s.lastRot.ISOWeek()
		y2, w2 := now.ISOWeek()
		due = y1 != y2 || w1 != w2
	case RotateMonthly:
		due = now.Month() != s.lastRot.Month() || now.Year() != s.lastRot.Year()
	}
	if due {
		_ = s.file.Rotate()
		s.lastRot = now
	}
}

// Cleanup runs the stale-rotated-file sweep on demand, so a scheduled job
// can enforce RetentionDays between restarts, not just at startup.
func (s *Sink) Cleanup() {
	if s.cfg.RetentionDays > 0 {
		s.cleanupStale()
	}
}

// cleanupStale deletes rotated log files in cfg.Dir older than RetentionDays.
func (s *Sink) cleanupStale() {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return
	}
	horizon := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	prefix := strings.TrimSuffix(s.cfg.BaseName, filepath.Ext(s.cfg.BaseName))

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(horizon) {
			_ = os.Remove(filepath.Join(s.cfg.Dir, e.Name()))
		}
	}
}

// Close stops the worker, draining the remaining queue within the 5-second
// shutdown cap.
func (s *Sink) Close() error {
	close(s.done)
	s.wg.Wait()
	close(s.queue)
	return s.file.Close()
}
