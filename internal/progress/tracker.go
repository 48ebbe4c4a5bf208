// Package progress reports upload progress on a fixed interval.
package progress

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/colindex/internal/upload"
)

// DefaultInterval is how often a summary line is logged.
const DefaultInterval = 30 * time.Second

// Snapshot is the progress at one instant.
type Snapshot struct {
	Elapsed   time.Duration
	Completed int64
	Failed    int64
	Records   int64
	// Total is the expected batch count, or 0 when unknown.
	Total int64
}

// Tracker counts batch events and logs a summary every interval. Observe never blocks.
type Tracker struct {
	interval time.Duration
	logger   *zap.Logger
	start    time.Time

	completed atomic.Int64
	failed    atomic.Int64
	records   atomic.Int64
	total     atomic.Int64
}

// NewTracker creates a tracker. interval <= 0 uses DefaultInterval.
func NewTracker(interval time.Duration, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{interval: interval, logger: logger, start: time.Now()}
}

// SetTotal records the expected number of batches.
func (t *Tracker) SetTotal(n int) {
	t.total.Store(int64(n))
}

// Observe counts one terminal batch.
func (t *Tracker) Observe(e upload.Event) {
	t.completed.Add(1)
	switch e.Status {
	case upload.StatusSucceeded:
		t.records.Add(int64(e.Records))
	case upload.StatusFailed:
		t.failed.Add(1)
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Elapsed:   time.Since(t.start),
		Completed: t.completed.Load(),
		Failed:    t.failed.Load(),
		Records:   t.records.Load(),
		Total:     t.total.Load(),
	}
}

// Run logs a summary every interval until ctx is done, then logs a final one.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log("Upload progress (final)")
			return
		case <-ticker.C:
			t.log("Upload progress")
		}
	}
}

func (t *Tracker) log(msg string) {
	s := t.Snapshot()
	t.logger.Info(msg,
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
		zap.Int64("completed", s.Completed),
		zap.Int64("total", s.Total),
		zap.Int64("failed", s.Failed),
		zap.Int64("records", s.Records))
}
