// Package upload groups a record stream into bounded batches and submits them concurrently with
// per-batch retries.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hyperjump/colindex/internal/metrics"
	"github.com/hyperjump/colindex/internal/models"
	"github.com/hyperjump/colindex/internal/retry"
)

// Target stores one batch atomically. *store.Store and *client.Client implement it.
type Target interface {
	Upsert(ctx context.Context, collection string, records []*models.VectorRecord) error
}

// Options configures batching, concurrency, and retries.
type Options struct {
	BatchSize            int          `yaml:"batch_size"`
	MaxConcurrentBatches int          `yaml:"max_concurrent_batches"`
	Retry                retry.Policy `yaml:"retry"`
	// CallTimeout bounds each submission attempt. 0 disables it.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// RatePerSecond throttles batch dispatch. 0 disables it.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// Dimensions, when positive, rejects records with other vector lengths before batching.
	Dimensions int `yaml:"-"`
}

// DefaultOptions returns batches of 64, 6 in flight, and the default retry policy.
func DefaultOptions() Options {
	return Options{
		BatchSize:            64,
		MaxConcurrentBatches: 6,
		Retry:                retry.DefaultPolicy(),
		CallTimeout:          60 * time.Second,
	}
}

// Validate rejects non-positive sizes and negative retry settings.
func (o Options) Validate() error {
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", models.ErrConfiguration, o.BatchSize)
	}
	if o.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("%w: max concurrent batches must be positive, got %d", models.ErrConfiguration, o.MaxConcurrentBatches)
	}
	if o.CallTimeout < 0 || o.RatePerSecond < 0 {
		return fmt.Errorf("%w: call timeout and rate must not be negative", models.ErrConfiguration)
	}
	return o.Retry.Validate()
}

// Uploader submits batches to a Target.
type Uploader struct {
	target   Target
	opts     Options
	logger   *zap.Logger
	observer Observer
	metrics  *metrics.Recorder
	limiter  *rate.Limiter
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithObserver registers the receiver of batch events.
func WithObserver(o Observer) Option {
	return func(u *Uploader) { u.observer = o }
}

// WithMetrics records batch outcomes and retries.
func WithMetrics(m *metrics.Recorder) Option {
	return func(u *Uploader) { u.metrics = m }
}

// New creates an uploader. Invalid options fail with ErrConfiguration.
func New(target Target, opts Options, options ...Option) (*Uploader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	u := &Uploader{target: target, opts: opts, logger: zap.NewNop()}
	for _, o := range options {
		o(u)
	}
	if opts.RatePerSecond > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.MaxConcurrentBatches)
	}
	return u, nil
}

// source yields records until io.EOF.
type source interface {
	next(ctx context.Context) (*models.VectorRecord, error)
	// remaining counts records not yet read, or 0 when unknown.
	remaining() int
}

type chanSource struct {
	in <-chan *models.VectorRecord
}

func (s chanSource) next(ctx context.Context) (*models.VectorRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r, ok := <-s.in:
		if !ok {
			return nil, io.EOF
		}
		return r, nil
	}
}

func (s chanSource) remaining() int { return 0 }

type sliceSource struct {
	records []*models.VectorRecord
	pos     int
}

func (s *sliceSource) next(ctx context.Context) (*models.VectorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) remaining() int { return len(s.records) - s.pos }

// Upload consumes records until the channel closes and returns once every dispatched batch is
// terminal. Cancelling ctx stops dispatching; batches already dispatched finish with their
// retries and the returned error is ctx.Err(). An invalid record stops dispatching the same way
// and is returned as the error. Batch failures are reported, not returned.
func (u *Uploader) Upload(ctx context.Context, collection string, records <-chan *models.VectorRecord) (*Report, error) {
	return u.run(ctx, collection, chanSource{in: records})
}

// UploadRecords is Upload over a slice.
func (u *Uploader) UploadRecords(ctx context.Context, collection string, records []*models.VectorRecord) (*Report, error) {
	if ts, ok := u.observer.(totalSetter); ok {
		ts.SetTotal((len(records) + u.opts.BatchSize - 1) / u.opts.BatchSize)
	}
	return u.run(ctx, collection, &sliceSource{records: records})
}

type batch struct {
	seq     int
	records []*models.VectorRecord
}

func (b *batch) ids() []string {
	out := make([]string, len(b.records))
	for i, r := range b.records {
		out[i] = r.ID
	}
	return out
}

func (u *Uploader) prepare(r *models.VectorRecord) error {
	if r == nil {
		return fmt.Errorf("%w: null record", models.ErrConfiguration)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	r.EnsureID()
	if u.opts.Dimensions > 0 {
		return r.Vector.CheckShape(r.ID, u.opts.Dimensions, models.LayoutMulti)
	}
	return nil
}

func (u *Uploader) run(ctx context.Context, collection string, src source) (*Report, error) {
	start := time.Now()
	report := &Report{}
	var mu sync.Mutex

	// Batches outlive a cancelled ctx: cancellation only stops dispatching.
	batchCtx := context.WithoutCancel(ctx)
	slots := semaphore.NewWeighted(int64(u.opts.MaxConcurrentBatches))
	var g errgroup.Group

	var stopErr error
	seq := 0
	buf := make([]*models.VectorRecord, 0, u.opts.BatchSize)

	dispatch := func() error {
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		// Blocks while every slot is busy.
		if err := slots.Acquire(ctx, 1); err != nil {
			return err
		}
		seq++
		b := &batch{seq: seq, records: buf}
		buf = make([]*models.VectorRecord, 0, u.opts.BatchSize)
		mu.Lock()
		report.Total++
		mu.Unlock()
		g.Go(func() error {
			defer slots.Release(1)
			u.submit(batchCtx, collection, b, report, &mu)
			return nil
		})
		return nil
	}

	for {
		r, err := src.next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			stopErr = err
			break
		}
		if err := u.prepare(r); err != nil {
			stopErr = err
			buf = append(buf, r)
			break
		}
		buf = append(buf, r)
		if len(buf) == u.opts.BatchSize {
			if err := dispatch(); err != nil {
				stopErr = err
				break
			}
		}
	}
	if stopErr == nil && len(buf) > 0 {
		stopErr = dispatch()
	}

	_ = g.Wait()

	report.Unscheduled = len(buf) + src.remaining()
	if stopErr != nil && ctx.Err() != nil && errors.Is(stopErr, ctx.Err()) {
		report.Canceled = true
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Seq < report.Failures[j].Seq })
	report.Elapsed = time.Since(start)

	u.logger.Info("Upload finished",
		zap.String("collection", collection),
		zap.Int("batches", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("records", report.Records),
		zap.Int("unscheduled", report.Unscheduled),
		zap.Bool("canceled", report.Canceled),
		zap.Duration("elapsed", report.Elapsed))
	return report, stopErr
}

func (u *Uploader) submit(ctx context.Context, collection string, b *batch, report *Report, mu *sync.Mutex) {
	start := time.Now()
	attempts, err := u.opts.Retry.DoNotify(ctx, func(ctx context.Context, attempt int) error {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if u.opts.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, u.opts.CallTimeout)
		}
		defer cancel()
		return u.target.Upsert(callCtx, collection, b.records)
	}, func(attempt int, err error, delay time.Duration) {
		u.metrics.RecordRetry()
		u.logger.Warn("Batch submission failed, retrying",
			zap.Int("batch", b.seq),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})
	elapsed := time.Since(start)

	ev := Event{Seq: b.seq, Attempts: attempts, Records: len(b.records), Elapsed: elapsed}
	mu.Lock()
	if err == nil {
		ev.Status = StatusSucceeded
		report.Succeeded++
		report.Records += len(b.records)
	} else {
		ev.Status = StatusFailed
		ev.Err = err
		report.Failed++
		report.Failures = append(report.Failures, BatchFailure{Seq: b.seq, Attempts: attempts, IDs: b.ids(), Err: err})
	}
	mu.Unlock()

	if err != nil {
		u.logger.Error("Batch failed",
			zap.Int("batch", b.seq),
			zap.Int("records", len(b.records)),
			zap.Int("attempts", attempts),
			zap.Error(err))
	} else {
		u.logger.Debug("Batch stored",
			zap.Int("batch", b.seq),
			zap.Int("records", len(b.records)),
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", elapsed))
	}
	u.metrics.RecordBatch(err == nil, elapsed)
	if u.observer != nil {
		u.observer.Observe(ev)
	}
}
