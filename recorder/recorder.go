// Package recorder ties the usage fetcher to the interval store. It keeps
// every reading seen so far and queues new ones for remote write.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/coned_rtu/pkg/buffer"
	"github.com/mjasion/balena-home/coned_rtu/pkg/telemetry"
	"github.com/mjasion/balena-home/coned_rtu/reading"
	"github.com/mjasion/balena-home/coned_rtu/scraper"
	"github.com/mjasion/balena-home/coned_rtu/store"
)

// Scrape outcomes
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// Result summarizes one RecordUsage run
type Result struct {
	Fetched    int
	Inserted   int
	Duplicates int
	Conflicts  int
}

// ScrapeStatus describes the most recent scrape
type ScrapeStatus struct {
	Time        time.Time
	Outcome     string
	Err         error
	LastSuccess time.Time
}

// Recorder owns the interval store. It is safe for concurrent use.
type Recorder struct {
	mu      sync.RWMutex
	store   *store.Store
	last    ScrapeStatus
	fetcher scraper.Fetcher
	// pending remote-write samples, nil when remote write is off
	pending *buffer.RingBuffer[reading.Reading]
	logger  *zap.Logger
	tracer  trace.Tracer

	inserted   metric.Int64Counter
	duplicates metric.Int64Counter
	conflicts  metric.Int64Counter
	scrapes    metric.Int64Counter
}

// New creates a Recorder with an empty store. pending may be nil.
func New(fetcher scraper.Fetcher, pending *buffer.RingBuffer[reading.Reading], logger *zap.Logger) (*Recorder, error) {
	meter := otel.Meter("recorder")

	r := &Recorder{
		store:   store.New(),
		fetcher: fetcher,
		pending: pending,
		logger:  logger,
		tracer:  otel.Tracer("recorder"),
	}

	var err error
	if r.inserted, err = meter.Int64Counter("coned.readings.inserted",
		metric.WithDescription("Readings added to the store")); err != nil {
		return nil, fmt.Errorf("failed to create inserted counter: %w", err)
	}
	if r.duplicates, err = meter.Int64Counter("coned.readings.duplicate",
		metric.WithDescription("Readings already present in the store")); err != nil {
		return nil, fmt.Errorf("failed to create duplicate counter: %w", err)
	}
	if r.conflicts, err = meter.Int64Counter("coned.readings.conflict",
		metric.WithDescription("Readings rejected for overlapping a stored reading")); err != nil {
		return nil, fmt.Errorf("failed to create conflict counter: %w", err)
	}
	if r.scrapes, err = meter.Int64Counter("coned.scrapes",
		metric.WithDescription("Usage scrapes by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create scrape counter: %w", err)
	}

	return r, nil
}

// AddReading stores r. Adding a reading already present is a no-op; adding
// one that overlaps a stored reading fails with store.ErrOverlappingReading.
func (r *Recorder) AddReading(rd reading.Reading) error {
	_, err := r.add(context.Background(), rd)
	return err
}

// add reports whether rd was new
func (r *Recorder) add(ctx context.Context, rd reading.Reading) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store.Contains(rd) {
		r.duplicates.Add(ctx, 1)
		return false, nil
	}

	if err := r.store.Insert(rd); err != nil {
		if errors.Is(err, store.ErrOverlappingReading) {
			r.conflicts.Add(ctx, 1)
		}
		return false, err
	}

	r.inserted.Add(ctx, 1)
	if r.pending != nil {
		r.pending.Add(rd)
	}
	return true, nil
}

// ReadingsForDate returns the readings whose interval starts on the
// calendar date of day, in day's own location
func (r *Recorder) ReadingsForDate(day time.Time) []reading.Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.ReadingsForBucket(day.Format(reading.BucketLayout))
}

// Readings returns every stored reading, ordered by date and then start
func (r *Recorder) Readings() []reading.Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Readings()
}

// Len returns the number of stored readings
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Len()
}

// LastScrape returns the status of the most recent RecordUsage run
func (r *Recorder) LastScrape() ScrapeStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// RecordUsage fetches the current usage payload and stores its readings.
// Overlapping readings are skipped and reported together in the returned
// error; the rest of the batch is still stored.
func (r *Recorder) RecordUsage(ctx context.Context) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "recorder.RecordUsage")
	defer span.End()

	start := time.Now()
	result, err := r.recordUsage(ctx)
	duration := time.Since(start)

	outcome := OutcomeSuccess
	switch {
	case result.Conflicts > 0:
		outcome = OutcomePartial
	case err != nil:
		outcome = OutcomeError
	}

	r.mu.Lock()
	r.last.Time = start
	r.last.Outcome = outcome
	r.last.Err = err
	if outcome != OutcomeError {
		r.last.LastSuccess = start
	}
	r.mu.Unlock()

	r.scrapes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.SetAttributes(
		attribute.String("scrape.outcome", outcome),
		attribute.Int("scrape.fetched", result.Fetched),
		attribute.Int("scrape.inserted", result.Inserted),
		attribute.Int("scrape.duplicates", result.Duplicates),
		attribute.Int("scrape.conflicts", result.Conflicts),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Duration("duration", duration),
		zap.Int("fetched", result.Fetched),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("conflicts", result.Conflicts),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		telemetry.ErrorWithTrace(ctx, r.logger, "Usage scrape failed", append(fields, zap.Error(err))...)
		return result, err
	}

	span.SetStatus(codes.Ok, "scrape successful")
	telemetry.InfoWithTrace(ctx, r.logger, "Usage scrape successful", fields...)
	return result, nil
}

func (r *Recorder) recordUsage(ctx context.Context) (Result, error) {
	var result Result

	payload, err := r.fetcher.FetchRawUsage(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch usage: %w", err)
	}

	readings, err := scraper.DecodeUsage(payload)
	if err != nil {
		return result, err
	}
	result.Fetched = len(readings)

	var conflicts []error
	for _, rd := range readings {
		added, err := r.add(ctx, rd)
		switch {
		case err != nil:
			result.Conflicts++
			conflicts = append(conflicts, err)
			telemetry.WarnWithTrace(ctx, r.logger, "Skipping conflicting reading",
				zap.Stringer("reading", rd), zap.Error(err))
		case added:
			result.Inserted++
		default:
			result.Duplicates++
		}
	}

	return result, errors.Join(conflicts...)
}

// PrintReadings writes every stored reading to w, one per line
func (r *Recorder) PrintReadings(w io.Writer) error {
	for _, rd := range r.Readings() {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%g Wh\n",
			rd.Start().Format(time.RFC3339), rd.Duration(), rd.EnergyWh()); err != nil {
			return err
		}
	}
	return nil
}
