package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs RecordUsage on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	recorder *Recorder
	timeout  time.Duration
	logger   *zap.Logger
	ctx      context.Context
}

// NewScheduler registers a usage scrape on spec. Every run is bounded by
// timeout, and a run is skipped while the previous one is still going.
func NewScheduler(ctx context.Context, rec *Recorder, spec string, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		recorder: rec,
		timeout:  timeout,
		logger:   logger,
		ctx:      ctx,
	}

	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid scrape schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start starts the scheduler in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	if entries := s.cron.Entries(); len(entries) > 0 {
		s.logger.Info("Scrape scheduler started", zap.Time("nextRun", entries[0].Next))
	}
}

// Stop stops the scheduler and waits for a running scrape to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scrape scheduler stopped")
}

// RunNow performs one bounded scrape
func (s *Scheduler) RunNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// RecordUsage logs its own outcome
	_, _ = s.recorder.RecordUsage(ctx)
}

// ScheduleInterval returns the gap between two consecutive runs of spec
func ScheduleInterval(spec string, now time.Time) (time.Duration, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid scrape schedule %q: %w", spec, err)
	}
	next := schedule.Next(now)
	return schedule.Next(next).Sub(next), nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
