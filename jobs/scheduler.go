package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"marketflow/logger"
)

// Job is one scheduled unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job run never overlaps itself and
// a panicking job is logged and recovered.
type Scheduler struct {
	cron    *cron.Cron
	log     *logger.Logger
	timeout time.Duration
}

func NewScheduler(log *logger.Logger) *Scheduler {
	l := log.With("component", "JobScheduler")
	adapter := cronLogger{log: l}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(adapter),
			cron.SkipIfStillRunning(adapter),
		)),
		log:     l,
		timeout: 5 * time.Minute,
	}
}

// Register schedules job with a standard five-field cron spec.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunNow(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("jobs: schedule %s: %w", job.Name(), err)
	}
	s.log.Info("job scheduled", "job", job.Name(), "spec", spec)
	return nil
}

// RunNow executes job synchronously with logging.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.log.Warn("job failed", "job", job.Name(), "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	s.log.Debug("job finished", "job", job.Name(), "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
