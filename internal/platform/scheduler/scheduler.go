// Package scheduler drives the engine's periodic jobs on a cron clock in the
// clinic timezone. Every run, timed or manual, goes through the job's
// distributed lock so at most one replica executes a job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/gynecloud/notify-engine/internal/platform/clock"
	"github.com/gynecloud/notify-engine/internal/platform/joblock"
	"github.com/gynecloud/notify-engine/internal/platform/metrics"
)

var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is a named unit of periodic work.
type Job struct {
	Name string
	// Spec is a 5-field cron expression or an "@every" descriptor.
	Spec string
	Run  func(ctx context.Context) error
	// LockTTL bounds how long a crashed replica can hold the job.
	LockTTL time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	locker  joblock.Locker
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	jobs map[string]Job
	ctx  context.Context
}

type Option func(*Scheduler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func New(loc *time.Location, locker joblock.Locker, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		locker: locker,
		logger: logger.With().Str("component", "scheduler").Logger(),
		jobs:   make(map[string]Job),
		ctx:    context.Background(),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}
	if job.LockTTL <= 0 {
		job.LockTTL = 10 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.run(s.baseContext(), job) }); err != nil {
		return fmt.Errorf("scheduler: job %q spec %q: %w", job.Name, job.Spec, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// Start begins firing jobs. ctx is handed to every timed run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info().Strs("jobs", s.Names()).Msg("scheduler started")
}

// Stop halts the clock and waits, up to ctx, for in-flight runs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a job synchronously under its lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log := s.logger.With().Str("job", job.Name).Logger()

	unlock, err := s.locker.TryLock(ctx, job.Name, job.LockTTL)
	if errors.Is(err, joblock.ErrLocked) {
		log.Debug().Msg("job running elsewhere, skipping")
		s.metrics.JobRun(job.Name, "skipped", 0)
		return err
	}
	if err != nil {
		log.Error().Err(err).Msg("acquire job lock")
		s.metrics.JobRun(job.Name, "error", 0)
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("release job lock")
		}
	}()

	start := time.Now()
	err = job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("took", elapsed).Msg("job failed")
		s.metrics.JobRun(job.Name, "error", elapsed)
		return err
	}
	log.Info().Dur("took", elapsed).Msg("job finished")
	s.metrics.JobRun(job.Name, "ok", elapsed)
	return nil
}

// DailyAt converts "HH:MM" into a cron spec firing once a day.
func DailyAt(hhmm string) (string, error) {
	h, m, err := clock.ParseHHMM(hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

// Every converts an interval into a cron spec. Whole-minute intervals that
// divide an hour are aligned to the wall clock (so 15m fires at :00, :15,
// :30, :45); anything else runs on a free "@every" cadence.
func Every(d time.Duration) string {
	if d >= time.Minute && d < time.Hour && d%time.Minute == 0 && time.Hour%d == 0 {
		return fmt.Sprintf("*/%d * * * *", int(d/time.Minute))
	}
	return "@every " + d.String()
}

type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
