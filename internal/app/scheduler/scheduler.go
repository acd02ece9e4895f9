package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fitos/notify/pkg/logger"
	"github.com/fitos/notify/pkg/metrics"
)

const (
	defaultLockTTL       = 55 * time.Second
	defaultSlowThreshold = 30 * time.Second
)

// ErrUnknownJob is returned by Trigger for a name that was never registered.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// Job is a named unit of pipeline work. An empty Spec registers the job for
// manual runs only.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (any, error)
}

// Locker grants a short exclusive lease. The cache stores satisfy it.
type Locker interface {
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// JobStatus is the outcome of a job's most recent run.
type JobStatus struct {
	Schedule  string        `json:"schedule,omitempty"`
	Runs      int           `json:"runs"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Scheduler runs pipeline jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]Job
	locker  Locker
	lockTTL time.Duration
	slow    time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu     sync.RWMutex
	status map[string]JobStatus
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for lock keys and status timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocker makes each scheduled run take a lease first, so that only one
// replica executes a given tick.
func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithSlowThreshold sets when a run is logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.slow = d
		}
	}
}

// New constructs a Scheduler for jobs. Jobs without a Run func are ignored.
func New(jobs []Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:    make(map[string]Job, len(jobs)),
		lockTTL: defaultLockTTL,
		slow:    defaultSlowThreshold,
		now:     time.Now,
		log:     logger.WithModule("scheduler"),
		status:  make(map[string]JobStatus, len(jobs)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		cl := cronLogger{log: s.log}
		s.cron = cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		)
	}

	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			continue
		}
		s.jobs[job.Name] = job
		s.status[job.Name] = JobStatus{Schedule: job.Spec}
	}
	return s
}

// Start registers scheduled jobs with cron and launches it.
func (s *Scheduler) Start() error {
	for _, name := range s.names() {
		job := s.jobs[name]
		if job.Spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.Spec, func() {
			if _, err := s.execute(context.Background(), job, true); err != nil {
				s.log.Warn("scheduled job failed", zap.String("job", job.Name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("scheduler: register %s (%q): %w", job.Name, job.Spec, err)
		}
		s.log.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// Trigger runs a single job immediately, bypassing the lease.
func (s *Scheduler) Trigger(ctx context.Context, name string) (any, error) {
	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job, false)
}

// RunOnce executes every job sequentially in name order. Primarily used in
// tests and for one-shot invocations.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, name := range s.names() {
		if _, err := s.execute(ctx, s.jobs[name], false); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

// Status returns a snapshot of every job's last run.
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]JobStatus, len(s.status))
	for name, status := range s.status {
		out[name] = status
	}
	return out
}

// Running reports whether the cron loop has been started and has entries.
func (s *Scheduler) Running() bool {
	return len(s.cron.Entries()) > 0
}

func (s *Scheduler) execute(ctx context.Context, job Job, lease bool) (any, error) {
	if lease && s.locker != nil {
		key := fmt.Sprintf("scheduler:%s:%s", job.Name, s.now().UTC().Truncate(time.Minute).Format("200601021504"))
		won, err := s.locker.SetIfAbsent(ctx, key, []byte(job.Name), s.lockTTL)
		if err != nil {
			s.log.Warn("job lease failed, running anyway", zap.String("job", job.Name), zap.Error(err))
		} else if !won {
			s.log.Debug("job leased elsewhere", zap.String("job", job.Name))
			return nil, nil
		}
	}

	var result any
	elapsed, err := metrics.Time(s.log, job.Name, s.slow, func() error {
		var runErr error
		result, runErr = job.Run(ctx)
		return runErr
	})

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.JobRuns.WithLabelValues(job.Name, outcome).Inc()
	metrics.JobDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())

	s.mu.Lock()
	status := s.status[job.Name]
	status.Runs++
	status.LastRun = s.now().UTC()
	status.Duration = elapsed
	status.LastError = ""
	if err != nil {
		status.LastError = err.Error()
	}
	s.status[job.Name] = status
	s.mu.Unlock()

	s.log.Debug("job finished", zap.String("job", job.Name), zap.Duration("elapsed", elapsed), zap.Any("result", result))
	return result, err
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
