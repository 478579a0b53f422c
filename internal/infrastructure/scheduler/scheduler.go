package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobStatus represents the status of the last run of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobFunc is the work of a scheduled job
type JobFunc func(ctx context.Context) error

// JobRun describes the most recent run of a job
type JobRun struct {
	Name        string
	Schedule    string
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	NextRunAt   time.Time
}

// Config holds scheduler configuration
type Config struct {
	// Timeout bounds a single run of any job
	Timeout  time.Duration
	Location *time.Location
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Timeout:  30 * time.Minute,
		Location: time.UTC,
	}
}

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entry    cron.EntryID
	run      JobRun
}

// Scheduler runs named jobs on cron expressions. A run that is still going
// when its next tick arrives makes that tick a no-op.
type Scheduler struct {
	config Config
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler
func New(config Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		config: config,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Add registers a job. An empty schedule leaves the job disabled and is not an error.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	if schedule == "" {
		s.logger.Info("Scheduled job disabled", zap.String("job", name))
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidSchedule, name, schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerRunning
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	j := &job{name: name, schedule: schedule, fn: fn, run: JobRun{Name: name, Schedule: schedule, Status: JobStatusPending}}
	id, err := s.cron.AddFunc(schedule, func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, name, err)
	}
	j.entry = id
	s.jobs[name] = j
	return nil
}

// Start starts the cron loop. Runs are cancelled when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop stops scheduling and waits for running jobs or ctx, whichever comes first
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	cancel()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs a registered job synchronously, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.runJob(ctx, j)
}

// Runs returns the last run of every job, sorted by name
func (s *Scheduler) Runs() []JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobRun, 0, len(s.jobs))
	for _, j := range s.jobs {
		run := j.run
		run.NextRunAt = s.cron.Entry(j.entry).Next
		out = append(out, run)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) execute(j *job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_ = s.runJob(ctx, j)
}

func (s *Scheduler) runJob(ctx context.Context, j *job) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	started := time.Now()
	s.mu.Lock()
	j.run.Status = JobStatusRunning
	j.run.StartedAt = &started
	j.run.Error = ""
	s.mu.Unlock()

	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("job."+j.name, nil), func(ctx context.Context) {
		err = j.fn(ctx)
	})

	completed := time.Now()
	s.mu.Lock()
	j.run.CompletedAt = &completed
	if err != nil {
		j.run.Status = JobStatusFailed
		j.run.Error = err.Error()
	} else {
		j.run.Status = JobStatusSuccess
	}
	s.mu.Unlock()

	fields := []zap.Field{zap.String("job", j.name), zap.Duration("duration", completed.Sub(started))}
	if err != nil {
		s.logger.Error("Scheduled job failed", append(fields, zap.Error(err))...)
		return err
	}
	s.logger.Info("Scheduled job completed", fields...)
	return nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
