package scheduler

import "errors"

var (
	// ErrInvalidSchedule is returned for a cron expression that does not parse
	ErrInvalidSchedule = errors.New("scheduler: invalid cron expression")

	// ErrDuplicateJob is returned when a job name is registered twice
	ErrDuplicateJob = errors.New("scheduler: job already registered")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrSchedulerRunning is returned when jobs are added after Start
	ErrSchedulerRunning = errors.New("scheduler: already running")
)
