package reload

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler creates a scheduler. Schedules accept an optional seconds
// field and descriptors such as "@every 15m".
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on a cron schedule, e.g. "0 */15 * * * *" or "@hourly".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
		}
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// ReloadJob reloads the rate table on a schedule.
type ReloadJob struct {
	Reloader *Reloader
	Ctx      context.Context
}

func (j ReloadJob) Name() string { return "rates-reload" }

func (j ReloadJob) Run() error {
	ctx := j.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_, _, err := j.Reloader.Reload(ctx, TriggerSchedule)
	return err
}
