package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one sweeper pass. Errors are logged; the job runs again on its next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(context.Context) error
}

// Scheduler runs sweepers on fixed intervals. A pass that is still running
// when its next tick fires is skipped, never overlapped.
type Scheduler struct {
	cron *cron.Cron
	// ctx is the context of Run; passes observe its cancellation.
	ctx  context.Context
	jobs []string
}

func New() *Scheduler {
	logger := slogAdapter{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx: context.Background(),
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run func is nil", job.Name)
	}

	s.cron.Schedule(cron.Every(job.Interval), cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			slog.Warn("sweep_failed", "job", job.Name, "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		slog.Debug("sweep_completed", "job", job.Name, "duration_ms", time.Since(start).Milliseconds())
	}))
	s.jobs = append(s.jobs, job.Name)
	return nil
}

func (s *Scheduler) Jobs() []string {
	out := make([]string, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running passes to finish. Passes run with ctx, so cancelling it also
// cancels the passes in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	slog.Info("scheduler_started", "jobs", s.jobs)
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.Info("scheduler_stopped")
	return nil
}

type slogAdapter struct{}

func (slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron_"+msg, keysAndValues...)
}

func (slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron_"+msg, append(keysAndValues, "error", err)...)
}
