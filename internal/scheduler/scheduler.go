// Package scheduler re-runs the pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled pipeline run.
type Job func(ctx context.Context) error

// parser accepts standard five-field specs, an optional leading seconds
// field, and descriptors such as "@daily" or "@every 1h".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler runs a single job on a cron spec. A run still in progress when
// the next tick fires is skipped, not queued.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	schedule cron.Schedule
	job      Job
	ctx      context.Context
}

// New parses spec and registers job. Runs receive ctx.
func New(ctx context.Context, spec string, job Job) (*Scheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	log := cronLogger{slog.Default()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		spec:     spec,
		schedule: schedule,
		job:      job,
		ctx:      ctx,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.RunNow))
	return s, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "schedule", s.spec, "next", s.Next(time.Now()).Format(time.RFC3339))
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RunNow executes the job immediately, outside the schedule.
func (s *Scheduler) RunNow() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(s.ctx); err != nil {
		slog.Error("scheduled run failed", "error", err, "took", time.Since(start).String())
		return
	}
	slog.Info("scheduled run done", "took", time.Since(start).String(), "next", s.Next(time.Now()).Format(time.RFC3339))
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
