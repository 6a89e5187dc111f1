// Package sched runs named jobs once per day at fixed wall-clock times.
package sched

import (
	"context"
	"log/slog"
	"time"

	"kestrel/internal/market"
)

// Job is one daily task. At is the local "HH:MM" it becomes due.
type Job struct {
	Name string
	At   string
	Fn   func(ctx context.Context)
}

// Scheduler fires each job the first time the clock reaches its due
// minute, at most once per calendar day. In-memory dedup only; jobs
// needing restart-safe once-per-day semantics wrap themselves in a
// durable run-once guard.
type Scheduler struct {
	jobs []Job
	poll time.Duration
	now  func() time.Time
	ran  map[string]string // job name -> last run day
	log  *slog.Logger
}

// New creates an empty scheduler polling every poll interval. A zero
// interval defaults to 15 seconds.
func New(poll time.Duration, log *slog.Logger) *Scheduler {
	if poll <= 0 {
		poll = 15 * time.Second
	}
	return &Scheduler{
		poll: poll,
		now:  time.Now,
		ran:  make(map[string]string),
		log:  log,
	}
}

// Add registers a job. Not safe to call after Run has started.
func (s *Scheduler) Add(name, at string, fn func(ctx context.Context)) {
	s.jobs = append(s.jobs, Job{Name: name, At: at, Fn: fn})
}

// Run blocks until ctx is cancelled, firing due jobs inline in
// registration order.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		s.fireDue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fireDue runs every job whose due minute has passed today and that
// has not run today yet. Non-trading days fire nothing.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()
	if !market.IsTradingDay(now) {
		return
	}
	day := now.Format("2006-01-02")
	clock := now.Format("15:04")

	for _, job := range s.jobs {
		if s.ran[job.Name] == day || clock < job.At {
			continue
		}
		s.ran[job.Name] = day
		s.log.Info("daily job", "job", job.Name, "at", job.At, "clock", clock)
		job.Fn(ctx)
	}
}
