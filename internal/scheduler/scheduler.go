// Package scheduler runs named periodic jobs — registry health probing
// and attention break-urgency ticking — each on its own
// ticker, independent of the others.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic task the scheduler drives.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on a periodic basis, one goroutine per job.
type Scheduler struct {
	logger *zap.SugaredLogger
	jobs   []scheduledJob
}

type scheduledJob struct {
	job      Job
	interval time.Duration
	ticker   *time.Ticker
	stop     chan struct{}
}

// New creates a Scheduler that logs through logger.
func New(logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{logger: logger}
}

// AddJob registers a job to run at the given interval. Must be called
// before Start.
func (s *Scheduler) AddJob(job Job, interval time.Duration) {
	s.jobs = append(s.jobs, scheduledJob{job: job, interval: interval, stop: make(chan struct{})})
}

// Start begins running every registered job in its own goroutine.
// Non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	for i := range s.jobs {
		sj := &s.jobs[i]
		sj.ticker = time.NewTicker(sj.interval)

		go func(sj *scheduledJob) {
			s.logger.Infow("starting scheduled job", "job", sj.job.Name(), "interval", sj.interval)
			for {
				select {
				case <-sj.ticker.C:
					if err := sj.job.Run(ctx); err != nil {
						s.logger.Errorw("scheduled job failed", "job", sj.job.Name(), "error", err)
					}
				case <-sj.stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}(sj)
	}
}

// Stop halts every job's ticker and goroutine.
func (s *Scheduler) Stop() {
	for i := range s.jobs {
		if s.jobs[i].ticker != nil {
			s.jobs[i].ticker.Stop()
		}
		close(s.jobs[i].stop)
	}
	s.logger.Infow("scheduler stopped")
}
