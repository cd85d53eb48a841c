package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingJob struct {
	name string
	runs int32
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return nil
}

func TestSchedulerRunsJobOnInterval(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	job := &countingJob{name: "test.job"}
	s.AddJob(job, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(55 * time.Millisecond)
	cancel()
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&job.runs), int32(3))
}

func TestSchedulerStopHaltsFurtherRuns(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	job := &countingJob{name: "test.job"}
	s.AddJob(job, 10*time.Millisecond)

	ctx := context.Background()
	s.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	runsAtStop := atomic.LoadInt32(&job.runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runsAtStop, atomic.LoadInt32(&job.runs))
}
