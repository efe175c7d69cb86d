package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestAddJob_AcceptsFiveAndSixFieldSchedules(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{name: "six"}))
	assert.NoError(t, s.AddJob("*/5 * * * *", &countingJob{name: "five"}))
	assert.NoError(t, s.AddJob("@every 1h", &countingJob{name: "every"}))
	assert.NoError(t, s.AddJob("@daily", &countingJob{name: "daily"}))
}

func TestRunNow_PropagatesError(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "failing", err: errors.New("boom")}

	err := s.RunNow(job)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestRunNow_SkipsOverlappingRun(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.RunNow(job))
	}()

	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	err := s.RunNow(job)
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	wg.Wait()
	assert.Equal(t, int32(1), job.runs.Load())

	// Released after completion
	job.block = nil
	assert.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestStartStop_RunsScheduledJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
}
