package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	calls atomic.Int32
	err   error
}

func (j *countingJob) Run() error {
	j.calls.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return j.name }

func TestAddJobRejectsInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a schedule", &countingJob{name: "bad"})
	assert.Error(t, err)
	assert.Empty(t, s.Status())
}

func TestAddJobRejectsDuplicateName(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "forecast"}))
	assert.Error(t, s.AddJob("@every 2h", &countingJob{name: "forecast"}))
}

func TestRunNowRecordsStatus(t *testing.T) {
	s := New(zerolog.Nop())
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.AddJob("@every 1h", ok))

	require.NoError(t, s.RunNow(ok))
	assert.EqualError(t, s.RunNow(failing), "boom")

	statuses := map[string]JobStatus{}
	for _, st := range s.Status() {
		statuses[st.Name] = st
	}
	require.Contains(t, statuses, "ok")
	assert.Equal(t, 1, statuses["ok"].Runs)
	assert.Empty(t, statuses["ok"].LastError)
	assert.Equal(t, "@every 1h", statuses["ok"].Schedule)
	assert.Equal(t, "boom", statuses["failing"].LastError)
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
