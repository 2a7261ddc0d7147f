package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddValidatesJobs(t *testing.T) {
	s := New(time.Second)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Job{Name: "", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: 0, Run: noop}))
	require.NoError(t, s.Add(Job{Name: "a", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Interval: time.Second, Run: noop}))
}

func TestJobsRunImmediatelyAndPeriodically(t *testing.T) {
	var fast, slow atomic.Int64
	s := New(time.Second)
	require.NoError(t, s.Add(Job{Name: "fast", Interval: 10 * time.Millisecond, Immediate: true, Run: func(context.Context) error {
		fast.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "slow", Interval: time.Hour, Immediate: true, Run: func(context.Context) error {
		slow.Add(1)
		return nil
	}}))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool { return fast.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return slow.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())

	st := s.GetStatus()
	require.Len(t, st.Jobs, 2)
	assert.Equal(t, "fast", st.Jobs[0].Name)
	assert.True(t, st.Jobs[0].LastResult.Success)
	assert.Contains(t, s.LastRuns(), "slow")
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int64
	s := New(time.Second)
	require.NoError(t, s.Add(Job{Name: "stuck", Interval: 5 * time.Millisecond, Immediate: true, Run: func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.GetStatus().Jobs[0].Overlaps >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), runs.Load())

	close(release)
	require.NoError(t, s.Stop())
}

func TestStopWaitsForInFlightWithinGrace(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s := New(time.Second)
	require.NoError(t, s.Add(Job{Name: "drain", Interval: time.Hour, Immediate: true, Run: func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}}))

	require.NoError(t, s.Start(context.Background()))
	<-started
	require.NoError(t, s.Stop())
	assert.True(t, finished.Load())
	assert.True(t, s.GetStatus().Jobs[0].LastResult.Success, "work context stays live during the grace period")
}

func TestStopCancelsAfterGrace(t *testing.T) {
	started := make(chan struct{})
	s := New(20 * time.Millisecond)
	require.NoError(t, s.Add(Job{Name: "hang", Interval: time.Hour, Immediate: true, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))

	require.NoError(t, s.Start(context.Background()))
	<-started
	assert.ErrorIs(t, s.Stop(), ErrDrainTimeout)

	js := s.GetStatus().Jobs[0]
	assert.Equal(t, int64(1), js.Failures)
	assert.Contains(t, js.LastResult.Error, "context canceled")
}

func TestStopWhenIdle(t *testing.T) {
	assert.ErrorIs(t, New(time.Second).Stop(), ErrNotRunning)
}

func TestFailuresAndPanicsAreRecorded(t *testing.T) {
	results := make(chan JobResult, 4)
	s := New(time.Second, WithResultHook(func(r JobResult) { results <- r }))
	require.NoError(t, s.Add(Job{Name: "err", Interval: time.Hour, Immediate: true, Run: func(context.Context) error {
		return errors.New("boom")
	}}))
	require.NoError(t, s.Add(Job{Name: "panic", Interval: time.Hour, Immediate: true, Run: func(context.Context) error {
		panic("bad")
	}}))

	require.NoError(t, s.Start(context.Background()))
	got := map[string]JobResult{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			got[r.JobName] = r
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for job results")
		}
	}
	require.NoError(t, s.Stop())

	assert.Equal(t, "boom", got["err"].Error)
	assert.Contains(t, got["panic"].Error, "job panicked: bad")
	assert.False(t, got["panic"].Success)
}

func TestRestartAfterStop(t *testing.T) {
	var runs atomic.Int64
	s := New(time.Second)
	require.NoError(t, s.Add(Job{Name: "once", Interval: time.Hour, Immediate: true, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Start(context.Background()))
		require.Eventually(t, func() bool { return runs.Load() == int64(i+1) }, time.Second, 5*time.Millisecond)
		require.NoError(t, s.Stop())
	}
}
