package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a now func that advances by step on every call.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestTrackerLifecycle(t *testing.T) {
	tr := New("fetch", "build", "publish")
	assert.Equal(t, 3, tr.TotalCount())
	assert.Equal(t, 0, tr.CompletedCount())
	assert.Nil(t, tr.Current())

	s := tr.Begin("fetch")
	require.NotNil(t, s)
	assert.Equal(t, StepRunning, s.Status)
	assert.Same(t, s, tr.Current())

	tr.Succeed("fetch", "done")
	assert.Equal(t, StepCompleted, s.Status)
	assert.Equal(t, "done", s.Message)
	assert.Nil(t, tr.Current())
	assert.Equal(t, 1, tr.CompletedCount())

	tr.Begin("build")
	tr.Fail("build", "compile error")
	assert.True(t, tr.HasFailures())
	assert.False(t, tr.IsComplete())

	tr.Skip("publish", "nothing to publish")
	assert.True(t, tr.IsComplete())
}

func TestDeclareIdempotent(t *testing.T) {
	tr := New()
	a := tr.Declare("unpack")
	b := tr.Declare("unpack")
	assert.Same(t, a, b)
	assert.Equal(t, 1, tr.TotalCount())
}

func TestBeginDeclaresLazily(t *testing.T) {
	tr := New("known")
	s := tr.Begin("surprise")
	require.NotNil(t, s)
	assert.Equal(t, 2, tr.TotalCount())
	assert.Equal(t, StepRunning, s.Status)
}

func TestBeginReassignsCurrent(t *testing.T) {
	tr := New("a", "b")
	first := tr.Begin("a")
	second := tr.Begin("b")
	assert.Same(t, second, tr.Current())
	// the earlier step is left running, untouched
	assert.Equal(t, StepRunning, first.Status)
}

func TestFinishUnknownStepIsNil(t *testing.T) {
	tr := New("a")
	assert.Nil(t, tr.Succeed("missing", ""))
}

func TestSkipCarriesNoTimestamps(t *testing.T) {
	tr := New("opt")
	s := tr.Skip("opt", "disabled")
	require.NotNil(t, s)
	assert.Nil(t, s.StartedAt)
	assert.Nil(t, s.CompletedAt)
	assert.Equal(t, "", s.DurationHuman())
}

func TestPercent(t *testing.T) {
	tr := New()
	assert.Equal(t, 0.0, tr.Percent())

	tr = New("a", "b", "c", "d")
	tr.Begin("a")
	tr.Succeed("a", "")
	tr.Begin("b")
	tr.Succeed("b", "")
	assert.InDelta(t, 50.0, tr.Percent(), 0.001)

	// failed and skipped steps do not count as completed
	tr.Fail("c", "boom")
	tr.Skip("d", "")
	assert.InDelta(t, 50.0, tr.Percent(), 0.001)
	assert.True(t, tr.IsComplete())
}

func TestRunSuccess(t *testing.T) {
	tr := New("work")
	err := tr.Run("work", func(s *Step) error {
		s.SetMessage("halfway")
		return nil
	})
	require.NoError(t, err)

	snap := tr.Snapshot()
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, string(StepCompleted), snap.Steps[0].Status)
	// message set by the body survives
	assert.Equal(t, "halfway", snap.Steps[0].Message)
}

func TestRunError(t *testing.T) {
	tr := New()
	wantErr := errors.New("fetch failed: 404")
	err := tr.Run("fetch", func(s *Step) error {
		return wantErr
	})
	assert.Same(t, wantErr, err)

	snap := tr.Snapshot()
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, string(StepFailed), snap.Steps[0].Status)
	assert.Equal(t, "fetch failed: 404", snap.Steps[0].Message)
	assert.Nil(t, tr.Current())
}

func TestRunPanicFinalizesStep(t *testing.T) {
	tr := New()
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = tr.Run("risky", func(s *Step) error {
			panic("kaboom")
		})
	})
	assert.True(t, tr.HasFailures())
	snap := tr.Snapshot()
	assert.Equal(t, "kaboom", snap.Steps[0].Message)
}

func TestDuration(t *testing.T) {
	tr := New()
	tr.now = fakeClock(time.Unix(1000, 0), time.Second)

	s := tr.Declare("slow")
	_, ok := s.Duration()
	assert.False(t, ok)

	tr.Begin("slow")
	// running step: duration grows with the clock
	d, ok := s.Duration()
	require.True(t, ok)
	assert.Equal(t, time.Second, d)

	tr.Succeed("slow", "")
	d, ok = s.Duration()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)

	// fixed after completion
	d2, _ := s.Duration()
	assert.Equal(t, d, d2)
}

func TestDurationHuman(t *testing.T) {
	base := time.Unix(0, 0)
	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{2 * time.Hour, "2.0h"},
	}
	for _, tt := range tests {
		start := base
		end := base.Add(tt.elapsed)
		s := &Step{StartedAt: &start, CompletedAt: &end}
		assert.Equal(t, tt.want, s.DurationHuman())
	}
}

func TestReset(t *testing.T) {
	tr := New("a", "b")
	tr.Begin("a")
	tr.Succeed("a", "done")
	tr.Begin("b")

	tr.Reset()
	assert.Nil(t, tr.Current())
	assert.Equal(t, 2, tr.TotalCount())
	assert.Equal(t, 0, tr.CompletedCount())
	for _, st := range tr.Snapshot().Steps {
		assert.Equal(t, string(StepPending), st.Status)
		assert.Empty(t, st.Message)
	}
}

func TestOnUpdateFiresOutsideLock(t *testing.T) {
	tr := New("a")
	var updates int
	tr.SetOnUpdate(func(inner *Tracker) {
		updates++
		// taking a snapshot from the hook must not deadlock
		_ = inner.Snapshot()
	})

	tr.Begin("a")
	tr.Succeed("a", "")
	assert.Equal(t, 2, updates)
}

func TestSnapshot(t *testing.T) {
	tr := New("one", "two")
	tr.Begin("one")
	tr.Succeed("one", "ok")
	tr.Begin("two")

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, "two", snap.Current)
	assert.InDelta(t, 50.0, snap.Percent, 0.001)
	assert.Equal(t, "one", snap.Steps[0].Name)
	assert.Equal(t, string(StepRunning), snap.Steps[1].Status)
}
