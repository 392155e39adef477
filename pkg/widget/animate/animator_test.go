package animate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/supportchat/pkg/widget/loop"
)

func newAnimator(start int) (*Animator, *loop.Manual) {
	m := loop.NewManual()
	return New(loop.NewFrames(m), WithProgress(start)), m
}

func TestTickCountMatchesDistance(t *testing.T) {
	cases := []struct {
		dir   Direction
		start int
		ticks int
	}{
		{Opening, 0, 30},
		{Opening, 150, 15},
		{Opening, 300, 0},
		{Closing, 300, 30},
		{Closing, 70, 7},
		{Closing, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.dir.String(), func(t *testing.T) {
			a, m := newAnimator(tc.start)
			var seen []int
			completions := 0
			r := a.Run(tc.dir, func(p int) { seen = append(seen, p) }, func() { completions++ })

			for m.Step() {
			}

			require.Equal(t, tc.ticks, r.Ticks())
			require.Len(t, seen, tc.ticks)
			require.Equal(t, 1, completions)
			require.True(t, r.Completed())
			require.False(t, a.Active())
			if tc.dir == Opening {
				require.Equal(t, OpenedBound, a.Progress())
			} else {
				require.Equal(t, ClosedBound, a.Progress())
			}
		})
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	a, m := newAnimator(0)
	last := -1
	a.Run(Opening, func(p int) {
		require.Greater(t, p, last)
		last = p
	}, nil)
	m.Advance(time.Second)
	require.Equal(t, OpenedBound, last)

	a.Run(Closing, func(p int) {
		require.Less(t, p, last)
		last = p
	}, nil)
	m.Advance(time.Second)
	require.Equal(t, ClosedBound, last)
}

func TestStopPreventsCompletion(t *testing.T) {
	a, m := newAnimator(0)
	completed := false
	r := a.Run(Opening, nil, func() { completed = true })

	m.Advance(100 * time.Millisecond)
	require.True(t, r.Active())
	require.True(t, r.Stop())
	require.False(t, r.Stop())

	m.Advance(time.Second)
	require.False(t, completed)
	require.Less(t, a.Progress(), OpenedBound)
	require.Equal(t, 0, m.Pending())
}

func TestStopFromTickPreventsCompletion(t *testing.T) {
	a, m := newAnimator(290)
	completed := false
	var r *Run
	r = a.Run(Opening, func(int) { r.Stop() }, func() { completed = true })
	m.Advance(time.Second)
	require.Equal(t, OpenedBound, a.Progress())
	require.False(t, completed)
}

func TestNewRunReplacesInFlightRun(t *testing.T) {
	a, m := newAnimator(0)
	openDone, closeDone := 0, 0
	first := a.Run(Opening, nil, func() { openDone++ })
	m.Advance(200 * time.Millisecond)
	reached := a.Progress()
	require.Greater(t, reached, 0)

	second := a.Run(Closing, nil, func() { closeDone++ })
	require.False(t, first.Active())
	require.Same(t, second, a.Current())

	for m.Step() {
	}
	require.Equal(t, 0, openDone)
	require.Equal(t, 1, closeDone)
	require.Equal(t, reached/Step, second.Ticks())
}

func TestSpinWrapsAndNeverCompletes(t *testing.T) {
	a, m := newAnimator(0)
	completed := false
	wrapped := false
	a.Run(Spin, func(p int) {
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, SpinPeriod)
		if p == 0 {
			wrapped = true
		}
	}, func() { completed = true })

	m.Advance(2 * time.Second)
	require.True(t, wrapped)
	require.False(t, completed)
	require.True(t, a.Active())
	require.True(t, a.Stop())
	require.False(t, a.Active())
}
