package playclock_test

import (
	"github.com/myrjola/talespin/internal/playclock"
	"github.com/myrjola/talespin/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func newAccumulator() (*playclock.Accumulator, *testhelpers.Clock) {
	clock := testhelpers.NewClock()
	return playclock.New(playclock.WithNow(clock.Now)), clock
}

func TestAccumulator(t *testing.T) {
	tests := []struct {
		name string
		run  func(a *playclock.Accumulator, clock *testhelpers.Clock) int64
		want int64
	}{
		{
			name: "unstarted is zero",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				clock.Advance(time.Hour)
				return a.ElapsedSeconds()
			},
			want: 0,
		},
		{
			name: "counts running time",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(5000 * time.Millisecond)
				return a.ElapsedSeconds()
			},
			want: 5,
		},
		{
			name: "sub-second intervals floor to zero",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(999 * time.Millisecond)
				return a.ElapsedSeconds()
			},
			want: 0,
		},
		{
			name: "paused time never counts",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(3 * time.Second)
				a.Pause()
				clock.Advance(10 * time.Second)
				a.Resume()
				clock.Advance(3 * time.Second)
				return a.ElapsedSeconds()
			},
			want: 6,
		},
		{
			name: "query mid-pause excludes the ongoing pause",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(4 * time.Second)
				a.Pause()
				clock.Advance(20 * time.Second)
				return a.ElapsedSeconds()
			},
			want: 4,
		},
		{
			name: "second pause keeps the first pause instant",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(2 * time.Second)
				a.Pause()
				clock.Advance(5 * time.Second)
				a.Pause()
				clock.Advance(5 * time.Second)
				a.Resume()
				clock.Advance(1 * time.Second)
				return a.ElapsedSeconds()
			},
			want: 3,
		},
		{
			name: "resume without pause is ignored",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(2 * time.Second)
				a.Resume()
				clock.Advance(2 * time.Second)
				return a.ElapsedSeconds()
			},
			want: 4,
		},
		{
			name: "pause before start is ignored",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Pause()
				clock.Advance(2 * time.Second)
				a.Start()
				clock.Advance(2 * time.Second)
				return a.ElapsedSeconds()
			},
			want: 2,
		},
		{
			name: "start while running is a hard reset",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(30 * time.Second)
				a.Start()
				clock.Advance(2 * time.Second)
				return a.ElapsedSeconds()
			},
			want: 2,
		},
		{
			name: "reset then start discards prior time",
			run: func(a *playclock.Accumulator, clock *testhelpers.Clock) int64 {
				a.Start()
				clock.Advance(30 * time.Second)
				a.Pause()
				a.Reset()
				clock.Advance(30 * time.Second)
				a.Start()
				clock.Advance(1500 * time.Millisecond)
				return a.ElapsedSeconds()
			},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, clock := newAccumulator()
			require.Equal(t, tt.want, tt.run(a, clock))
		})
	}
}

func TestAccumulatorStates(t *testing.T) {
	a, clock := newAccumulator()
	require.Equal(t, playclock.Unstarted, a.State())

	a.Start()
	require.Equal(t, playclock.Running, a.State())

	a.Pause()
	require.Equal(t, playclock.Paused, a.State())

	// Reading while paused must not change anything.
	clock.Advance(time.Minute)
	require.Equal(t, int64(0), a.ElapsedSeconds())
	require.Equal(t, int64(0), a.ElapsedSeconds())
	require.Equal(t, playclock.Paused, a.State())

	a.Resume()
	require.Equal(t, playclock.Running, a.State())

	a.Reset()
	require.Equal(t, playclock.Unstarted, a.State())
	require.Equal(t, int64(0), a.ElapsedSeconds())
	require.Equal(t, "unstarted", a.State().String())
}
