package progress

import (
	"testing"
	"time"

	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var today = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func daysAgo(n ...int) []time.Time {
	out := make([]time.Time, 0, len(n))
	for _, d := range n {
		out = append(out, timeutil.AddDays(today, -d))
	}
	return out
}

func TestStreak_Law(t *testing.T) {
	calc := NewStreakCalculator(365)

	tests := []struct {
		name string
		days []time.Time
		want int
	}{
		{"nothing", nil, 0},
		{"only today", daysAgo(0), 1},
		{"yesterday only", daysAgo(1), 1},
		{"three days before today, today open", daysAgo(1, 2, 3), 3},
		{"three days plus today", daysAgo(0, 1, 2, 3), 4},
		{"gap at D-2 stops the walk", daysAgo(1, 3, 4, 5), 1},
		{"today done but yesterday missed", daysAgo(0, 2, 3), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.ComputeFromDays(today, tt.days))
		})
	}
}

func TestStreak_BoundedLookback(t *testing.T) {
	calc := NewStreakCalculator(7)

	calls := 0
	got := calc.Compute(today, func(time.Time) bool {
		calls++
		return true
	})

	assert.Equal(t, 8, got, "seven past days plus today")
	assert.Equal(t, 8, calls)

	from, to := calc.Window(today)
	assert.Equal(t, "2024-01-03", timeutil.FormatDate(from))
	assert.Equal(t, today, to)
}

func TestStreak_AnchoredToToday(t *testing.T) {
	calc := NewStreakCalculator(0)
	assert.Equal(t, DefaultMaxLookbackDays, calc.MaxLookback())

	// A long run that ended a week ago does not count.
	days := daysAgo(7, 8, 9, 10, 11)
	assert.Equal(t, 0, calc.ComputeFromDays(today, days))
}

func TestStreak_IgnoresDaysOutsideWindow(t *testing.T) {
	calc := NewStreakCalculator(3)

	days := append(daysAgo(0, 1, 2, 3, 4, 5), timeutil.AddDays(today, 1))
	assert.Equal(t, 4, calc.ComputeFromDays(today, days))
}

func TestAccumulate_Saturates(t *testing.T) {
	tests := []struct {
		value, delta, want int
	}{
		{3, 4, 7},
		{3, -5, 0},
		{MaxValue - 1, 5, MaxValue},
		{MaxValue, MaxValue, MaxValue},
		{MaxValue, -MaxValue, 0},
		{0, -MaxValue, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Accumulate(tt.value, tt.delta), "%d%+d", tt.value, tt.delta)
	}
}

func TestTransitionOf(t *testing.T) {
	assert.Equal(t, TransitionGained, TransitionOf(false, true))
	assert.Equal(t, TransitionLost, TransitionOf(true, false))
	assert.Equal(t, TransitionNone, TransitionOf(true, true))
	assert.Equal(t, TransitionNone, TransitionOf(false, false))

	o := Outcome{Entry: DailyProgress{CurrentValue: 12, Completed: true}, WasCompleted: true}
	assert.Equal(t, TransitionNone, o.Transition())
	assert.Equal(t, "none", o.Transition().String())
}

func TestResolveDate(t *testing.T) {
	now := today.Add(15 * time.Hour)

	day, isToday, err := ResolveDate("", now)
	require.NoError(t, err)
	assert.True(t, isToday)
	assert.Equal(t, today, day)

	day, isToday, err = ResolveDate("2024-01-05", now)
	require.NoError(t, err)
	assert.False(t, isToday)
	assert.Equal(t, "2024-01-05", timeutil.FormatDate(day))

	_, isToday, err = ResolveDate("2024-01-10", now)
	require.NoError(t, err)
	assert.True(t, isToday)

	_, _, err = ResolveDate("2024-01-11", now)
	assert.ErrorIs(t, err, shared.ErrFutureDate)

	_, _, err = ResolveDate("2024-01-05' OR 1=1 --", now)
	assert.True(t, shared.IsValidation(err))
}

func TestBuildHistory(t *testing.T) {
	d5 := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	d6 := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)

	h := BuildHistory([]DayCount{{Date: d5, Count: 2}, {Date: d6, Count: 1}})

	assert.Equal(t, History{"2024-01-05": 2, "2024-01-06": 1}, h)
	assert.Equal(t, 0, h.Count(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)))
}

func TestStatsRangeAndSeries(t *testing.T) {
	from, to := StatsRange(today, 0)
	assert.Equal(t, 29, timeutil.DaysBetween(from, to))

	from, _ = StatsRange(today, 10_000)
	assert.Equal(t, MaxStatsWindowDays-1, timeutil.DaysBetween(from, today))

	series := BuildSeries([]DailyProgress{
		{Date: timeutil.AddDays(today, -1), CurrentValue: 4},
		{Date: timeutil.AddDays(today, -3), CurrentValue: 7},
	})
	assert.Equal(t, []StatPoint{{Date: "2024-01-07", CurrentValue: 7}, {Date: "2024-01-09", CurrentValue: 4}}, series)
}
