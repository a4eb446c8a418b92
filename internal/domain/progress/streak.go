package progress

import (
	"time"

	"github.com/kab1why1/habit/pkg/timeutil"
)

// DefaultMaxLookbackDays ограничивает обратный проход одним годом.
const DefaultMaxLookbackDays = 365

// StreakCalculator считает текущую серию выполненных дней, привязанную к "сегодня".
type StreakCalculator struct {
	maxLookback int
}

// NewStreakCalculator создаёт калькулятор. Неположительное значение - год.
func NewStreakCalculator(maxLookbackDays int) StreakCalculator {
	if maxLookbackDays <= 0 {
		maxLookbackDays = DefaultMaxLookbackDays
	}
	return StreakCalculator{maxLookback: maxLookbackDays}
}

// MaxLookback возвращает глубину обратного прохода в днях.
func (c StreakCalculator) MaxLookback() int {
	return c.maxLookback
}

// Window - диапазон дней, который нужно загрузить для Compute.
func (c StreakCalculator) Window(today time.Time) (from, to time.Time) {
	today = timeutil.Day(today)
	return timeutil.AddDays(today, -c.maxLookback), today
}

// Compute идёт назад начиная со вчера, пока дни выполнены, затем отдельно
// добавляет единицу за сегодня. Проход не глубже maxLookback дней.
func (c StreakCalculator) Compute(today time.Time, completed func(day time.Time) bool) int {
	today = timeutil.Day(today)

	streak := 0
	for i := 1; i <= c.maxLookback; i++ {
		if !completed(timeutil.AddDays(today, -i)) {
			break
		}
		streak++
	}

	if completed(today) {
		streak++
	}
	return streak
}

// ComputeFromDays - Compute по списку выполненных дней.
// Дни вне окна [today-maxLookback, today] игнорируются.
func (c StreakCalculator) ComputeFromDays(today time.Time, days []time.Time) int {
	today = timeutil.Day(today)

	// done[i] - выполнен ли день i дней назад.
	done := make([]bool, c.maxLookback+1)
	for _, d := range days {
		if back := timeutil.DaysBetween(d, today); back >= 0 && back <= c.maxLookback {
			done[back] = true
		}
	}
	return c.Compute(today, func(day time.Time) bool {
		return done[timeutil.DaysBetween(day, today)]
	})
}
