// Package progress содержит модель дневного прогресса (ledger) и производные
// от неё вычисления: серии дней (streak) и агрегаты истории.
// Здесь нет внешних зависимостей: хранилище реализует интерфейс Ledger.
package progress

import (
	"fmt"
	"math"
	"time"

	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// DailyProgress - запись прогресса привычки за один календарный день.
// Инвариант: Completed == (CurrentValue >= target), CurrentValue >= 0.
type DailyProgress struct {
	HabitID      string
	Date         time.Time
	CurrentValue int
	Completed    bool
}

// Empty - значение для дня без записи.
func Empty(habitID string, day time.Time) DailyProgress {
	return DailyProgress{HabitID: habitID, Date: timeutil.Day(day)}
}

// MaxValue - предел current_value, совпадает с INTEGER в схеме.
const MaxValue = math.MaxInt32

// Accumulate прибавляет delta к значению дня, удерживая результат в [0, MaxValue].
func Accumulate(value, delta int) int {
	sum := int64(value) + int64(delta)
	switch {
	case sum < 0:
		return 0
	case sum > MaxValue:
		return MaxValue
	default:
		return int(sum)
	}
}

// IsCompleted - правило завершённости дня.
func IsCompleted(value, target int) bool {
	return value >= target
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// ══════════════════════════════════════════════════════════════════════════════

// Transition - изменение состояния завершённости в результате записи.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionGained
	TransitionLost
)

// TransitionOf определяет переход по состояниям до и после.
func TransitionOf(before, after bool) Transition {
	switch {
	case !before && after:
		return TransitionGained
	case before && !after:
		return TransitionLost
	default:
		return TransitionNone
	}
}

func (t Transition) String() string {
	switch t {
	case TransitionGained:
		return "gained"
	case TransitionLost:
		return "lost"
	default:
		return "none"
	}
}

// Outcome - результат атомарной записи в ledger.
type Outcome struct {
	Entry        DailyProgress
	WasCompleted bool
}

// Transition возвращает переход, вызванный записью.
func (o Outcome) Transition() Transition {
	return TransitionOf(o.WasCompleted, o.Entry.Completed)
}

// ══════════════════════════════════════════════════════════════════════════════
// TARGET DATE
// ══════════════════════════════════════════════════════════════════════════════

// ResolveDate разбирает необязательную дату действия.
// Пустая строка - сегодня. Будущие даты отклоняются.
func ResolveDate(raw string, today time.Time) (day time.Time, isToday bool, err error) {
	today = timeutil.Day(today)
	if raw == "" {
		return today, true, nil
	}

	day, err = timeutil.ParseDate(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q", shared.ErrInvalidDate, raw)
	}
	if day.After(today) {
		return time.Time{}, false, shared.ErrFutureDate
	}
	return day, timeutil.SameDay(day, today), nil
}
