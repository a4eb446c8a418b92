package progress

import (
	"sort"
	"time"

	"github.com/kab1why1/habit/pkg/timeutil"
)

const (
	// DefaultStatsWindowDays - окно статистики по умолчанию.
	DefaultStatsWindowDays = 30

	// MaxStatsWindowDays - верхняя граница окна статистики.
	MaxStatsWindowDays = 366
)

// History - карта "YYYY-MM-DD" -> число выполненных привычек.
// Отсутствующая дата означает 0.
type History map[string]int

// Count возвращает значение для дня (0, если дня нет).
func (h History) Count(day time.Time) int {
	return h[timeutil.FormatDate(day)]
}

// BuildHistory собирает карту истории из агрегатов хранилища.
func BuildHistory(counts []DayCount) History {
	h := make(History, len(counts))
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		h[timeutil.FormatDate(c.Date)] += c.Count
	}
	return h
}

// StatPoint - точка временного ряда одной привычки.
type StatPoint struct {
	Date         string `json:"date"`
	CurrentValue int    `json:"current_value"`
}

// ClampWindow приводит окно статистики к [1, MaxStatsWindowDays].
func ClampWindow(days int) int {
	switch {
	case days <= 0:
		return DefaultStatsWindowDays
	case days > MaxStatsWindowDays:
		return MaxStatsWindowDays
	default:
		return days
	}
}

// StatsRange - последние windowDays дней, включая сегодня.
func StatsRange(today time.Time, windowDays int) (from, to time.Time) {
	to = timeutil.Day(today)
	return timeutil.AddDays(to, -(ClampWindow(windowDays) - 1)), to
}

// BuildSeries превращает записи в ряд по возрастанию даты без заполнения пропусков.
func BuildSeries(entries []DailyProgress) []StatPoint {
	sorted := append([]DailyProgress(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]StatPoint, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, StatPoint{Date: timeutil.FormatDate(e.Date), CurrentValue: e.CurrentValue})
	}
	return out
}
