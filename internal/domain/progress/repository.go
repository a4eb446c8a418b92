package progress

import (
	"context"
	"time"
)

// DayCount - число выполненных привычек за день.
type DayCount struct {
	Date  time.Time
	Count int
}

// DateRange - необязательные границы (включительно).
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Ledger - хранилище дневного прогресса.
// Каждая мутация атомарна и сама пересчитывает флаг completed.
type Ledger interface {
	// Get возвращает запись или Empty, если её нет. Строку не создаёт.
	Get(ctx context.Context, habitID string, day time.Time) (DailyProgress, error)

	// GetForDay возвращает записи нескольких привычек за день (отсутствующие - не в карте).
	GetForDay(ctx context.Context, habitIDs []string, day time.Time) (map[string]DailyProgress, error)

	// UpsertToggle переключает завершённость дня.
	// Нет записи: создаёт (target, true). Есть: инвертирует completed,
	// current_value становится target или 0.
	UpsertToggle(ctx context.Context, habitID string, target int, day time.Time) (Outcome, error)

	// UpsertAccumulate прибавляет delta (может быть отрицательной) с полом в нуле.
	UpsertAccumulate(ctx context.Context, habitID string, target int, day time.Time, delta int) (Outcome, error)

	// CompletedDays возвращает выполненные дни привычки в [from, to].
	CompletedDays(ctx context.Context, habitID string, from, to time.Time) ([]time.Time, error)

	// CompletionCounts группирует выполненные записи привычек владельца по дням.
	CompletionCounts(ctx context.Context, ownerID string, r DateRange) ([]DayCount, error)

	// Series возвращает записи привычки в [from, to] по возрастанию даты.
	Series(ctx context.Context, habitID string, from, to time.Time) ([]DailyProgress, error)
}
