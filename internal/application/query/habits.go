// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT VIEWS
// Привычка вместе с состоянием выбранного дня и текущей серией.
// Серия всегда считается от "сегодня", даже если запрошен прошлый день.
// ══════════════════════════════════════════════════════════════════════════════

// HabitView - привычка с прогрессом за день.
type HabitView struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	Color        string    `json:"color"`
	Kind         string    `json:"kind"`
	TargetValue  int       `json:"target_value"`
	CreatedAt    time.Time `json:"created_at"`
	Date         string    `json:"date"`
	Completed    bool      `json:"completed"`
	CurrentValue int       `json:"current_value"`
	Streak       int       `json:"streak"`
}

// ListHabitsQuery - параметры списка привычек.
type ListHabitsQuery struct {
	Actor shared.Actor

	// Date - день прогресса (YYYY-MM-DD), пусто - сегодня.
	Date string

	// All - все привычки системы; только для администратора.
	All bool
}

// GetHabitQuery - одна привычка.
type GetHabitQuery struct {
	Actor   shared.Actor
	HabitID string
	Date    string
}

// HabitsHandler обрабатывает запросы привычек.
type HabitsHandler struct {
	store  port.Store
	clock  timeutil.Clock
	streak progress.StreakCalculator
	logger *logger.Logger
}

// NewHabitsHandler создаёт обработчик. maxLookbackDays <= 0 - один год.
func NewHabitsHandler(store port.Store, clock timeutil.Clock, maxLookbackDays int, log *logger.Logger) *HabitsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &HabitsHandler{
		store:  store,
		clock:  clock,
		streak: progress.NewStreakCalculator(maxLookbackDays),
		logger: log.Named("habit_views"),
	}
}

// List возвращает привычки с прогрессом, новые первыми.
func (h *HabitsHandler) List(ctx context.Context, q ListHabitsQuery) ([]HabitView, error) {
	if q.Actor.UserID == "" {
		return nil, fmt.Errorf("list_habits: %w", shared.ErrUnauthorized)
	}
	if q.All && !q.Actor.IsAdmin() {
		return nil, fmt.Errorf("list_habits: %w", shared.ErrForbidden)
	}

	today := timeutil.Today(h.clock)
	day, _, err := progress.ResolveDate(q.Date, today)
	if err != nil {
		return nil, fmt.Errorf("list_habits: %w", err)
	}

	var habits []*habit.Habit
	if q.All {
		habits, err = h.store.Habits().ListAll(ctx)
	} else {
		habits, err = h.store.Habits().ListByOwner(ctx, q.Actor.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list_habits: failed to list habits: %w", err)
	}
	if len(habits) == 0 {
		return []HabitView{}, nil
	}

	ids := make([]string, len(habits))
	for i, hb := range habits {
		ids[i] = hb.ID
	}
	entries, err := h.store.Ledger().GetForDay(ctx, ids, day)
	if err != nil {
		return nil, fmt.Errorf("list_habits: failed to load progress: %w", err)
	}

	views := make([]HabitView, 0, len(habits))
	for _, hb := range habits {
		entry, ok := entries[hb.ID]
		if !ok {
			entry = progress.Empty(hb.ID, day)
		}
		streak, err := h.streakOf(ctx, hb.ID, today)
		if err != nil {
			return nil, fmt.Errorf("list_habits: %w", err)
		}
		views = append(views, newHabitView(hb, entry, streak))
	}

	h.logger.Debug("habits listed",
		logger.UserID(q.Actor.UserID),
		logger.Date(timeutil.FormatDate(day)),
		logger.Int("count", len(views)),
	)
	return views, nil
}

// Get возвращает одну привычку с прогрессом.
func (h *HabitsHandler) Get(ctx context.Context, q GetHabitQuery) (*HabitView, error) {
	today := timeutil.Today(h.clock)
	day, _, err := progress.ResolveDate(q.Date, today)
	if err != nil {
		return nil, fmt.Errorf("get_habit: %w", err)
	}

	hb, err := h.store.Habits().GetByID(ctx, q.HabitID)
	if err != nil {
		return nil, fmt.Errorf("get_habit: %w", err)
	}
	if err := hb.AuthorizeManage(q.Actor); err != nil {
		return nil, fmt.Errorf("get_habit: %w", err)
	}

	entry, err := h.store.Ledger().Get(ctx, hb.ID, day)
	if err != nil {
		return nil, fmt.Errorf("get_habit: failed to load progress: %w", err)
	}
	streak, err := h.streakOf(ctx, hb.ID, today)
	if err != nil {
		return nil, fmt.Errorf("get_habit: %w", err)
	}

	view := newHabitView(hb, entry, streak)
	return &view, nil
}

// streakOf загружает выполненные дни в окне калькулятора одним запросом.
func (h *HabitsHandler) streakOf(ctx context.Context, habitID string, today time.Time) (int, error) {
	from, to := h.streak.Window(today)
	days, err := h.store.Ledger().CompletedDays(ctx, habitID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to load completed days: %w", err)
	}
	return h.streak.ComputeFromDays(today, days), nil
}

func newHabitView(hb *habit.Habit, entry progress.DailyProgress, streak int) HabitView {
	return HabitView{
		ID:           hb.ID,
		OwnerID:      hb.OwnerID,
		Title:        hb.Title,
		Description:  hb.Description,
		Category:     hb.Category,
		Color:        hb.Color,
		Kind:         string(hb.Kind),
		TargetValue:  hb.TargetValue,
		CreatedAt:    hb.CreatedAt,
		Date:         timeutil.FormatDate(entry.Date),
		Completed:    entry.Completed,
		CurrentValue: entry.CurrentValue,
		Streak:       streak,
	}
}
