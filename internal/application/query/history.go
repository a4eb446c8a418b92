package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY AND STATS
// История - карта "дата -> число выполненных привычек" для календаря.
// Статистика - ряд значений одной привычки за последние N дней.
// ══════════════════════════════════════════════════════════════════════════════

// GetHistoryQuery - параметры истории. Обе границы необязательны.
type GetHistoryQuery struct {
	Actor shared.Actor
	From  string
	To    string
}

// GetStatsQuery - параметры статистики привычки.
type GetStatsQuery struct {
	Actor   shared.Actor
	HabitID string

	// WindowDays приводится к [1, 366]; 0 - 30 дней.
	WindowDays int
}

// StatsResult - ряд значений привычки.
type StatsResult struct {
	HabitID    string               `json:"habit_id"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	WindowDays int                  `json:"window_days"`
	Series     []progress.StatPoint `json:"series"`
}

// HistoryHandler обрабатывает запросы истории и статистики.
type HistoryHandler struct {
	store         port.Store
	clock         timeutil.Clock
	defaultWindow int
	logger        *logger.Logger
}

// NewHistoryHandler создаёт обработчик. defaultWindow - окно статистики, если в запросе 0.
func NewHistoryHandler(store port.Store, clock timeutil.Clock, defaultWindow int, log *logger.Logger) *HistoryHandler {
	if log == nil {
		log = logger.Default()
	}
	return &HistoryHandler{
		store:         store,
		clock:         clock,
		defaultWindow: progress.ClampWindow(defaultWindow),
		logger:        log.Named("history"),
	}
}

// History возвращает карту выполнений по всем привычкам пользователя.
func (h *HistoryHandler) History(ctx context.Context, q GetHistoryQuery) (progress.History, error) {
	if q.Actor.UserID == "" {
		return nil, fmt.Errorf("get_history: %w", shared.ErrUnauthorized)
	}

	today := timeutil.Today(h.clock)
	var r progress.DateRange

	from, err := optionalDay(q.From, today)
	if err != nil {
		return nil, fmt.Errorf("get_history: from: %w", err)
	}
	to, err := optionalDay(q.To, today)
	if err != nil {
		return nil, fmt.Errorf("get_history: to: %w", err)
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, fmt.Errorf("get_history: %w",
			shared.NewDomainError("progress", "History", shared.ErrValueOutOfRange, "from must not be after to"))
	}
	r.From, r.To = from, to

	counts, err := h.store.Ledger().CompletionCounts(ctx, q.Actor.UserID, r)
	if err != nil {
		return nil, fmt.Errorf("get_history: failed to aggregate progress: %w", err)
	}
	return progress.BuildHistory(counts), nil
}

// Stats возвращает ряд значений привычки по возрастанию даты без пропусков-нулей.
func (h *HistoryHandler) Stats(ctx context.Context, q GetStatsQuery) (*StatsResult, error) {
	hb, err := h.store.Habits().GetByID(ctx, q.HabitID)
	if err != nil {
		return nil, fmt.Errorf("get_stats: %w", err)
	}
	if err := hb.AuthorizeManage(q.Actor); err != nil {
		return nil, fmt.Errorf("get_stats: %w", err)
	}

	window := q.WindowDays
	if window == 0 {
		window = h.defaultWindow
	}
	window = progress.ClampWindow(window)
	from, to := progress.StatsRange(timeutil.Today(h.clock), window)

	entries, err := h.store.Ledger().Series(ctx, hb.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get_stats: failed to load series: %w", err)
	}

	return &StatsResult{
		HabitID:    hb.ID,
		From:       timeutil.FormatDate(from),
		To:         timeutil.FormatDate(to),
		WindowDays: window,
		Series:     progress.BuildSeries(entries),
	}, nil
}

// optionalDay разбирает необязательную границу; будущие даты отклоняются.
func optionalDay(raw string, today time.Time) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	day, _, err := progress.ResolveDate(raw, today)
	if err != nil {
		return nil, err
	}
	return &day, nil
}
