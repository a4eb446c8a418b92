package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Сначала кэш; при промахе или ошибке кэша - реляционное хранилище.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardResult - таблица лидеров.
type GetLeaderboardResult struct {
	Entries []leaderboard.Entry `json:"entries"`

	// Source - "cache" или "store".
	Source string `json:"source"`
}

// LeaderboardHandler обрабатывает запросы таблицы лидеров.
type LeaderboardHandler struct {
	store       port.Store
	cache       leaderboard.Cache
	defaultSize int
	logger      *logger.Logger
}

// NewLeaderboardHandler создаёт обработчик. cache может быть nil.
func NewLeaderboardHandler(store port.Store, cache leaderboard.Cache, defaultSize int, log *logger.Logger) *LeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &LeaderboardHandler{
		store:       store,
		cache:       cache,
		defaultSize: leaderboard.ClampLimit(defaultSize),
		logger:      log.Named("leaderboard"),
	}
}

// Top возвращает первые limit пользователей; 0 - размер по умолчанию.
func (h *LeaderboardHandler) Top(ctx context.Context, limit int) (*GetLeaderboardResult, error) {
	if limit == 0 {
		limit = h.defaultSize
	}
	limit = leaderboard.ClampLimit(limit)

	if h.cache != nil {
		entries, ok, err := h.cache.Top(ctx, limit)
		switch {
		case err != nil:
			h.logger.Warn("leaderboard cache read failed, using store", logger.Err(err))
		case ok:
			return &GetLeaderboardResult{Entries: entries, Source: "cache"}, nil
		}
	}

	entries, err := h.store.Leaderboard().Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	return &GetLeaderboardResult{Entries: entries, Source: "store"}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION AND PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionView - опыт и уровень пользователя.
type ProgressionView struct {
	UserID      string `json:"user_id"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
	NextLevelAt int    `json:"next_level_at"`
}

// UserView - профиль пользователя с прогрессией.
type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	XP          int       `json:"xp"`
	Level       int       `json:"level"`
	NextLevelAt int       `json:"next_level_at"`
}

// ProfileHandler обрабатывает запросы профиля.
type ProfileHandler struct {
	store port.Store
}

// NewProfileHandler создаёт обработчик.
func NewProfileHandler(store port.Store) *ProfileHandler {
	return &ProfileHandler{store: store}
}

// Progression возвращает прогрессию. Отсутствующая строка - начальное состояние.
func (h *ProfileHandler) Progression(ctx context.Context, userID string) (*ProgressionView, error) {
	p, err := h.progressionOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_progression: %w", err)
	}
	return &ProgressionView{UserID: userID, XP: p.XP, Level: p.Level, NextLevelAt: p.NextLevelAt()}, nil
}

// User возвращает профиль. Чужой профиль доступен только администратору.
func (h *ProfileHandler) User(ctx context.Context, actor shared.Actor, userID string) (*UserView, error) {
	if actor.UserID != userID && !actor.IsAdmin() {
		return nil, fmt.Errorf("get_user: %w", shared.ErrUserNotFound)
	}

	u, err := h.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_user: %w", err)
	}
	p, err := h.progressionOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_user: %w", err)
	}

	return &UserView{
		ID:          u.ID,
		Username:    u.Username,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
		XP:          p.XP,
		Level:       p.Level,
		NextLevelAt: p.NextLevelAt(),
	}, nil
}

func (h *ProfileHandler) progressionOf(ctx context.Context, userID string) (*progression.UserProgression, error) {
	p, err := h.store.Progression().Get(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return progression.New(userID), nil
		}
		return nil, err
	}
	return p, nil
}
