// Package habit содержит доменную модель привычки.
// Привычка - это определение (название, тип, цель); прогресс по дням хранится
// отдельно в пакете progress. Внешних зависимостей нет.
package habit

import (
	"math"
	"strings"
	"time"

	"github.com/kab1why1/habit/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Kind - тип привычки: отметка "сделано" или числовой счётчик.
type Kind string

const (
	KindBoolean Kind = "boolean"
	KindNumeric Kind = "numeric"
)

// IsValid проверяет, что тип известен.
func (k Kind) IsValid() bool {
	return k == KindBoolean || k == KindNumeric
}

// ParseKind разбирает тип привычки. Пустая строка означает boolean.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindBoolean, nil
	}
	if !k.IsValid() {
		return "", shared.ErrInvalidKind
	}
	return k, nil
}

const (
	// DefaultCategory подставляется, если категория не указана.
	DefaultCategory = "general"

	// DefaultColor - цвет по умолчанию (только для отображения).
	DefaultColor = "#4f46e5"

	// MaxTitleLength совпадает с VARCHAR(255) в схеме.
	MaxTitleLength = 255

	// MaxTargetValue совпадает с INTEGER в схеме.
	MaxTargetValue = math.MaxInt32
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Habit - повторяющаяся активность пользователя с целью на день.
type Habit struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Category    string
	Color       string
	Kind        Kind
	TargetValue int
	CreatedAt   time.Time
}

// NewHabitParams - входные данные для создания привычки.
type NewHabitParams struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Category    string
	Color       string
	Kind        Kind
	TargetValue int
}

// NewHabit создаёт привычку, подставляя значения по умолчанию.
// Для boolean-привычки цель всегда равна 1.
func NewHabit(p NewHabitParams, now time.Time) (*Habit, error) {
	kind := p.Kind
	if kind == "" {
		kind = KindBoolean
	}

	h := &Habit{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		Category:    normalizeCategory(p.Category),
		Color:       normalizeColor(p.Color),
		Kind:        kind,
		TargetValue: p.TargetValue,
		CreatedAt:   now.UTC(),
	}
	if h.IsBoolean() {
		h.TargetValue = 1
	}

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate проверяет инварианты привычки.
func (h *Habit) Validate() error {
	if h.OwnerID == "" {
		return shared.ErrInvalidOwner
	}
	if h.Title == "" {
		return shared.ErrEmptyTitle
	}
	if len(h.Title) > MaxTitleLength {
		return shared.NewDomainError("habit", "Validate", shared.ErrValueOutOfRange, "title is too long")
	}
	if !h.Kind.IsValid() {
		return shared.ErrInvalidKind
	}
	if h.TargetValue < 1 || h.TargetValue > MaxTargetValue {
		return shared.ErrInvalidTarget
	}
	if h.IsBoolean() && h.TargetValue != 1 {
		return shared.ErrInvalidTarget
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Update
// ──────────────────────────────────────────────────────────────────────────────

// Update - частичное изменение привычки. nil-поля не меняются.
// Тип и цель не редактируются: от них зависят уже сохранённые флаги completed.
type Update struct {
	Title       *string
	Description *string
	Category    *string
	Color       *string
}

// Apply применяет изменения и заново валидирует привычку.
// При ошибке привычка остаётся без изменений.
func (h *Habit) Apply(u Update) error {
	next := *h
	if u.Title != nil {
		next.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		next.Description = strings.TrimSpace(*u.Description)
	}
	if u.Category != nil {
		next.Category = normalizeCategory(*u.Category)
	}
	if u.Color != nil {
		next.Color = normalizeColor(*u.Color)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*h = next
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Ownership
// ──────────────────────────────────────────────────────────────────────────────

// IsOwnedBy проверяет владельца.
func (h *Habit) IsOwnedBy(userID string) bool {
	return userID != "" && h.OwnerID == userID
}

// AuthorizeProgress - единая проверка перед любой записью прогресса.
// Чужая привычка неотличима от несуществующей.
func (h *Habit) AuthorizeProgress(actor shared.Actor) error {
	if !h.IsOwnedBy(actor.UserID) {
		return shared.ErrHabitNotFound
	}
	return nil
}

// AuthorizeManage разрешает чтение/изменение/удаление владельцу и администратору.
func (h *Habit) AuthorizeManage(actor shared.Actor) error {
	if actor.IsAdmin() || h.IsOwnedBy(actor.UserID) {
		return nil
	}
	return shared.ErrHabitNotFound
}

// IsBoolean - привычка типа "сделано/не сделано".
func (h *Habit) IsBoolean() bool {
	return h.Kind == KindBoolean
}

func normalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory
	}
	return s
}

func normalizeColor(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultColor
	}
	return s
}
