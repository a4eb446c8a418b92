// Package progression содержит игровое состояние пользователя: опыт (XP) и уровень.
// Состояние меняется только при переходах завершённости "сегодня".
package progression

import (
	"context"
	"time"

	"github.com/kab1why1/habit/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultXPPerTransition - опыт за один переход в завершённость (или штраф за выход).
	DefaultXPPerTransition = 10

	// LevelStep - порог перехода с уровня L на L+1 равен L * LevelStep.
	LevelStep = 100

	// StartingLevel - уровень нового пользователя.
	StartingLevel = 1
)

// Rules - настраиваемая политика начисления.
type Rules struct {
	// XPPerTransition - размер награды/штрафа.
	XPPerTransition int

	// PenalizeDecrement: снимать ли опыт, когда уменьшение счётчика
	// выводит сегодняшний день из завершённого состояния.
	PenalizeDecrement bool
}

// DefaultRules - +10/-10, штраф за уменьшение включён.
func DefaultRules() Rules {
	return Rules{XPPerTransition: DefaultXPPerTransition, PenalizeDecrement: true}
}

// Cause - действие, вызвавшее переход.
type Cause int

const (
	CauseToggle Cause = iota
	CauseAccumulate
)

// DeltaFor возвращает изменение опыта для перехода. 0 - начислять нечего.
func (r Rules) DeltaFor(t progress.Transition, cause Cause) int {
	switch t {
	case progress.TransitionGained:
		return r.XPPerTransition
	case progress.TransitionLost:
		if cause == CauseAccumulate && !r.PenalizeDecrement {
			return 0
		}
		return -r.XPPerTransition
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

// UserProgression - опыт и уровень пользователя.
// XP может уйти в минус после штрафов; уровень не понижается.
type UserProgression struct {
	UserID    string
	XP        int
	Level     int
	UpdatedAt time.Time
}

// New - начальное состояние (xp=0, level=1).
func New(userID string) *UserProgression {
	return &UserProgression{UserID: userID, XP: 0, Level: StartingLevel}
}

// NextLevelAt - порог опыта для следующего уровня.
func (p *UserProgression) NextLevelAt() int {
	return p.Level * LevelStep
}

// Award - результат начисления.
type Award struct {
	Delta     int
	XP        int
	Level     int
	LeveledUp bool
}

// Apply прибавляет delta и проверяет порог ровно один раз:
// при большом скачке уровень растёт не более чем на единицу за вызов.
func (p *UserProgression) Apply(delta int, now time.Time) Award {
	p.XP += delta

	leveled := false
	if p.XP >= p.Level*LevelStep {
		p.Level++
		leveled = true
	}
	p.UpdatedAt = now.UTC()

	return Award{Delta: delta, XP: p.XP, Level: p.Level, LeveledUp: leveled}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище прогрессии.
type Repository interface {
	// Get возвращает прогрессию; ErrProgressionNotFound, если строки нет.
	Get(ctx context.Context, userID string) (*UserProgression, error)

	// GetForUpdate блокирует строку до конца транзакции, создавая её при отсутствии.
	GetForUpdate(ctx context.Context, userID string) (*UserProgression, error)

	// Save записывает xp и level.
	Save(ctx context.Context, p *UserProgression) error
}
