package habit

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет CRUD для привычек.
type Repository interface {
	// Create сохраняет новую привычку.
	Create(ctx context.Context, h *Habit) error

	// GetByID возвращает привычку по ID.
	// Возвращает ErrHabitNotFound, если привычки нет.
	GetByID(ctx context.Context, id string) (*Habit, error)

	// ListByOwner возвращает привычки пользователя, новые первыми.
	ListByOwner(ctx context.Context, ownerID string) ([]*Habit, error)

	// ListAll возвращает все привычки (для администратора), новые первыми.
	ListAll(ctx context.Context) ([]*Habit, error)

	// Update сохраняет редактируемые поля. Владелец, тип и цель не меняются.
	Update(ctx context.Context, h *Habit) error

	// Delete удаляет привычку вместе со всеми записями прогресса (каскадно).
	Delete(ctx context.Context, id string) error
}
