package postgres

import (
	"context"
	"fmt"

	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// HabitRepository implements habit.Repository for PostgreSQL.
type HabitRepository struct {
	q Querier
}

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(q Querier) *HabitRepository {
	return &HabitRepository{q: q}
}

const habitColumns = `id, owner_id, title, description, category, color, kind, target_value, created_at`

// Create inserts a new habit.
func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) error {
	query := `
		INSERT INTO habits (` + habitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if !validID(h.OwnerID) {
		return shared.ErrUserNotFound
	}

	_, err := r.q.Exec(ctx, query,
		h.ID,
		h.OwnerID,
		h.Title,
		h.Description,
		h.Category,
		h.Color,
		string(h.Kind),
		h.TargetValue,
		h.CreatedAt,
	)
	if err != nil {
		switch {
		case IsForeignKeyViolation(err):
			return shared.ErrUserNotFound
		case IsUniqueViolation(err):
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

// GetByID returns a habit by ID.
func (r *HabitRepository) GetByID(ctx context.Context, id string) (*habit.Habit, error) {
	if !validID(id) {
		return nil, shared.ErrHabitNotFound
	}

	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1`
	return scanHabit(r.q.QueryRow(ctx, query, id))
}

// ListByOwner returns the owner's habits, newest first.
func (r *HabitRepository) ListByOwner(ctx context.Context, ownerID string) ([]*habit.Habit, error) {
	if !validID(ownerID) {
		return []*habit.Habit{}, nil
	}

	query := `SELECT ` + habitColumns + ` FROM habits WHERE owner_id = $1 ORDER BY created_at DESC, id`
	rows, err := r.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	return collectHabits(rows)
}

// ListAll returns every habit, newest first.
func (r *HabitRepository) ListAll(ctx context.Context) ([]*habit.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits ORDER BY created_at DESC, id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	return collectHabits(rows)
}

// Update writes the editable fields.
func (r *HabitRepository) Update(ctx context.Context, h *habit.Habit) error {
	if !validID(h.ID) {
		return shared.ErrHabitNotFound
	}

	query := `
		UPDATE habits SET
			title = $1,
			description = $2,
			category = $3,
			color = $4
		WHERE id = $5
	`

	tag, err := r.q.Exec(ctx, query, h.Title, h.Description, h.Category, h.Color, h.ID)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrHabitNotFound
	}
	return nil
}

// Delete removes a habit; its ledger rows go with it (ON DELETE CASCADE).
func (r *HabitRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return shared.ErrHabitNotFound
	}

	tag, err := r.q.Exec(ctx, `DELETE FROM habits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrHabitNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanHabit(row pgx.Row) (*habit.Habit, error) {
	var h habit.Habit
	var kind string

	err := row.Scan(
		&h.ID,
		&h.OwnerID,
		&h.Title,
		&h.Description,
		&h.Category,
		&h.Color,
		&kind,
		&h.TargetValue,
		&h.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to scan habit: %w", err)
	}

	h.Kind = habit.Kind(kind)
	h.CreatedAt = h.CreatedAt.UTC()
	return &h, nil
}

func collectHabits(rows pgx.Rows) ([]*habit.Habit, error) {
	defer rows.Close()

	habits := make([]*habit.Habit, 0)
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate habits: %w", err)
	}
	return habits, nil
}
