package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/shared"

	"github.com/jmoiron/sqlx"
)

// HabitRepository implements habit.Repository for SQLite.
type HabitRepository struct {
	q sqlx.ExtContext
}

type habitRow struct {
	ID          string `db:"id"`
	OwnerID     string `db:"owner_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Category    string `db:"category"`
	Color       string `db:"color"`
	Kind        string `db:"kind"`
	TargetValue int    `db:"target_value"`
	CreatedAt   string `db:"created_at"`
}

func (r habitRow) toDomain() (*habit.Habit, error) {
	created, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &habit.Habit{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Color:       r.Color,
		Kind:        habit.Kind(r.Kind),
		TargetValue: r.TargetValue,
		CreatedAt:   created,
	}, nil
}

const habitSelect = `SELECT id, owner_id, title, description, category, color, kind, target_value, created_at FROM habits`

// Create inserts a new habit.
func (r *HabitRepository) Create(ctx context.Context, h *habit.Habit) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO habits (id, owner_id, title, description, category, color, kind, target_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.OwnerID, h.Title, h.Description, h.Category, h.Color, string(h.Kind), h.TargetValue, formatTimestamp(h.CreatedAt),
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return shared.ErrUserNotFound
		case isUniqueViolation(err):
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

// GetByID returns a habit by ID.
func (r *HabitRepository) GetByID(ctx context.Context, id string) (*habit.Habit, error) {
	var row habitRow
	if err := sqlx.GetContext(ctx, r.q, &row, habitSelect+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return row.toDomain()
}

// ListByOwner returns the owner's habits, newest first.
func (r *HabitRepository) ListByOwner(ctx context.Context, ownerID string) ([]*habit.Habit, error) {
	return r.list(ctx, habitSelect+` WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
}

// ListAll returns every habit, newest first.
func (r *HabitRepository) ListAll(ctx context.Context) ([]*habit.Habit, error) {
	return r.list(ctx, habitSelect+` ORDER BY created_at DESC, id`)
}

func (r *HabitRepository) list(ctx context.Context, query string, args ...any) ([]*habit.Habit, error) {
	var rows []habitRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}

	habits := make([]*habit.Habit, 0, len(rows))
	for _, row := range rows {
		h, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, nil
}

// Update writes the editable fields.
func (r *HabitRepository) Update(ctx context.Context, h *habit.Habit) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE habits SET title = ?, description = ?, category = ?, color = ?
		WHERE id = ?`,
		h.Title, h.Description, h.Category, h.Color, h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	return requireAffected(res, shared.ErrHabitNotFound)
}

// Delete removes a habit and, by cascade, its ledger rows.
func (r *HabitRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	return requireAffected(res, shared.ErrHabitNotFound)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
