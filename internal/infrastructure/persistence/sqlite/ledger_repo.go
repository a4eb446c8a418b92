package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/jmoiron/sqlx"
)

// LedgerRepository implements progress.Ledger for SQLite.
// Mutations read the previous row and write the new one inside one
// transaction, which holds the store's only connection until commit.
type LedgerRepository struct {
	q sqlx.ExtContext
}

type progressRow struct {
	HabitID      string `db:"habit_id"`
	Date         string `db:"date"`
	CurrentValue int    `db:"current_value"`
	Completed    bool   `db:"completed"`
}

func (r progressRow) toDomain() (progress.DailyProgress, error) {
	day, err := timeutil.ParseDate(r.Date)
	if err != nil {
		return progress.DailyProgress{}, err
	}
	return progress.DailyProgress{
		HabitID:      r.HabitID,
		Date:         day,
		CurrentValue: r.CurrentValue,
		Completed:    r.Completed,
	}, nil
}

// Get returns the entry for the day, or an empty entry when none exists.
func (r *LedgerRepository) Get(ctx context.Context, habitID string, day time.Time) (progress.DailyProgress, error) {
	var row progressRow
	err := sqlx.GetContext(ctx, r.q, &row, `
		SELECT habit_id, date, current_value, completed
		FROM daily_progress WHERE habit_id = ? AND date = ?`,
		habitID, timeutil.FormatDate(day),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.Empty(habitID, day), nil
		}
		return progress.DailyProgress{}, fmt.Errorf("failed to get progress: %w", err)
	}
	return row.toDomain()
}

// GetForDay returns entries for several habits on one day.
func (r *LedgerRepository) GetForDay(ctx context.Context, habitIDs []string, day time.Time) (map[string]progress.DailyProgress, error) {
	out := make(map[string]progress.DailyProgress, len(habitIDs))
	if len(habitIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT habit_id, date, current_value, completed
		FROM daily_progress WHERE date = ? AND habit_id IN (?)`,
		timeutil.FormatDate(day), habitIDs,
	)
	if err != nil {
		return nil, err
	}

	var rows []progressRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get progress for day: %w", err)
	}
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out[entry.HabitID] = entry
	}
	return out, nil
}

// UpsertToggle flips the day's completion.
func (r *LedgerRepository) UpsertToggle(ctx context.Context, habitID string, target int, day time.Time) (progress.Outcome, error) {
	return r.mutate(ctx, habitID, day, func(prev progressRow) (int, bool) {
		if prev.Completed {
			return 0, false
		}
		return target, true
	})
}

// UpsertAccumulate adds delta to the day's value, kept within [0, progress.MaxValue].
func (r *LedgerRepository) UpsertAccumulate(ctx context.Context, habitID string, target int, day time.Time, delta int) (progress.Outcome, error) {
	return r.mutate(ctx, habitID, day, func(prev progressRow) (int, bool) {
		value := progress.Accumulate(prev.CurrentValue, delta)
		return value, progress.IsCompleted(value, target)
	})
}

func (r *LedgerRepository) mutate(ctx context.Context, habitID string, day time.Time, next func(prev progressRow) (int, bool)) (progress.Outcome, error) {
	if db, ok := r.q.(*sqlx.DB); ok {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return progress.Outcome{}, fmt.Errorf("failed to begin transaction: %w", err)
		}
		out, err := (&LedgerRepository{q: tx}).mutate(ctx, habitID, day, next)
		if err != nil {
			_ = tx.Rollback()
			return progress.Outcome{}, err
		}
		if err := tx.Commit(); err != nil {
			return progress.Outcome{}, fmt.Errorf("failed to commit progress: %w", err)
		}
		return out, nil
	}

	day = timeutil.Day(day)
	date := timeutil.FormatDate(day)
	now := formatTimestamp(time.Now())

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO daily_progress (habit_id, date, current_value, completed, updated_at)
		VALUES (?, ?, 0, 0, ?)
		ON CONFLICT (habit_id, date) DO NOTHING`,
		habitID, date, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return progress.Outcome{}, shared.ErrHabitNotFound
		}
		return progress.Outcome{}, fmt.Errorf("failed to ensure progress row: %w", err)
	}

	var prev progressRow
	err = sqlx.GetContext(ctx, r.q, &prev, `
		SELECT habit_id, date, current_value, completed
		FROM daily_progress WHERE habit_id = ? AND date = ?`,
		habitID, date,
	)
	if err != nil {
		return progress.Outcome{}, fmt.Errorf("failed to read progress: %w", err)
	}

	value, completed := next(prev)
	var cur progressRow
	err = sqlx.GetContext(ctx, r.q, &cur, `
		UPDATE daily_progress SET current_value = ?, completed = ?, updated_at = ?
		WHERE habit_id = ? AND date = ?
		RETURNING habit_id, date, current_value, completed`,
		value, completed, now, habitID, date,
	)
	if err != nil {
		return progress.Outcome{}, fmt.Errorf("failed to update progress: %w", err)
	}

	entry, err := cur.toDomain()
	if err != nil {
		return progress.Outcome{}, err
	}
	return progress.Outcome{Entry: entry, WasCompleted: prev.Completed}, nil
}

// CompletedDays returns the habit's completed days in [from, to], newest first.
func (r *LedgerRepository) CompletedDays(ctx context.Context, habitID string, from, to time.Time) ([]time.Time, error) {
	var dates []string
	err := sqlx.SelectContext(ctx, r.q, &dates, `
		SELECT date FROM daily_progress
		WHERE habit_id = ? AND completed = 1 AND date BETWEEN ? AND ?
		ORDER BY date DESC`,
		habitID, timeutil.FormatDate(from), timeutil.FormatDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed days: %w", err)
	}

	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day, err := timeutil.ParseDate(d)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

// CompletionCounts counts completed entries per day across the owner's habits.
func (r *LedgerRepository) CompletionCounts(ctx context.Context, ownerID string, rng progress.DateRange) ([]progress.DayCount, error) {
	query := `
		SELECT dp.date AS date, COUNT(*) AS count
		FROM daily_progress dp
		JOIN habits h ON h.id = dp.habit_id
		WHERE h.owner_id = ? AND dp.completed = 1`
	args := []any{ownerID}
	if rng.From != nil {
		query += ` AND dp.date >= ?`
		args = append(args, timeutil.FormatDate(*rng.From))
	}
	if rng.To != nil {
		query += ` AND dp.date <= ?`
		args = append(args, timeutil.FormatDate(*rng.To))
	}
	query += ` GROUP BY dp.date ORDER BY dp.date`

	var rows []struct {
		Date  string `db:"date"`
		Count int    `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query completion counts: %w", err)
	}

	counts := make([]progress.DayCount, 0, len(rows))
	for _, row := range rows {
		day, err := timeutil.ParseDate(row.Date)
		if err != nil {
			return nil, err
		}
		counts = append(counts, progress.DayCount{Date: day, Count: row.Count})
	}
	return counts, nil
}

// Series returns the habit's entries in [from, to] in ascending date order.
func (r *LedgerRepository) Series(ctx context.Context, habitID string, from, to time.Time) ([]progress.DailyProgress, error) {
	var rows []progressRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT habit_id, date, current_value, completed
		FROM daily_progress
		WHERE habit_id = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC`,
		habitID, timeutil.FormatDate(from), timeutil.FormatDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	entries := make([]progress.DailyProgress, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
