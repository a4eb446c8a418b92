package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements progress.Ledger for PostgreSQL.
//
// Mutations first make sure the (habit, date) row exists, then update it
// against a locked snapshot of itself so the previous completed flag comes
// back in the same statement. Must run inside a transaction to hold the lock
// until the progression update commits.
type LedgerRepository struct {
	q Querier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(q Querier) *LedgerRepository {
	return &LedgerRepository{q: q}
}

// Get returns the entry for the day, or an empty entry when none exists.
func (r *LedgerRepository) Get(ctx context.Context, habitID string, day time.Time) (progress.DailyProgress, error) {
	day = timeutil.Day(day)
	if !validID(habitID) {
		return progress.Empty(habitID, day), nil
	}

	query := `
		SELECT current_value, completed
		FROM daily_progress
		WHERE habit_id = $1 AND date = $2
	`

	entry := progress.DailyProgress{HabitID: habitID, Date: day}
	err := r.q.QueryRow(ctx, query, habitID, day).Scan(&entry.CurrentValue, &entry.Completed)
	if err != nil {
		if IsNoRows(err) {
			return progress.Empty(habitID, day), nil
		}
		return progress.DailyProgress{}, fmt.Errorf("failed to get progress: %w", err)
	}
	return entry, nil
}

// GetForDay returns entries for several habits on one day.
func (r *LedgerRepository) GetForDay(ctx context.Context, habitIDs []string, day time.Time) (map[string]progress.DailyProgress, error) {
	day = timeutil.Day(day)
	out := make(map[string]progress.DailyProgress, len(habitIDs))

	ids := make([]string, 0, len(habitIDs))
	for _, id := range habitIDs {
		if validID(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT habit_id::text, current_value, completed
		FROM daily_progress
		WHERE habit_id = ANY($1::text[]::uuid[]) AND date = $2
	`

	rows, err := r.q.Query(ctx, query, ids, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for day: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry := progress.DailyProgress{Date: day}
		if err := rows.Scan(&entry.HabitID, &entry.CurrentValue, &entry.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		out[entry.HabitID] = entry
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic mutations
// ─────────────────────────────────────────────────────────────────────────────

// UpsertToggle flips the day's completion.
func (r *LedgerRepository) UpsertToggle(ctx context.Context, habitID string, target int, day time.Time) (progress.Outcome, error) {
	query := `
		UPDATE daily_progress AS d
		SET completed = NOT prev.completed,
			current_value = CASE WHEN prev.completed THEN 0 ELSE $3 END,
			updated_at = NOW()
		FROM (
			SELECT id, completed
			FROM daily_progress
			WHERE habit_id = $1 AND date = $2
			FOR UPDATE
		) prev
		WHERE d.id = prev.id
		RETURNING d.current_value, d.completed, prev.completed
	`

	return r.mutate(ctx, habitID, day, query, target)
}

// UpsertAccumulate adds delta to the day's value, kept within [0, progress.MaxValue].
// The sum is taken in bigint so it saturates instead of overflowing the column.
func (r *LedgerRepository) UpsertAccumulate(ctx context.Context, habitID string, target int, day time.Time, delta int) (progress.Outcome, error) {
	query := `
		UPDATE daily_progress AS d
		SET current_value = LEAST($5::bigint, GREATEST(0, prev.current_value::bigint + $3::bigint)),
			completed = LEAST($5::bigint, GREATEST(0, prev.current_value::bigint + $3::bigint)) >= $4,
			updated_at = NOW()
		FROM (
			SELECT id, current_value, completed
			FROM daily_progress
			WHERE habit_id = $1 AND date = $2
			FOR UPDATE
		) prev
		WHERE d.id = prev.id
		RETURNING d.current_value, d.completed, prev.completed
	`

	return r.mutate(ctx, habitID, day, query, delta, target, progress.MaxValue)
}

func (r *LedgerRepository) mutate(ctx context.Context, habitID string, day time.Time, query string, args ...any) (progress.Outcome, error) {
	day = timeutil.Day(day)
	if !validID(habitID) {
		return progress.Outcome{}, shared.ErrHabitNotFound
	}

	ensure := `
		INSERT INTO daily_progress (habit_id, date, current_value, completed)
		VALUES ($1, $2, 0, FALSE)
		ON CONFLICT (habit_id, date) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, ensure, habitID, day); err != nil {
		if IsForeignKeyViolation(err) {
			return progress.Outcome{}, shared.ErrHabitNotFound
		}
		return progress.Outcome{}, fmt.Errorf("failed to ensure progress row: %w", err)
	}

	out := progress.Outcome{Entry: progress.DailyProgress{HabitID: habitID, Date: day}}
	params := append([]any{habitID, day}, args...)
	err := r.q.QueryRow(ctx, query, params...).Scan(&out.Entry.CurrentValue, &out.Entry.Completed, &out.WasCompleted)
	if err != nil {
		if IsNoRows(err) {
			return progress.Outcome{}, shared.ErrHabitNotFound
		}
		return progress.Outcome{}, fmt.Errorf("failed to update progress: %w", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads over ranges
// ─────────────────────────────────────────────────────────────────────────────

// CompletedDays returns the habit's completed days in [from, to], newest first.
func (r *LedgerRepository) CompletedDays(ctx context.Context, habitID string, from, to time.Time) ([]time.Time, error) {
	if !validID(habitID) {
		return []time.Time{}, nil
	}

	query := `
		SELECT date
		FROM daily_progress
		WHERE habit_id = $1 AND completed AND date BETWEEN $2 AND $3
		ORDER BY date DESC
	`

	rows, err := r.q.Query(ctx, query, habitID, timeutil.Day(from), timeutil.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query completed days: %w", err)
	}
	defer rows.Close()

	days := make([]time.Time, 0)
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		days = append(days, timeutil.Day(d))
	}
	return days, rows.Err()
}

// CompletionCounts counts completed entries per day across the owner's habits.
func (r *LedgerRepository) CompletionCounts(ctx context.Context, ownerID string, rng progress.DateRange) ([]progress.DayCount, error) {
	if !validID(ownerID) {
		return []progress.DayCount{}, nil
	}

	query := `
		SELECT dp.date, COUNT(*)
		FROM daily_progress dp
		JOIN habits h ON h.id = dp.habit_id
		WHERE h.owner_id = $1
		  AND dp.completed
		  AND ($2::date IS NULL OR dp.date >= $2)
		  AND ($3::date IS NULL OR dp.date <= $3)
		GROUP BY dp.date
		ORDER BY dp.date
	`

	rows, err := r.q.Query(ctx, query, ownerID, dayOrNil(rng.From), dayOrNil(rng.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion counts: %w", err)
	}
	defer rows.Close()

	counts := make([]progress.DayCount, 0)
	for rows.Next() {
		var c progress.DayCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan completion count: %w", err)
		}
		c.Date = timeutil.Day(c.Date)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Series returns the habit's entries in [from, to] in ascending date order.
func (r *LedgerRepository) Series(ctx context.Context, habitID string, from, to time.Time) ([]progress.DailyProgress, error) {
	if !validID(habitID) {
		return []progress.DailyProgress{}, nil
	}

	query := `
		SELECT date, current_value, completed
		FROM daily_progress
		WHERE habit_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC
	`

	rows, err := r.q.Query(ctx, query, habitID, timeutil.Day(from), timeutil.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.DailyProgress, error) {
		e := progress.DailyProgress{HabitID: habitID}
		err := row.Scan(&e.Date, &e.CurrentValue, &e.Completed)
		e.Date = timeutil.Day(e.Date)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan series: %w", err)
	}
	return entries, nil
}

func dayOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeutil.Day(*t)
}
