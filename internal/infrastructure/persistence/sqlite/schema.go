package sqlite

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_users",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'admin')),
				created_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_progression (
				user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				xp INTEGER NOT NULL DEFAULT 0,
				level INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "create_habits",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS habits (
				id TEXT PRIMARY KEY,
				owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title TEXT NOT NULL CHECK (length(trim(title)) > 0),
				description TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL DEFAULT 'general',
				color TEXT NOT NULL DEFAULT '#4f46e5',
				kind TEXT NOT NULL DEFAULT 'boolean' CHECK (kind IN ('boolean', 'numeric')),
				target_value INTEGER NOT NULL DEFAULT 1 CHECK (target_value >= 1),
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_habits_owner_created ON habits(owner_id, created_at DESC)`,
		},
	},
	{
		version: 3,
		name:    "create_daily_progress",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS daily_progress (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
				date TEXT NOT NULL,
				current_value INTEGER NOT NULL DEFAULT 0 CHECK (current_value >= 0),
				completed INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL,
				UNIQUE (habit_id, date)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_daily_progress_date ON daily_progress(date)`,
		},
	},
}

// Migrate applies pending migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to create migrations table: %w", err)
	}

	var applied []int
	if err := s.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("sqlite: failed to read migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	ran := 0
	for _, m := range migrations {
		if done[m.version] {
			continue
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return ran, err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return ran, fmt.Errorf("sqlite: migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return ran, err
		}
		if err := tx.Commit(); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// MigrationStatus is one embedded migration and whether it has been applied.
type MigrationStatus struct {
	Version int
	Name    string
	Applied bool
}

// Status lists the embedded migrations in version order.
func (s *Store) Status(ctx context.Context) ([]MigrationStatus, error) {
	var applied []int
	if err := s.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("sqlite: failed to read migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, MigrationStatus{Version: m.version, Name: m.name, Applied: done[m.version]})
	}
	return out, nil
}
