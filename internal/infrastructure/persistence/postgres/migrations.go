package postgres

// Migrations returns the embedded schema migrations.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_habits", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_daily_progress", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS AND PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username VARCHAR(255) NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'user',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('user', 'admin'))
);

CREATE TABLE IF NOT EXISTS user_progression (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    xp INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level >= 1)
);

-- Leaderboard order
CREATE INDEX IF NOT EXISTS idx_user_progression_rank ON user_progression(level DESC, xp DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS user_progression;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: HABITS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS habits (
    id UUID PRIMARY KEY,
    owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category VARCHAR(100) NOT NULL DEFAULT 'general',
    color VARCHAR(20) NOT NULL DEFAULT '#4f46e5',
    kind VARCHAR(10) NOT NULL DEFAULT 'boolean',
    target_value INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_title CHECK (length(trim(title)) > 0),
    CONSTRAINT valid_kind CHECK (kind IN ('boolean', 'numeric')),
    CONSTRAINT valid_target CHECK (target_value >= 1),
    CONSTRAINT boolean_target CHECK (kind <> 'boolean' OR target_value = 1)
);

CREATE INDEX IF NOT EXISTS idx_habits_owner_created ON habits(owner_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS habits;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: DAILY PROGRESS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS daily_progress (
    id BIGSERIAL PRIMARY KEY,
    habit_id UUID NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
    date DATE NOT NULL,
    current_value INTEGER NOT NULL DEFAULT 0,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT daily_progress_habit_date UNIQUE (habit_id, date),
    CONSTRAINT valid_current_value CHECK (current_value >= 0)
);

-- Streak and history scans only touch completed days
CREATE INDEX IF NOT EXISTS idx_daily_progress_completed ON daily_progress(habit_id, date DESC) WHERE completed;
CREATE INDEX IF NOT EXISTS idx_daily_progress_date ON daily_progress(date);
`

const migration003Down = `
DROP TABLE IF EXISTS daily_progress;
`
