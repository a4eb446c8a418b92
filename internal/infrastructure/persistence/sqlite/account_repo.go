package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/domain/shared"

	"github.com/jmoiron/sqlx"
)

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements account.Repository for SQLite.
type UserRepository struct {
	q sqlx.ExtContext
}

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	CreatedAt    string `db:"created_at"`
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, u *account.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, string(u.Role), formatTimestamp(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*account.User, error) {
	return r.get(ctx, `id = ?`, id)
}

// GetByUsername returns a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*account.User, error) {
	return r.get(ctx, `username = ?`, username)
}

func (r *UserRepository) get(ctx context.Context, where string, arg any) (*account.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	created, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &account.User{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Role:         shared.Role(row.Role),
		CreatedAt:    created,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionRepository implements progression.Repository for SQLite.
type ProgressionRepository struct {
	q sqlx.ExtContext
}

type progressionRow struct {
	UserID    string `db:"user_id"`
	XP        int    `db:"xp"`
	Level     int    `db:"level"`
	UpdatedAt string `db:"updated_at"`
}

func (r progressionRow) toDomain() (*progression.UserProgression, error) {
	updated, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &progression.UserProgression{UserID: r.UserID, XP: r.XP, Level: r.Level, UpdatedAt: updated}, nil
}

// Get returns the user's progression.
func (r *ProgressionRepository) Get(ctx context.Context, userID string) (*progression.UserProgression, error) {
	var row progressionRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT user_id, xp, level, updated_at FROM user_progression WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrProgressionNotFound
		}
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}
	return row.toDomain()
}

// GetForUpdate creates the row when missing. The transaction owning the
// store's connection is the lock.
func (r *ProgressionRepository) GetForUpdate(ctx context.Context, userID string) (*progression.UserProgression, error) {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_progression (user_id, xp, level, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, progression.StartingLevel, formatTimestamp(time.Now()),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to ensure progression row: %w", err)
	}
	return r.Get(ctx, userID)
}

// Save writes xp and level.
func (r *ProgressionRepository) Save(ctx context.Context, p *progression.UserProgression) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE user_progression SET xp = ?, level = ?, updated_at = ? WHERE user_id = ?`,
		p.XP, p.Level, formatTimestamp(p.UpdatedAt), p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to save progression: %w", err)
	}
	return requireAffected(res, shared.ErrProgressionNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository for SQLite.
type LeaderboardRepository struct {
	q sqlx.ExtContext
}

// Top returns the first limit users ranked by level, then xp.
func (r *LeaderboardRepository) Top(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	var rows []struct {
		UserID   string `db:"user_id"`
		Username string `db:"username"`
		XP       int    `db:"xp"`
		Level    int    `db:"level"`
	}
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT u.id AS user_id, u.username AS username, p.xp AS xp, p.level AS level
		FROM user_progression p
		JOIN users u ON u.id = p.user_id
		ORDER BY p.level DESC, p.xp DESC, u.username ASC
		LIMIT ?`,
		leaderboard.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	entries := make([]leaderboard.Entry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, leaderboard.Entry{
			UserID:   row.UserID,
			Username: row.Username,
			XP:       row.XP,
			Level:    row.Level,
			Rank:     leaderboard.Rank(i + 1),
		})
	}
	return entries, nil
}
