package postgres

import (
	"context"
	"fmt"

	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/domain/shared"
)

// ProgressionRepository implements progression.Repository for PostgreSQL.
type ProgressionRepository struct {
	q Querier
}

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(q Querier) *ProgressionRepository {
	return &ProgressionRepository{q: q}
}

// Get returns the user's progression without locking.
func (r *ProgressionRepository) Get(ctx context.Context, userID string) (*progression.UserProgression, error) {
	if !validID(userID) {
		return nil, shared.ErrProgressionNotFound
	}

	query := `SELECT user_id, xp, level, updated_at FROM user_progression WHERE user_id = $1`

	var p progression.UserProgression
	err := r.q.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.XP, &p.Level, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressionNotFound
		}
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}
	return &p, nil
}

// GetForUpdate creates the row when missing and locks it until the
// surrounding transaction ends.
func (r *ProgressionRepository) GetForUpdate(ctx context.Context, userID string) (*progression.UserProgression, error) {
	if !validID(userID) {
		return nil, shared.ErrUserNotFound
	}

	ensure := `
		INSERT INTO user_progression (user_id, xp, level)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, ensure, userID, progression.StartingLevel); err != nil {
		if IsForeignKeyViolation(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to ensure progression row: %w", err)
	}

	query := `SELECT user_id, xp, level, updated_at FROM user_progression WHERE user_id = $1 FOR UPDATE`

	var p progression.UserProgression
	if err := r.q.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.XP, &p.Level, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to lock progression: %w", err)
	}
	return &p, nil
}

// Save writes xp and level.
func (r *ProgressionRepository) Save(ctx context.Context, p *progression.UserProgression) error {
	query := `
		UPDATE user_progression SET
			xp = $1,
			level = $2,
			updated_at = $3
		WHERE user_id = $4
	`

	tag, err := r.q.Exec(ctx, query, p.XP, p.Level, p.UpdatedAt, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to save progression: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProgressionNotFound
	}
	return nil
}
