package postgres

import (
	"context"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/progression"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements port.Store on top of a pgx pool.
type Store struct {
	repos
	conn *Connection
}

var _ port.Store = (*Store)(nil)

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{repos: repos{q: conn}, conn: conn}
}

// Connection returns the underlying connection (health checks, migrations).
func (s *Store) Connection() *Connection {
	return s.conn
}

// WithinTx runs fn in a read-committed transaction. Ledger and progression
// writes lock their rows, so concurrent mutations of one habit serialize.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Repositories) error) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, repos{q: tx})
	})
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

// repos binds every repository to one Querier.
type repos struct {
	q Querier
}

func (r repos) Habits() habit.Repository { return &HabitRepository{q: r.q} }
func (r repos) Ledger() progress.Ledger { return &LedgerRepository{q: r.q} }
func (r repos) Progression() progression.Repository { return &ProgressionRepository{q: r.q} }
func (r repos) Users() account.Repository { return &UserRepository{q: r.q} }
func (r repos) Leaderboard() leaderboard.Repository { return &LeaderboardRepository{q: r.q} }

// validID reports whether id can be bound to a UUID column. Malformed IDs
// can't match any row, so callers answer "not found" without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
