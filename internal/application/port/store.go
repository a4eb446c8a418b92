// Package port declares what the application layer needs from persistence.
package port

import (
	"context"

	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/progression"
)

// Repositories groups the repositories bound to one connection or transaction.
type Repositories interface {
	Habits() habit.Repository
	Ledger() progress.Ledger
	Progression() progression.Repository
	Users() account.Repository
	Leaderboard() leaderboard.Repository
}

// Store is a relational store. Repositories returned directly run each
// statement on its own; those passed to WithinTx share one transaction.
type Store interface {
	Repositories

	// WithinTx commits if fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error

	Ping(ctx context.Context) error
	Close() error
}
