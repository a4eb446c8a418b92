package main

import (
	"context"

	"github.com/kab1why1/habit/internal/infrastructure/persistence/sqlite"
)

// sqliteStore applies its schema on open, so Up only reports pending work.
type sqliteStore struct {
	*sqlite.Store
}

func openSQLite(ctx context.Context, path string) (*sqliteStore, error) {
	s, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{Store: s}, nil
}

func (s *sqliteStore) Up(ctx context.Context) (int, error) { return s.Migrate(ctx) }
func (s *sqliteStore) Down(context.Context) error         { return errSQLiteRollback }

func (s *sqliteStore) Status(ctx context.Context) ([]migrationRow, error) {
	list, err := s.Store.Status(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]migrationRow, 0, len(list))
	for _, m := range list {
		rows = append(rows, migrationRow{Version: m.Version, Name: m.Name, Applied: m.Applied})
	}
	return rows, nil
}
