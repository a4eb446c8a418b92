package leaderboard

import "context"

// Repository - источник истины для таблицы лидеров (реляционное хранилище).
type Repository interface {
	// Top возвращает первые limit пользователей в порядке таблицы.
	Top(ctx context.Context, limit int) ([]Entry, error)
}

// Cache - быстрый слой чтения поверх Repository.
type Cache interface {
	// Top возвращает (nil, false, nil), если кэш пуст.
	Top(ctx context.Context, limit int) ([]Entry, bool, error)

	// Upsert обновляет одну запись после начисления опыта.
	Upsert(ctx context.Context, e Entry) error

	// Replace полностью перестраивает кэш.
	Replace(ctx context.Context, entries []Entry) error
}
