// Package leaderboard содержит доменную модель таблицы лидеров:
// пользователи упорядочены по (уровень desc, опыт desc).
package leaderboard

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank - позиция в таблице, начиная с 1.
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

const (
	// DefaultSize - размер таблицы по умолчанию.
	DefaultSize = 10

	// MaxSize - максимальный запрашиваемый размер.
	MaxSize = 100

	// levelWeight разводит уровни в одном числе: опыт одного уровня
	// никогда не перекрывает соседний.
	levelWeight = 1e9
)

// ClampLimit приводит размер к [1, MaxSize].
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultSize
	case n > MaxSize:
		return MaxSize
	default:
		return n
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - строка таблицы лидеров.
type Entry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	XP       int    `json:"xp"`
	Level    int    `json:"level"`
	Rank     Rank   `json:"rank"`
}

// Score кодирует (level, xp) одним числом для sorted set.
func Score(level, xp int) float64 {
	return float64(level)*levelWeight + float64(xp)
}

// Score возвращает ключ сортировки записи.
func (e Entry) Score() float64 {
	return Score(e.Level, e.XP)
}

// Less - порядок таблицы: уровень, затем опыт, затем имя для стабильности.
func Less(a, b Entry) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	return a.Username < b.Username
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking сортирует записи, проставляет ранги и обрезает до limit.
func Ranking(entries []Entry, limit int) []Entry {
	out := append([]Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = Rank(i + 1)
	}
	return out
}
