package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/sqlite"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var now = time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	d, err := timeutil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *sqlite.Store, name string) *account.User {
	t.Helper()
	ctx := context.Background()
	u, err := account.NewUser(uuid.NewString(), name, "secret1", shared.RoleUser, bcrypt.MinCost, now)
	require.NoError(t, err)
	require.NoError(t, s.Users().Create(ctx, u))
	_, err = s.Progression().GetForUpdate(ctx, u.ID)
	require.NoError(t, err)
	return u
}

func seedHabit(t *testing.T, s *sqlite.Store, owner string, title string, kind habit.Kind, target int) *habit.Habit {
	t.Helper()
	h, err := habit.NewHabit(habit.NewHabitParams{
		ID:          uuid.NewString(),
		OwnerID:     owner,
		Title:       title,
		Kind:        kind,
		TargetValue: target,
	}, now)
	require.NoError(t, err)
	require.NoError(t, s.Habits().Create(context.Background(), h))
	return h
}

func complete(t *testing.T, s *sqlite.Store, h *habit.Habit, days ...string) {
	t.Helper()
	for _, d := range days {
		_, err := s.Ledger().UpsertToggle(context.Background(), h.ID, h.TargetValue, day(d))
		require.NoError(t, err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Habit views
// ──────────────────────────────────────────────────────────────────────────────

func TestHabitsHandler_StreakAnchoredToToday(t *testing.T) {
	s := openStore(t)
	u := seedUser(t, s, "alice")
	h := seedHabit(t, s, u.ID, "Run", habit.KindBoolean, 1)

	// 2024-01-06 is missing, so the run before it does not count.
	complete(t, s, h, "2024-01-05", "2024-01-07", "2024-01-08", "2024-01-09")

	handler := NewHabitsHandler(s, timeutil.FixedClock{T: now}, 0, logger.Nop())

	view, err := handler.Get(context.Background(), GetHabitQuery{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, view.Streak)
	assert.False(t, view.Completed)
	assert.Equal(t, "2024-01-10", view.Date)

	complete(t, s, h, "2024-01-10")

	// Viewing a past day keeps the streak anchored to today.
	view, err = handler.Get(context.Background(), GetHabitQuery{Actor: u.Actor(), HabitID: h.ID, Date: "2024-01-06"})
	require.NoError(t, err)
	assert.Equal(t, 4, view.Streak)
	assert.False(t, view.Completed)
	assert.Equal(t, "2024-01-06", view.Date)
}

func TestHabitsHandler_StreakRespectsLookback(t *testing.T) {
	s := openStore(t)
	u := seedUser(t, s, "bob")
	h := seedHabit(t, s, u.ID, "Read", habit.KindBoolean, 1)
	complete(t, s, h, "2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09", "2024-01-10")

	handler := NewHabitsHandler(s, timeutil.FixedClock{T: now}, 2, logger.Nop())
	view, err := handler.Get(context.Background(), GetHabitQuery{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, view.Streak)
}

func TestHabitsHandler_List(t *testing.T) {
	s := openStore(t)
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	water := seedHabit(t, s, alice.ID, "Water", habit.KindNumeric, 8)
	seedHabit(t, s, bob.ID, "Walk", habit.KindBoolean, 1)

	_, err := s.Ledger().UpsertAccumulate(context.Background(), water.ID, 8, day("2024-01-10"), 3)
	require.NoError(t, err)

	handler := NewHabitsHandler(s, timeutil.FixedClock{T: now}, 0, logger.Nop())

	views, err := handler.List(context.Background(), ListHabitsQuery{Actor: alice.Actor()})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 3, views[0].CurrentValue)
	assert.False(t, views[0].Completed)

	_, err = handler.List(context.Background(), ListHabitsQuery{Actor: alice.Actor(), All: true})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	admin := shared.Actor{UserID: alice.ID, Role: shared.RoleAdmin}
	views, err = handler.List(context.Background(), ListHabitsQuery{Actor: admin, All: true})
	require.NoError(t, err)
	assert.Len(t, views, 2)

	views, err = handler.List(context.Background(), ListHabitsQuery{Actor: bob.Actor(), Date: "2024-01-09"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "2024-01-09", views[0].Date)

	_, err = handler.List(context.Background(), ListHabitsQuery{Actor: bob.Actor(), Date: "2024-01-11"})
	assert.ErrorIs(t, err, shared.ErrFutureDate)
}

func TestHabitsHandler_ForeignHabit(t *testing.T) {
	s := openStore(t)
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	h := seedHabit(t, s, alice.ID, "Water", habit.KindBoolean, 1)

	handler := NewHabitsHandler(s, timeutil.FixedClock{T: now}, 0, logger.Nop())
	_, err := handler.Get(context.Background(), GetHabitQuery{Actor: bob.Actor(), HabitID: h.ID})
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// History and stats
// ──────────────────────────────────────────────────────────────────────────────

func TestHistoryHandler_History(t *testing.T) {
	s := openStore(t)
	u := seedUser(t, s, "carol")
	other := seedUser(t, s, "dave")
	a := seedHabit(t, s, u.ID, "A", habit.KindBoolean, 1)
	b := seedHabit(t, s, u.ID, "B", habit.KindBoolean, 1)
	foreign := seedHabit(t, s, other.ID, "C", habit.KindBoolean, 1)

	complete(t, s, a, "2024-01-05", "2024-01-06")
	complete(t, s, b, "2024-01-05")
	complete(t, s, foreign, "2024-01-05")

	handler := NewHistoryHandler(s, timeutil.FixedClock{T: now}, 0, logger.Nop())

	got, err := handler.History(context.Background(), GetHistoryQuery{Actor: u.Actor()})
	require.NoError(t, err)
	if diff := cmp.Diff(progress.History{"2024-01-05": 2, "2024-01-06": 1}, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, got.Count(day("2024-01-07")))

	got, err = handler.History(context.Background(), GetHistoryQuery{Actor: u.Actor(), From: "2024-01-06"})
	require.NoError(t, err)
	if diff := cmp.Diff(progress.History{"2024-01-06": 1}, got); diff != "" {
		t.Errorf("bounded history mismatch (-want +got):\n%s", diff)
	}

	_, err = handler.History(context.Background(), GetHistoryQuery{Actor: u.Actor(), From: "2024-01-08", To: "2024-01-07"})
	assert.True(t, shared.IsValidation(err))

	_, err = handler.History(context.Background(), GetHistoryQuery{Actor: u.Actor(), To: "2099-01-01"})
	assert.ErrorIs(t, err, shared.ErrFutureDate)
}

func TestHistoryHandler_Stats(t *testing.T) {
	s := openStore(t)
	u := seedUser(t, s, "erin")
	h := seedHabit(t, s, u.ID, "Pages", habit.KindNumeric, 20)
	ctx := context.Background()

	for d, v := range map[string]int{"2024-01-01": 5, "2024-01-08": 25, "2024-01-10": 12, "2023-12-01": 9} {
		_, err := s.Ledger().UpsertAccumulate(ctx, h.ID, h.TargetValue, day(d), v)
		require.NoError(t, err)
	}

	handler := NewHistoryHandler(s, timeutil.FixedClock{T: now}, 30, logger.Nop())

	res, err := handler.Stats(ctx, GetStatsQuery{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	want := []progress.StatPoint{
		{Date: "2024-01-01", CurrentValue: 5},
		{Date: "2024-01-08", CurrentValue: 25},
		{Date: "2024-01-10", CurrentValue: 12},
	}
	if diff := cmp.Diff(want, res.Series); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "2023-12-12", res.From)
	assert.Equal(t, 30, res.WindowDays)

	res, err = handler.Stats(ctx, GetStatsQuery{Actor: u.Actor(), HabitID: h.ID, WindowDays: 3})
	require.NoError(t, err)
	assert.Len(t, res.Series, 2)

	res, err = handler.Stats(ctx, GetStatsQuery{Actor: u.Actor(), HabitID: h.ID, WindowDays: 5000})
	require.NoError(t, err)
	assert.Equal(t, progress.MaxStatsWindowDays, res.WindowDays)
	assert.Len(t, res.Series, 4)
}

// ──────────────────────────────────────────────────────────────────────────────
// Leaderboard and profile
// ──────────────────────────────────────────────────────────────────────────────

type stubCache struct {
	entries []leaderboard.Entry
	ok      bool
	err     error
}

func (c stubCache) Top(context.Context, int) ([]leaderboard.Entry, bool, error) {
	return c.entries, c.ok, c.err
}
func (stubCache) Upsert(context.Context, leaderboard.Entry) error     { return nil }
func (stubCache) Replace(context.Context, []leaderboard.Entry) error { return nil }

func TestLeaderboardHandler(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for name, xp := range map[string]struct{ xp, level int }{"low": {50, 1}, "high": {20, 3}, "mid": {90, 1}} {
		u := seedUser(t, s, name)
		p, err := s.Progression().GetForUpdate(ctx, u.ID)
		require.NoError(t, err)
		p.XP, p.Level = xp.xp, xp.level
		require.NoError(t, s.Progression().Save(ctx, p))
	}

	res, err := NewLeaderboardHandler(s, nil, 10, logger.Nop()).Top(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "store", res.Source)
	names := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		names = append(names, e.Username)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, names)
	assert.EqualValues(t, 1, res.Entries[0].Rank)

	res, err = NewLeaderboardHandler(s, stubCache{}, 10, logger.Nop()).Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "store", res.Source)
	assert.Len(t, res.Entries, 2)

	res, err = NewLeaderboardHandler(s, stubCache{err: errors.New("redis down")}, 10, logger.Nop()).Top(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "store", res.Source)

	cached := []leaderboard.Entry{{UserID: "x", Username: "cached", Level: 9, Rank: 1}}
	res, err = NewLeaderboardHandler(s, stubCache{entries: cached, ok: true}, 10, logger.Nop()).Top(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "cache", res.Source)
	assert.Equal(t, cached, res.Entries)
}

func TestProfileHandler(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "frank")
	other := seedUser(t, s, "gina")

	p, err := s.Progression().GetForUpdate(ctx, u.ID)
	require.NoError(t, err)
	p.XP, p.Level = 130, 2
	require.NoError(t, s.Progression().Save(ctx, p))

	handler := NewProfileHandler(s)

	view, err := handler.Progression(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, ProgressionView{UserID: u.ID, XP: 130, Level: 2, NextLevelAt: 200}, *view)

	profile, err := handler.User(ctx, u.Actor(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "frank", profile.Username)
	assert.Equal(t, 130, profile.XP)

	_, err = handler.User(ctx, other.Actor(), u.ID)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	admin := shared.Actor{UserID: other.ID, Role: shared.RoleAdmin}
	_, err = handler.User(ctx, admin, u.ID)
	require.NoError(t, err)
}
