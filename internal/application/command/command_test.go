package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/sqlite"
	"github.com/kab1why1/habit/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// travelClock is a settable clock for moving between days inside one test.
type travelClock struct{ now time.Time }

func (c *travelClock) Now() time.Time { return c.now }

func (c *travelClock) advance(days int) { c.now = c.now.AddDate(0, 0, days) }

type recordingCache struct{ upserts []leaderboard.Entry }

func (c *recordingCache) Top(context.Context, int) ([]leaderboard.Entry, bool, error) {
	return nil, false, nil
}
func (c *recordingCache) Upsert(_ context.Context, e leaderboard.Entry) error {
	c.upserts = append(c.upserts, e)
	return nil
}
func (c *recordingCache) Replace(context.Context, []leaderboard.Entry) error { return nil }

type fixture struct {
	ctx      context.Context
	store    *sqlite.Store
	clock    *travelClock
	cache    *recordingCache
	accounts *AccountHandler
	habits   *HabitHandler
	progress *RecordProgressHandler
}

func newFixture(t *testing.T, rules progression.Rules) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &travelClock{now: time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)}
	cache := &recordingCache{}
	log := logger.Nop()

	return &fixture{
		ctx:      ctx,
		store:    store,
		clock:    clock,
		cache:    cache,
		accounts: NewAccountHandler(store, clock, bcrypt.MinCost, log),
		habits:   NewHabitHandler(store, clock, log),
		progress: NewRecordProgressHandler(store, cache, clock, rules, log),
	}
}

func (f *fixture) register(t *testing.T, name string) *account.User {
	t.Helper()
	u, err := f.accounts.Register(f.ctx, RegisterUserCommand{Username: name, Password: "secret1"})
	require.NoError(t, err)
	return u
}

func (f *fixture) createHabit(t *testing.T, owner *account.User, kind string, target int) *habit.Habit {
	t.Helper()
	h, err := f.habits.Create(f.ctx, CreateHabitCommand{
		Actor:       owner.Actor(),
		Title:       "Drink water",
		Kind:        kind,
		TargetValue: target,
	})
	require.NoError(t, err)
	return h
}

func (f *fixture) xp(t *testing.T, userID string) (int, int) {
	t.Helper()
	p, err := f.store.Progression().Get(f.ctx, userID)
	require.NoError(t, err)
	return p.XP, p.Level
}

// ──────────────────────────────────────────────────────────────────────────────
// Toggle
// ──────────────────────────────────────────────────────────────────────────────

func TestToggle_AwardsAndRevokesToday(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "alice")
	h := f.createHabit(t, u, "boolean", 0)

	res, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.CurrentValue)
	assert.Equal(t, "2024-05-20", res.Date)
	assert.True(t, res.Awarded)
	assert.Equal(t, 10, res.XPDelta)

	xp, level := f.xp(t, u.ID)
	assert.Equal(t, 10, xp)
	assert.Equal(t, 1, level)

	res, err = f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, 0, res.CurrentValue)
	assert.Equal(t, -10, res.XPDelta)

	xp, _ = f.xp(t, u.ID)
	assert.Equal(t, 0, xp)

	require.Len(t, f.cache.upserts, 2)
	assert.Equal(t, "alice", f.cache.upserts[1].Username)
}

func TestToggle_PastDayDoesNotAward(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "bob")
	h := f.createHabit(t, u, "", 0)

	res, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID, Date: "2024-05-18"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.False(t, res.Awarded)

	xp, _ := f.xp(t, u.ID)
	assert.Zero(t, xp)
	assert.Empty(t, f.cache.upserts)
}

func TestToggle_TimeTravel(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "carol")
	h := f.createHabit(t, u, "boolean", 0)

	_, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)

	// The next day yesterday's completion is history: undoing it costs nothing.
	f.clock.advance(1)
	res, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID, Date: "2024-05-20"})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.False(t, res.Awarded)

	xp, _ := f.xp(t, u.ID)
	assert.Equal(t, 10, xp)
}

func TestToggle_RejectsBadDates(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "dave")
	h := f.createHabit(t, u, "boolean", 0)

	_, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID, Date: "2024-05-21"})
	assert.ErrorIs(t, err, shared.ErrFutureDate)

	_, err = f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID, Date: "20/05/2024"})
	assert.ErrorIs(t, err, shared.ErrInvalidDate)
	assert.True(t, shared.IsValidation(err))
}

func TestToggle_ForeignHabitLooksMissing(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	owner := f.register(t, "erin")
	other := f.register(t, "frank")
	h := f.createHabit(t, owner, "boolean", 0)

	_, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: other.Actor(), HabitID: h.ID})
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)

	// Admins manage habits but never record progress for others.
	admin := shared.Actor{UserID: other.ID, Role: shared.RoleAdmin}
	_, err = f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: admin, HabitID: h.ID})
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)

	entry, err := f.store.Ledger().Get(f.ctx, h.ID, f.clock.now)
	require.NoError(t, err)
	assert.False(t, entry.Completed)
}

// ──────────────────────────────────────────────────────────────────────────────
// Increment / decrement
// ──────────────────────────────────────────────────────────────────────────────

func TestAdjust_CrossesTargetOnce(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "gina")
	h := f.createHabit(t, u, "numeric", 3)

	steps := []struct {
		delta     int
		value     int
		completed bool
		xpDelta   int
	}{
		{+2, 2, false, 0},
		{+1, 3, true, 10},
		{+1, 4, true, 0},
		{-2, 2, false, -10},
		{-5, 0, false, 0},
	}
	for _, s := range steps {
		res, err := f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: h.ID, Delta: s.delta})
		require.NoError(t, err)
		assert.Equal(t, s.value, res.CurrentValue, "delta %d", s.delta)
		assert.Equal(t, s.completed, res.Completed, "delta %d", s.delta)
		assert.Equal(t, s.xpDelta, res.XPDelta, "delta %d", s.delta)
	}

	xp, _ := f.xp(t, u.ID)
	assert.Zero(t, xp)
}

func TestAdjust_NoPenaltyWhenDisabled(t *testing.T) {
	f := newFixture(t, progression.Rules{XPPerTransition: 10, PenalizeDecrement: false})
	u := f.register(t, "hank")
	h := f.createHabit(t, u, "numeric", 1)

	_, err := f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: h.ID, Delta: 1})
	require.NoError(t, err)
	res, err := f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: h.ID, Delta: -1})
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.False(t, res.Awarded)

	xp, _ := f.xp(t, u.ID)
	assert.Equal(t, 10, xp)
}

func TestAdjust_ZeroDelta(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "ivy")

	_, err := f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: "x", Delta: 0})
	assert.ErrorIs(t, err, shared.ErrZeroDelta)
}

func TestAdjust_DeltaRange(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "iris")
	h := f.createHabit(t, u, "numeric", 10)

	for _, delta := range []int{progress.MaxValue + 1, -progress.MaxValue - 1} {
		_, err := f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: h.ID, Delta: delta})
		assert.ErrorIs(t, err, shared.ErrDeltaRange)
		assert.True(t, shared.IsValidation(err))
	}

	res, err := f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: h.ID, Delta: progress.MaxValue})
	require.NoError(t, err)
	assert.Equal(t, progress.MaxValue, res.CurrentValue)
	assert.Equal(t, 10, res.XPDelta)

	// The sum saturates; it never wraps to zero and fires a penalty.
	res, err = f.progress.Adjust(f.ctx, AdjustProgressCommand{Actor: u.Actor(), HabitID: h.ID, Delta: 1})
	require.NoError(t, err)
	assert.Equal(t, progress.MaxValue, res.CurrentValue)
	assert.True(t, res.Completed)
	assert.Equal(t, "none", res.Transition)
	assert.Zero(t, res.XPDelta)

	xp, _ := f.xp(t, u.ID)
	assert.Equal(t, 10, xp)
}

// ──────────────────────────────────────────────────────────────────────────────
// Atomicity
// ──────────────────────────────────────────────────────────────────────────────

var errSaveFailed = errors.New("progression save failed")

// brokenProgressionStore fails every progression save made inside a transaction.
type brokenProgressionStore struct{ *sqlite.Store }

func (s brokenProgressionStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		return fn(ctx, brokenProgressionRepos{tx})
	})
}

type brokenProgressionRepos struct{ port.Repositories }

func (r brokenProgressionRepos) Progression() progression.Repository {
	return brokenSave{r.Repositories.Progression()}
}

type brokenSave struct{ progression.Repository }

func (brokenSave) Save(context.Context, *progression.UserProgression) error { return errSaveFailed }

func TestProgress_FailedAwardRollsBackLedger(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "kate")
	h := f.createHabit(t, u, "boolean", 0)

	broken := NewRecordProgressHandler(brokenProgressionStore{f.store}, f.cache, f.clock, progression.DefaultRules(), logger.Nop())
	_, err := broken.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.ErrorIs(t, err, errSaveFailed)

	entry, err := f.store.Ledger().Get(f.ctx, h.ID, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, entry.CurrentValue)
	assert.False(t, entry.Completed)

	xp, level := f.xp(t, u.ID)
	assert.Equal(t, 0, xp)
	assert.Equal(t, 1, level)
	assert.Empty(t, f.cache.upserts)

	// A past day never reaches the award, so the same store commits it.
	_, err = broken.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID, Date: "2024-05-19"})
	require.NoError(t, err)

	res, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, "gained", res.Transition)
	assert.Equal(t, 10, res.XPDelta)
}

func TestProgress_LevelsUpOneStepAtATime(t *testing.T) {
	f := newFixture(t, progression.Rules{XPPerTransition: 250, PenalizeDecrement: true})
	u := f.register(t, "jack")
	h := f.createHabit(t, u, "boolean", 0)

	res, err := f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, 250, res.XP)

	// Losing xp never lowers the level.
	res, err = f.progress.Toggle(f.ctx, ToggleProgressCommand{Actor: u.Actor(), HabitID: h.ID})
	require.NoError(t, err)
	assert.False(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, 0, res.XP)
}

// ──────────────────────────────────────────────────────────────────────────────
// Habits and accounts
// ──────────────────────────────────────────────────────────────────────────────

func TestHabitHandler_Lifecycle(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	owner := f.register(t, "kate")
	other := f.register(t, "liam")
	h := f.createHabit(t, owner, "numeric", 8)

	assert.Equal(t, habit.DefaultCategory, h.Category)
	assert.Equal(t, habit.DefaultColor, h.Color)

	title := "Drink more water"
	_, err := f.habits.Update(f.ctx, UpdateHabitCommand{Actor: other.Actor(), HabitID: h.ID, Update: habit.Update{Title: &title}})
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)

	updated, err := f.habits.Update(f.ctx, UpdateHabitCommand{Actor: owner.Actor(), HabitID: h.ID, Update: habit.Update{Title: &title}})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, 8, updated.TargetValue)

	blank := "  "
	_, err = f.habits.Update(f.ctx, UpdateHabitCommand{Actor: owner.Actor(), HabitID: h.ID, Update: habit.Update{Title: &blank}})
	assert.ErrorIs(t, err, shared.ErrEmptyTitle)

	admin := shared.Actor{UserID: other.ID, Role: shared.RoleAdmin}
	require.NoError(t, f.habits.Delete(f.ctx, DeleteHabitCommand{Actor: admin, HabitID: h.ID}))

	_, err = f.store.Habits().GetByID(f.ctx, h.ID)
	assert.ErrorIs(t, err, shared.ErrHabitNotFound)
}

func TestHabitHandler_CreateValidation(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "mia")

	_, err := f.habits.Create(f.ctx, CreateHabitCommand{Actor: u.Actor(), Title: "x", Kind: "weekly"})
	assert.ErrorIs(t, err, shared.ErrInvalidKind)

	_, err = f.habits.Create(f.ctx, CreateHabitCommand{Actor: u.Actor(), Title: "x", Kind: "numeric", TargetValue: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidTarget)

	h, err := f.habits.Create(f.ctx, CreateHabitCommand{Actor: u.Actor(), Title: "x", TargetValue: 40})
	require.NoError(t, err)
	assert.Equal(t, 1, h.TargetValue)

	_, err = f.habits.Create(f.ctx, CreateHabitCommand{Title: "x"})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestAccountHandler(t *testing.T) {
	f := newFixture(t, progression.DefaultRules())
	u := f.register(t, "nora")

	xp, level := f.xp(t, u.ID)
	assert.Zero(t, xp)
	assert.Equal(t, progression.StartingLevel, level)

	_, err := f.accounts.Register(f.ctx, RegisterUserCommand{Username: "nora", Password: "another"})
	assert.ErrorIs(t, err, shared.ErrUsernameTaken)

	got, err := f.accounts.Authenticate(f.ctx, AuthenticateCommand{Username: "nora", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.accounts.Authenticate(f.ctx, AuthenticateCommand{Username: "nora", Password: "wrong!"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = f.accounts.Authenticate(f.ctx, AuthenticateCommand{Username: "nobody", Password: "secret1"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
