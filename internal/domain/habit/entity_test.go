package habit

import (
	"testing"
	"time"

	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, 1, 6, 9, 30, 0, 0, time.UTC)

func TestNewHabit_Defaults(t *testing.T) {
	h, err := NewHabit(NewHabitParams{ID: "h1", OwnerID: "u1", Title: "  Read  ", TargetValue: 5}, now)
	require.NoError(t, err)

	assert.Equal(t, "Read", h.Title)
	assert.Equal(t, KindBoolean, h.Kind)
	assert.Equal(t, 1, h.TargetValue, "boolean habits always target 1")
	assert.Equal(t, DefaultCategory, h.Category)
	assert.Equal(t, DefaultColor, h.Color)
	assert.Equal(t, now, h.CreatedAt)
}

func TestNewHabit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params NewHabitParams
		want   error
	}{
		{"empty title", NewHabitParams{OwnerID: "u1", Title: "   "}, shared.ErrEmptyTitle},
		{"missing owner", NewHabitParams{Title: "Run"}, shared.ErrInvalidOwner},
		{"numeric zero target", NewHabitParams{OwnerID: "u1", Title: "Pushups", Kind: KindNumeric}, shared.ErrInvalidTarget},
		{"numeric negative target", NewHabitParams{OwnerID: "u1", Title: "Pushups", Kind: KindNumeric, TargetValue: -3}, shared.ErrInvalidTarget},
		{"numeric target above column range", NewHabitParams{OwnerID: "u1", Title: "Steps", Kind: KindNumeric, TargetValue: MaxTargetValue + 1}, shared.ErrInvalidTarget},
		{"unknown kind", NewHabitParams{OwnerID: "u1", Title: "Pushups", Kind: "weekly", TargetValue: 2}, shared.ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHabit(tt.params, now)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindBoolean, k)

	k, err = ParseKind(" Numeric ")
	require.NoError(t, err)
	assert.Equal(t, KindNumeric, k)

	_, err = ParseKind("daily")
	assert.ErrorIs(t, err, shared.ErrInvalidKind)
}

func TestApply_KeepsHabitOnInvalidUpdate(t *testing.T) {
	h, err := NewHabit(NewHabitParams{OwnerID: "u1", Title: "Water", Kind: KindNumeric, TargetValue: 8}, now)
	require.NoError(t, err)

	empty := ""
	assert.ErrorIs(t, h.Apply(Update{Title: &empty}), shared.ErrEmptyTitle)
	assert.Equal(t, "Water", h.Title)

	title, cat := "Drink water", ""
	require.NoError(t, h.Apply(Update{Title: &title, Category: &cat}))
	assert.Equal(t, "Drink water", h.Title)
	assert.Equal(t, DefaultCategory, h.Category)
	assert.Equal(t, 8, h.TargetValue)
}

func TestAuthorization(t *testing.T) {
	h := &Habit{ID: "h1", OwnerID: "owner"}

	assert.NoError(t, h.AuthorizeProgress(shared.Actor{UserID: "owner"}))
	assert.ErrorIs(t, h.AuthorizeProgress(shared.Actor{UserID: "other"}), shared.ErrHabitNotFound)
	assert.ErrorIs(t, h.AuthorizeProgress(shared.Actor{UserID: "admin", Role: shared.RoleAdmin}), shared.ErrHabitNotFound,
		"admins manage habits but do not record progress for others")

	assert.NoError(t, h.AuthorizeManage(shared.Actor{UserID: "admin", Role: shared.RoleAdmin}))
	assert.ErrorIs(t, h.AuthorizeManage(shared.Actor{UserID: "other", Role: shared.RoleUser}), shared.ErrHabitNotFound)
}
