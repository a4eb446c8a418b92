package progression

import (
	"testing"
	"time"

	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func TestApply_LevelUpAtThreshold(t *testing.T) {
	p := &UserProgression{UserID: "u1", XP: 90, Level: 1}

	award := p.Apply(10, now)

	assert.Equal(t, 100, p.XP)
	assert.Equal(t, 2, p.Level)
	assert.True(t, award.LeveledUp)
	assert.Equal(t, 200, p.NextLevelAt())
}

func TestApply_SingleStepOnLargeJump(t *testing.T) {
	p := New("u1")

	award := p.Apply(450, now)

	assert.Equal(t, 450, p.XP)
	assert.Equal(t, 2, p.Level, "only one threshold check per award")
	assert.True(t, award.LeveledUp)

	p.Apply(0, now)
	assert.Equal(t, 3, p.Level, "the next award catches up one more step")
}

func TestApply_PenaltyNeverLowersLevel(t *testing.T) {
	p := &UserProgression{UserID: "u1", XP: 100, Level: 2}

	p.Apply(-10, now)
	assert.Equal(t, 90, p.XP)
	assert.Equal(t, 2, p.Level)

	fresh := New("u2")
	fresh.Apply(-10, now)
	assert.Equal(t, -10, fresh.XP)
	assert.Equal(t, StartingLevel, fresh.Level)
}

func TestRules_DeltaFor(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, 10, r.DeltaFor(progress.TransitionGained, CauseToggle))
	assert.Equal(t, -10, r.DeltaFor(progress.TransitionLost, CauseToggle))
	assert.Equal(t, 10, r.DeltaFor(progress.TransitionGained, CauseAccumulate))
	assert.Equal(t, -10, r.DeltaFor(progress.TransitionLost, CauseAccumulate))
	assert.Equal(t, 0, r.DeltaFor(progress.TransitionNone, CauseAccumulate))

	r.PenalizeDecrement = false
	assert.Equal(t, 0, r.DeltaFor(progress.TransitionLost, CauseAccumulate))
	assert.Equal(t, -10, r.DeltaFor(progress.TransitionLost, CauseToggle))
}
