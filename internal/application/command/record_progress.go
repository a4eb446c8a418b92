// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progress"
	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS COMMANDS
// Toggle and increment/decrement share one pipeline: resolve the target day,
// then in a single transaction load and authorize the habit, write the ledger
// and, only when the day is today and completion changed, award xp.
// ══════════════════════════════════════════════════════════════════════════════

// ToggleProgressCommand flips a habit's completion for a day.
type ToggleProgressCommand struct {
	Actor   shared.Actor
	HabitID string

	// Date is YYYY-MM-DD; empty means today.
	Date string
}

// Validate validates the command.
func (c ToggleProgressCommand) Validate() error {
	if c.Actor.UserID == "" {
		return shared.ErrUnauthorized
	}
	if c.HabitID == "" {
		return shared.ErrHabitNotFound
	}
	return nil
}

// AdjustProgressCommand adds Delta (negative to decrement) to a habit's value for a day.
type AdjustProgressCommand struct {
	Actor   shared.Actor
	HabitID string
	Date    string
	Delta   int
}

// Validate validates the command.
func (c AdjustProgressCommand) Validate() error {
	if c.Actor.UserID == "" {
		return shared.ErrUnauthorized
	}
	if c.HabitID == "" {
		return shared.ErrHabitNotFound
	}
	if c.Delta == 0 {
		return shared.ErrZeroDelta
	}
	if c.Delta > progress.MaxValue || c.Delta < -progress.MaxValue {
		return shared.ErrDeltaRange
	}
	return nil
}

// ProgressResult is the state after a progress command.
type ProgressResult struct {
	HabitID      string `json:"habit_id"`
	Date         string `json:"date"`
	CurrentValue int    `json:"current_value"`
	Completed    bool   `json:"completed"`
	Transition   string `json:"transition"`

	// Awarded is false for past days and for writes that didn't change completion.
	Awarded   bool `json:"awarded"`
	XPDelta   int  `json:"xp_delta"`
	XP        int  `json:"xp,omitempty"`
	Level     int  `json:"level,omitempty"`
	LeveledUp bool `json:"leveled_up"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordProgressHandler handles ToggleProgressCommand and AdjustProgressCommand.
type RecordProgressHandler struct {
	store  port.Store
	cache  leaderboard.Cache
	clock  timeutil.Clock
	rules  progression.Rules
	logger *logger.Logger
}

// NewRecordProgressHandler creates the handler. cache may be nil.
func NewRecordProgressHandler(
	store port.Store,
	cache leaderboard.Cache,
	clock timeutil.Clock,
	rules progression.Rules,
	log *logger.Logger,
) *RecordProgressHandler {
	if log == nil {
		log = logger.Default()
	}
	if rules.XPPerTransition == 0 {
		rules = progression.DefaultRules()
	}
	return &RecordProgressHandler{
		store:  store,
		cache:  cache,
		clock:  clock,
		rules:  rules,
		logger: log.Named("progress"),
	}
}

// Toggle executes the toggle command.
func (h *RecordProgressHandler) Toggle(ctx context.Context, cmd ToggleProgressCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("toggle_progress: %w", err)
	}

	return h.record(ctx, "toggle_progress", cmd.Actor, cmd.HabitID, cmd.Date, progression.CauseToggle,
		func(ctx context.Context, ledger progress.Ledger, hb *habit.Habit, day time.Time) (progress.Outcome, error) {
			return ledger.UpsertToggle(ctx, hb.ID, hb.TargetValue, day)
		})
}

// Adjust executes the increment/decrement command.
func (h *RecordProgressHandler) Adjust(ctx context.Context, cmd AdjustProgressCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("adjust_progress: %w", err)
	}

	return h.record(ctx, "adjust_progress", cmd.Actor, cmd.HabitID, cmd.Date, progression.CauseAccumulate,
		func(ctx context.Context, ledger progress.Ledger, hb *habit.Habit, day time.Time) (progress.Outcome, error) {
			return ledger.UpsertAccumulate(ctx, hb.ID, hb.TargetValue, day, cmd.Delta)
		})
}

type ledgerWrite func(ctx context.Context, ledger progress.Ledger, hb *habit.Habit, day time.Time) (progress.Outcome, error)

func (h *RecordProgressHandler) record(
	ctx context.Context,
	op string,
	actor shared.Actor,
	habitID, rawDate string,
	cause progression.Cause,
	write ledgerWrite,
) (*ProgressResult, error) {
	now := h.clock.Now()
	day, isToday, err := progress.ResolveDate(rawDate, timeutil.Day(now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &ProgressResult{HabitID: habitID, Date: timeutil.FormatDate(day)}
	var cacheEntry *leaderboard.Entry

	err = h.store.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		hb, err := tx.Habits().GetByID(ctx, habitID)
		if err != nil {
			return err
		}
		if err := hb.AuthorizeProgress(actor); err != nil {
			return err
		}

		outcome, err := write(ctx, tx.Ledger(), hb, day)
		if err != nil {
			return err
		}
		transition := outcome.Transition()

		result.CurrentValue = outcome.Entry.CurrentValue
		result.Completed = outcome.Entry.Completed
		result.Transition = transition.String()

		if !isToday {
			return nil
		}
		delta := h.rules.DeltaFor(transition, cause)
		if delta == 0 {
			return nil
		}

		p, err := tx.Progression().GetForUpdate(ctx, hb.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to lock progression: %w", err)
		}
		award := p.Apply(delta, now)
		if err := tx.Progression().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to save progression: %w", err)
		}

		result.Awarded = true
		result.XPDelta = award.Delta
		result.XP = award.XP
		result.Level = award.Level
		result.LeveledUp = award.LeveledUp

		if h.cache != nil {
			if u, err := tx.Users().GetByID(ctx, hb.OwnerID); err == nil {
				cacheEntry = &leaderboard.Entry{UserID: u.ID, Username: u.Username, XP: p.XP, Level: p.Level}
			}
		}
		return nil
	})
	if err != nil {
		if !isDomainFailure(err) {
			h.logger.Error("progress write failed",
				logger.Operation(op),
				logger.HabitID(habitID),
				logger.UserID(actor.UserID),
				logger.Err(err),
			)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if result.Awarded {
		h.logger.Info("xp awarded",
			logger.Operation(op),
			logger.UserID(actor.UserID),
			logger.HabitID(habitID),
			logger.XPAmount(result.XPDelta),
			logger.Int("level", result.Level),
			logger.Bool("leveled_up", result.LeveledUp),
		)
	}

	if cacheEntry != nil {
		if err := h.cache.Upsert(ctx, *cacheEntry); err != nil {
			h.logger.Warn("leaderboard cache update failed", logger.UserID(cacheEntry.UserID), logger.Err(err))
		}
	}

	return result, nil
}

// isDomainFailure reports errors that are the caller's fault, not the store's.
func isDomainFailure(err error) bool {
	return shared.IsNotFound(err) || shared.IsValidation(err) || errors.Is(err, shared.ErrForbidden)
}
