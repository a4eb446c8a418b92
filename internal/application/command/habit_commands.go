package command

import (
	"context"
	"fmt"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// HABIT COMMANDS
// Create, edit and delete habit definitions. Reading and editing another
// user's habit is allowed to admins only; to everyone else it does not exist.
// ══════════════════════════════════════════════════════════════════════════════

// CreateHabitCommand contains the data for a new habit.
type CreateHabitCommand struct {
	Actor       shared.Actor
	Title       string
	Description string
	Category    string
	Color       string

	// Kind is "boolean" or "numeric"; empty means boolean.
	Kind string

	// TargetValue is ignored for boolean habits.
	TargetValue int
}

// Validate validates the command. Field rules live in habit.NewHabit.
func (c CreateHabitCommand) Validate() error {
	if c.Actor.UserID == "" {
		return shared.ErrUnauthorized
	}
	return nil
}

// UpdateHabitCommand edits the display fields of a habit. nil fields are kept.
type UpdateHabitCommand struct {
	Actor   shared.Actor
	HabitID string
	Update  habit.Update
}

// DeleteHabitCommand removes a habit and its whole ledger.
type DeleteHabitCommand struct {
	Actor   shared.Actor
	HabitID string
}

// HabitHandler handles the habit commands.
type HabitHandler struct {
	store  port.Store
	clock  timeutil.Clock
	logger *logger.Logger
}

// NewHabitHandler creates a new HabitHandler.
func NewHabitHandler(store port.Store, clock timeutil.Clock, log *logger.Logger) *HabitHandler {
	if log == nil {
		log = logger.Default()
	}
	return &HabitHandler{store: store, clock: clock, logger: log.Named("habits")}
}

// Create executes CreateHabitCommand.
func (h *HabitHandler) Create(ctx context.Context, cmd CreateHabitCommand) (*habit.Habit, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_habit: %w", err)
	}

	kind, err := habit.ParseKind(cmd.Kind)
	if err != nil {
		return nil, fmt.Errorf("create_habit: %w", err)
	}

	hb, err := habit.NewHabit(habit.NewHabitParams{
		ID:          uuid.NewString(),
		OwnerID:     cmd.Actor.UserID,
		Title:       cmd.Title,
		Description: cmd.Description,
		Category:    cmd.Category,
		Color:       cmd.Color,
		Kind:        kind,
		TargetValue: cmd.TargetValue,
	}, h.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("create_habit: %w", err)
	}

	if err := h.store.Habits().Create(ctx, hb); err != nil {
		return nil, fmt.Errorf("create_habit: failed to save habit: %w", err)
	}

	h.logger.Info("habit created",
		logger.HabitID(hb.ID),
		logger.UserID(hb.OwnerID),
		logger.String("kind", string(hb.Kind)),
		logger.Int("target", hb.TargetValue),
	)
	return hb, nil
}

// Update executes UpdateHabitCommand.
func (h *HabitHandler) Update(ctx context.Context, cmd UpdateHabitCommand) (*habit.Habit, error) {
	var updated *habit.Habit

	err := h.store.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		hb, err := tx.Habits().GetByID(ctx, cmd.HabitID)
		if err != nil {
			return err
		}
		if err := hb.AuthorizeManage(cmd.Actor); err != nil {
			return err
		}
		if err := hb.Apply(cmd.Update); err != nil {
			return err
		}
		if err := tx.Habits().Update(ctx, hb); err != nil {
			return err
		}
		updated = hb
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update_habit: %w", err)
	}

	h.logger.Debug("habit updated", logger.HabitID(updated.ID), logger.UserID(cmd.Actor.UserID))
	return updated, nil
}

// Delete executes DeleteHabitCommand.
func (h *HabitHandler) Delete(ctx context.Context, cmd DeleteHabitCommand) error {
	err := h.store.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		hb, err := tx.Habits().GetByID(ctx, cmd.HabitID)
		if err != nil {
			return err
		}
		if err := hb.AuthorizeManage(cmd.Actor); err != nil {
			return err
		}
		return tx.Habits().Delete(ctx, hb.ID)
	})
	if err != nil {
		return fmt.Errorf("delete_habit: %w", err)
	}

	h.logger.Info("habit deleted", logger.HabitID(cmd.HabitID), logger.UserID(cmd.Actor.UserID))
	return nil
}
