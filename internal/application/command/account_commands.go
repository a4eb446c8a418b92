package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/kab1why1/habit/internal/application/port"
	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand contains the data for a new account.
type RegisterUserCommand struct {
	Username string
	Password string

	// Role defaults to user. Only the CLI creates admins.
	Role shared.Role
}

// AuthenticateCommand checks a username/password pair.
type AuthenticateCommand struct {
	Username string
	Password string
}

// AccountHandler handles registration and authentication.
type AccountHandler struct {
	store      port.Store
	clock      timeutil.Clock
	bcryptCost int
	logger     *logger.Logger
}

// NewAccountHandler creates a new AccountHandler. bcryptCost <= 0 means the bcrypt default.
func NewAccountHandler(store port.Store, clock timeutil.Clock, bcryptCost int, log *logger.Logger) *AccountHandler {
	if log == nil {
		log = logger.Default()
	}
	return &AccountHandler{store: store, clock: clock, bcryptCost: bcryptCost, logger: log.Named("accounts")}
}

// Register creates the user together with its progression row.
func (h *AccountHandler) Register(ctx context.Context, cmd RegisterUserCommand) (*account.User, error) {
	user, err := account.NewUser(uuid.NewString(), cmd.Username, cmd.Password, cmd.Role, h.bcryptCost, h.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("register_user: %w", err)
	}

	err = h.store.WithinTx(ctx, func(ctx context.Context, tx port.Repositories) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		_, err := tx.Progression().GetForUpdate(ctx, user.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("register_user: %w", err)
	}

	h.logger.Info("user registered", logger.UserID(user.ID), logger.String("role", string(user.Role)))
	return user, nil
}

// Authenticate returns the user if the password matches.
// Unknown users and wrong passwords yield the same ErrInvalidCredentials.
func (h *AccountHandler) Authenticate(ctx context.Context, cmd AuthenticateCommand) (*account.User, error) {
	if cmd.Username == "" || cmd.Password == "" {
		return nil, fmt.Errorf("authenticate: %w", shared.ErrInvalidCredentials)
	}

	user, err := h.store.Users().GetByUsername(ctx, cmd.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("authenticate: %w", shared.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if err := user.CheckPassword(cmd.Password); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return user, nil
}
