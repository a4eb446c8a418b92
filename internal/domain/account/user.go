// Package account - минимальный коллаборатор идентичности: пользователи,
// их роли и проверка пароля. Сессии и токены живут на уровне interface/http.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kab1why1/habit/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength - минимальная длина пароля.
const MinPasswordLength = 6

// User - учётная запись.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         shared.Role
	CreatedAt    time.Time
}

// NewUser валидирует данные и хэширует пароль bcrypt.
// cost <= 0 означает bcrypt.DefaultCost.
func NewUser(id, username, password string, role shared.Role, cost int, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, shared.ErrEmptyUsername
	}
	if len(password) < MinPasswordLength {
		return nil, shared.ErrWeakPassword
	}
	if role == "" {
		role = shared.RoleUser
	}
	if !role.IsValid() {
		return nil, shared.ErrInvalidRole
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, shared.WrapError("account", "HashPassword", shared.ErrInvalidInput, "cannot hash password", err)
	}

	return &User{
		ID:           id,
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now.UTC(),
	}, nil
}

// CheckPassword сравнивает пароль с хэшем.
func (u *User) CheckPassword(password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return shared.ErrInvalidCredentials
	}
	return err
}

// Actor - вызывающий от имени пользователя.
func (u *User) Actor() shared.Actor {
	return shared.Actor{UserID: u.ID, Role: u.Role}
}

// Repository - хранилище пользователей.
type Repository interface {
	// Create возвращает ErrUsernameTaken при дубликате имени.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает ErrUserNotFound, если пользователя нет.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername возвращает ErrUserNotFound, если пользователя нет.
	GetByUsername(ctx context.Context, username string) (*User, error)
}
