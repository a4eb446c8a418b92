package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kab1why1/habit/config"
	"github.com/kab1why1/habit/internal/application/command"
	"github.com/kab1why1/habit/internal/application/query"
	"github.com/kab1why1/habit/internal/domain/account"
	"github.com/kab1why1/habit/internal/domain/habit"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/internal/interface/http/handlers"
	"github.com/kab1why1/habit/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"name":    "Habit Tracker API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":      "/health",
			"auth":        "/api/v1/auth/login",
			"habits":      "/api/v1/habits",
			"history":     "/api/v1/history",
			"progression": "/api/v1/progression/me",
			"leaderboard": "/api/v1/leaderboard",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": s.config.Version,
	})
}

// handleReady handles the readiness check endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness check endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *account.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Role: string(u.Role), CreatedAt: u.CreatedAt}
}

// handleRegister creates a regular account and returns a token for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Features.IsEnabled(config.FeatureRegistration, nil) {
		writeJSONError(w, r, http.StatusForbidden, "registration_disabled", "Registration is disabled")
		return
	}

	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.deps.Accounts.Register(r.Context(), command.RegisterUserCommand{
		Username: req.Username,
		Password: req.Password,
		Role:     shared.RoleUser,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeToken(w, r, http.StatusCreated, user)
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.deps.Accounts.Authenticate(r.Context(), command.AuthenticateCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeToken(w, r, http.StatusOK, user)
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, status int, user *account.User) {
	token, expires, err := s.deps.Tokens.Issue(user.Actor())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, tokenResponse{Token: token, ExpiresAt: expires, User: newUserResponse(user)})
}

// ══════════════════════════════════════════════════════════════════════════════
// HABIT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createHabitRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Color       string `json:"color"`
	Kind        string `json:"kind"`
	TargetValue int    `json:"target_value"`
}

type updateHabitRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Color       *string `json:"color"`
}

type habitResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Color       string    `json:"color"`
	Kind        string    `json:"kind"`
	TargetValue int       `json:"target_value"`
	CreatedAt   time.Time `json:"created_at"`
}

func newHabitResponse(h *habit.Habit) habitResponse {
	return habitResponse{
		ID:          h.ID,
		OwnerID:     h.OwnerID,
		Title:       h.Title,
		Description: h.Description,
		Category:    h.Category,
		Color:       h.Color,
		Kind:        string(h.Kind),
		TargetValue: h.TargetValue,
		CreatedAt:   h.CreatedAt,
	}
}

// handleListHabits returns the caller's habits with progress for ?date= (default today).
// Admins may pass ?all=true to list every habit.
func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.HabitViews.List(r.Context(), query.ListHabitsQuery{
		Actor: actorOf(r),
		Date:  r.URL.Query().Get("date"),
		All:   getQueryParamBool(r, "all"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, views)
}

// handleCreateHabit creates a habit owned by the caller.
func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req createHabitRequest
	if !s.decode(w, r, &req) {
		return
	}

	h, err := s.deps.Habits.Create(r.Context(), command.CreateHabitCommand{
		Actor:       actorOf(r),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Color:       req.Color,
		Kind:        req.Kind,
		TargetValue: req.TargetValue,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newHabitResponse(h))
}

// handleGetHabit returns one habit with progress for ?date=.
func (s *Server) handleGetHabit(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.HabitViews.Get(r.Context(), query.GetHabitQuery{
		Actor:   actorOf(r),
		HabitID: r.PathValue("id"),
		Date:    r.URL.Query().Get("date"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleUpdateHabit edits the display fields of a habit.
func (s *Server) handleUpdateHabit(w http.ResponseWriter, r *http.Request) {
	var req updateHabitRequest
	if !s.decode(w, r, &req) {
		return
	}

	h, err := s.deps.Habits.Update(r.Context(), command.UpdateHabitCommand{
		Actor:   actorOf(r),
		HabitID: r.PathValue("id"),
		Update: habit.Update{
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Color:       req.Color,
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newHabitResponse(h))
}

// handleDeleteHabit removes a habit and its history.
func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Habits.Delete(r.Context(), command.DeleteHabitCommand{
		Actor:   actorOf(r),
		HabitID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"deleted": r.PathValue("id")})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type progressRequest struct {
	Date   string `json:"date"`
	Amount *int   `json:"amount"`
}

// handleToggle flips completion of a boolean habit for the given day.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	res, err := s.deps.Progress.Toggle(r.Context(), command.ToggleProgressCommand{
		Actor:   actorOf(r),
		HabitID: r.PathValue("id"),
		Date:    req.Date,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleIncrement adds amount (default 1) to the day's value.
func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	s.adjust(w, r, 1)
}

// handleDecrement subtracts amount (default 1) from the day's value.
func (s *Server) handleDecrement(w http.ResponseWriter, r *http.Request) {
	s.adjust(w, r, -1)
}

func (s *Server) adjust(w http.ResponseWriter, r *http.Request, sign int) {
	var req progressRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "amount must be a positive integer")
		return
	}

	res, err := s.deps.Progress.Adjust(r.Context(), command.AdjustProgressCommand{
		Actor:   actorOf(r),
		HabitID: r.PathValue("id"),
		Date:    req.Date,
		Delta:   sign * amount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY & STATS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleStats returns the value series of a habit over ?days= days.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days, err := getQueryParamInt(r, "days", 0)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	stats, err := s.deps.History.Stats(r.Context(), query.GetStatsQuery{
		Actor:      actorOf(r),
		HabitID:    r.PathValue("id"),
		WindowDays: days,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleHistory returns completed-habit counts per day, bounded by ?from= and ?to=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.History.History(r.Context(), query.GetHistoryQuery{
		Actor: actorOf(r),
		From:  r.URL.Query().Get("from"),
		To:    r.URL.Query().Get("to"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION & LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleMyProgression returns the caller's XP and level.
func (s *Server) handleMyProgression(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Profile.Progression(r.Context(), actorOf(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetUser returns a user profile. Users may only read their own.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Profile.User(r.Context(), actorOf(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleLeaderboard returns the top users by XP.
// Anonymous access depends on the leaderboard.public feature.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	actor, authenticated := handlers.ActorFrom(r.Context())
	if !authenticated && !s.deps.Features.IsEnabled(config.FeaturePublicLeaderboard, nil) {
		s.writeError(w, r, shared.NewDomainError("auth", "Verify", shared.ErrUnauthorized, "missing bearer token"))
		return
	}

	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.deps.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Debug("leaderboard served",
		logger.String("source", result.Source),
		logger.Int("entries", len(result.Entries)),
		logger.UserID(actor.UserID),
	)
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST & ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func actorOf(r *http.Request) shared.Actor {
	actor, _ := handlers.ActorFrom(r.Context())
	return actor
}

// decode reads a required JSON body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
	return false
}

// writeError maps domain error kinds to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case shared.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		status, code = http.StatusBadRequest, "validation_error"
	case shared.IsUnauthorized(err):
		status, code = http.StatusUnauthorized, "unauthorized"
	case shared.IsForbidden(err):
		status, code = http.StatusForbidden, "forbidden"
	case shared.IsAlreadyExists(err):
		status, code = http.StatusConflict, "conflict"
	}

	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, status, code, "An unexpected error occurred")
		return
	}
	writeJSONError(w, r, status, code, clientMessage(err))
}

// clientMessage returns the human-readable part of a domain error.
func clientMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
