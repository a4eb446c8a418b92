package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kab1why1/habit/config"
	"github.com/kab1why1/habit/internal/application/command"
	"github.com/kab1why1/habit/internal/application/query"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/domain/shared"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/sqlite"
	"github.com/kab1why1/habit/internal/interface/http/handlers"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

type apiFixture struct {
	t        *testing.T
	handler  http.Handler
	features *config.FeatureFlags
	accounts *command.AccountHandler
}

func newAPIFixture(t *testing.T, limiter RateLimiter) *apiFixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := timeutil.FixedClock{T: time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)}
	log := logger.Nop()
	features := config.NewFeatureFlags()
	accounts := command.NewAccountHandler(store, clock, bcrypt.MinCost, log)

	srv := NewServer(DefaultConfig(), Dependencies{
		Accounts:    accounts,
		Habits:      command.NewHabitHandler(store, clock, log),
		Progress:    command.NewRecordProgressHandler(store, nil, clock, progression.DefaultRules(), log),
		HabitViews:  query.NewHabitsHandler(store, clock, 365, log),
		History:     query.NewHistoryHandler(store, clock, 30, log),
		Leaderboard: query.NewLeaderboardHandler(store, nil, 10, log),
		Profile:     query.NewProfileHandler(store),
		Tokens:      handlers.NewTokenIssuer("test-secret", time.Hour, "habitd"),
		Features:    features,
		RateLimiter: limiter,
		Logger:      log,
	})

	return &apiFixture{t: t, handler: srv.Handler(), features: features, accounts: accounts}
}

func (f *apiFixture) do(method, path, token string, body interface{}) (int, envelope) {
	f.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *apiFixture) login(username string) string {
	f.t.Helper()
	code, env := f.do(http.MethodPost, "/api/v1/auth/register", "", credentialsRequest{Username: username, Password: "secret1"})
	require.Equal(f.t, http.StatusCreated, code, string(env.Data))

	var tok tokenResponse
	require.NoError(f.t, json.Unmarshal(env.Data, &tok))
	require.NotEmpty(f.t, tok.Token)
	return tok.Token
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestAPI_HabitLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login("alice")

	code, env := f.do(http.MethodPost, "/api/v1/habits", token, createHabitRequest{Title: "Read", Category: "mind"})
	require.Equal(t, http.StatusCreated, code)
	created := decodeData[habitResponse](t, env)
	assert.Equal(t, "boolean", created.Kind)
	assert.NotEmpty(t, env.RequestID)

	code, env = f.do(http.MethodPost, "/api/v1/habits/"+created.ID+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, code)
	res := decodeData[command.ProgressResult](t, env)
	assert.True(t, res.Completed)
	assert.True(t, res.Awarded)
	assert.Equal(t, "gained", res.Transition)
	assert.Equal(t, progression.DefaultXPPerTransition, res.XP)

	code, env = f.do(http.MethodGet, "/api/v1/habits", token, nil)
	require.Equal(t, http.StatusOK, code)
	views := decodeData[[]query.HabitView](t, env)
	require.Len(t, views, 1)
	assert.True(t, views[0].Completed)
	assert.Equal(t, 1, views[0].Streak)
	assert.Equal(t, "2024-05-20", views[0].Date)

	title := "Read books"
	code, env = f.do(http.MethodPatch, "/api/v1/habits/"+created.ID, token, updateHabitRequest{Title: &title})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, title, decodeData[habitResponse](t, env).Title)

	code, env = f.do(http.MethodGet, "/api/v1/progression/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	prog := decodeData[query.ProgressionView](t, env)
	assert.Equal(t, progression.DefaultXPPerTransition, prog.XP)
	assert.Equal(t, 1, prog.Level)

	code, _ = f.do(http.MethodDelete, "/api/v1/habits/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(http.MethodGet, "/api/v1/habits/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestAPI_NumericProgress(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login("bob")

	code, env := f.do(http.MethodPost, "/api/v1/habits", token, createHabitRequest{Title: "Pushups", Kind: "numeric", TargetValue: 3})
	require.Equal(t, http.StatusCreated, code)
	id := decodeData[habitResponse](t, env).ID

	amount := 2
	code, env = f.do(http.MethodPost, "/api/v1/habits/"+id+"/increment", token, progressRequest{Amount: &amount})
	require.Equal(t, http.StatusOK, code)
	res := decodeData[command.ProgressResult](t, env)
	assert.Equal(t, 2, res.CurrentValue)
	assert.False(t, res.Completed)

	code, env = f.do(http.MethodPost, "/api/v1/habits/"+id+"/increment", token, nil)
	require.Equal(t, http.StatusOK, code)
	res = decodeData[command.ProgressResult](t, env)
	assert.Equal(t, 3, res.CurrentValue)
	assert.True(t, res.Completed)
	assert.True(t, res.Awarded)

	code, env = f.do(http.MethodPost, "/api/v1/habits/"+id+"/decrement", token, nil)
	require.Equal(t, http.StatusOK, code)
	res = decodeData[command.ProgressResult](t, env)
	assert.Equal(t, 2, res.CurrentValue)
	assert.Equal(t, "lost", res.Transition)

	zero := 0
	code, env = f.do(http.MethodPost, "/api/v1/habits/"+id+"/increment", token, progressRequest{Amount: &zero})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)

	huge := math.MaxInt32 + 1
	code, env = f.do(http.MethodPost, "/api/v1/habits/"+id+"/increment", token, progressRequest{Amount: &huge})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)

	code, _ = f.do(http.MethodPost, "/api/v1/habits/"+id+"/increment", token, progressRequest{Date: "2024-05-21"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.do(http.MethodPost, "/api/v1/habits/"+id+"/increment", token, progressRequest{Date: "2024-05-19"})
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[command.ProgressResult](t, env).Awarded)

	code, env = f.do(http.MethodGet, "/api/v1/habits/"+id+"/stats?days=2", token, nil)
	require.Equal(t, http.StatusOK, code)
	stats := decodeData[query.StatsResult](t, env)
	assert.Equal(t, "2024-05-19", stats.From)
	assert.Equal(t, "2024-05-20", stats.To)

	code, _ = f.do(http.MethodGet, "/api/v1/habits/"+id+"/stats?days=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_Authorization(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.login("alice")
	bob := f.login("bob")

	code, env := f.do(http.MethodGet, "/api/v1/habits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Error.Code)

	code, _ = f.do(http.MethodGet, "/api/v1/habits", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	_, env = f.do(http.MethodPost, "/api/v1/habits", alice, createHabitRequest{Title: "Run"})
	id := decodeData[habitResponse](t, env).ID

	code, _ = f.do(http.MethodPost, "/api/v1/habits/"+id+"/toggle", bob, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(http.MethodGet, "/api/v1/habits?all=true", bob, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = f.do(http.MethodPost, "/api/v1/auth/register", "", credentialsRequest{Username: "alice", Password: "secret1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Error.Code)

	code, _ = f.do(http.MethodPost, "/api/v1/auth/login", "", credentialsRequest{Username: "alice", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(http.MethodPost, "/api/v1/habits", alice, createHabitRequest{Title: "  "})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_AdminListsAll(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.login("alice")
	_, _ = f.do(http.MethodPost, "/api/v1/habits", alice, createHabitRequest{Title: "Run"})

	_, err := f.accounts.Register(context.Background(), command.RegisterUserCommand{
		Username: "root", Password: "secret1", Role: shared.RoleAdmin,
	})
	require.NoError(t, err)

	code, env := f.do(http.MethodPost, "/api/v1/auth/login", "", credentialsRequest{Username: "root", Password: "secret1"})
	require.Equal(t, http.StatusOK, code)
	admin := decodeData[tokenResponse](t, env)
	assert.Equal(t, "admin", admin.User.Role)

	code, env = f.do(http.MethodGet, "/api/v1/habits?all=true", admin.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]query.HabitView](t, env), 1)
}

func TestAPI_LeaderboardAndFeatures(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login("alice")
	_, env := f.do(http.MethodPost, "/api/v1/habits", token, createHabitRequest{Title: "Run"})
	_, _ = f.do(http.MethodPost, "/api/v1/habits/"+decodeData[habitResponse](t, env).ID+"/toggle", token, nil)

	code, env := f.do(http.MethodGet, "/api/v1/leaderboard?limit=5", "", nil)
	require.Equal(t, http.StatusOK, code)
	board := decodeData[query.GetLeaderboardResult](t, env)
	assert.Equal(t, "store", board.Source)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, leaderboard.Rank(1), board.Entries[0].Rank)

	require.NoError(t, f.features.DisableFeature(config.FeaturePublicLeaderboard))
	code, _ = f.do(http.MethodGet, "/api/v1/leaderboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = f.do(http.MethodGet, "/api/v1/leaderboard", token, nil)
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, f.features.DisableFeature(config.FeatureRegistration))
	code, env = f.do(http.MethodPost, "/api/v1/auth/register", "", credentialsRequest{Username: "carol", Password: "secret1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "registration_disabled", env.Error.Code)
}

func TestAPI_History(t *testing.T) {
	f := newAPIFixture(t, nil)
	token := f.login("alice")
	_, env := f.do(http.MethodPost, "/api/v1/habits", token, createHabitRequest{Title: "Run"})
	id := decodeData[habitResponse](t, env).ID

	_, _ = f.do(http.MethodPost, "/api/v1/habits/"+id+"/toggle", token, progressRequest{Date: "2024-05-18"})
	_, _ = f.do(http.MethodPost, "/api/v1/habits/"+id+"/toggle", token, nil)

	code, env := f.do(http.MethodGet, "/api/v1/history", token, nil)
	require.Equal(t, http.StatusOK, code)
	history := decodeData[map[string]int](t, env)
	assert.Equal(t, map[string]int{"2024-05-18": 1, "2024-05-20": 1}, history)

	code, env = f.do(http.MethodGet, "/api/v1/history?from=2024-05-19", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]int{"2024-05-20": 1}, decodeData[map[string]int](t, env))

	code, _ = f.do(http.MethodGet, "/api/v1/history?from=2024-05-20&to=2024-05-18", token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_RateLimitAndHealth(t *testing.T) {
	f := newAPIFixture(t, NewMemoryRateLimiter(2, time.Minute))

	code, _ := f.do(http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env := f.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
}

func TestMemoryRateLimiter_Window(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewMemoryRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := rl.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = rl.Allow(ctx, "b")
	assert.True(t, ok)

	now = now.Add(61 * time.Second)
	ok, _ = rl.Allow(ctx, "a")
	assert.True(t, ok)
	assert.NotContains(t, rl.requests, "b")
}
