package main

import (
	"context"
	"fmt"

	"github.com/kab1why1/habit/config"
	"github.com/kab1why1/habit/internal/application/command"
	"github.com/kab1why1/habit/internal/application/query"
	"github.com/kab1why1/habit/internal/domain/leaderboard"
	"github.com/kab1why1/habit/internal/domain/progression"
	"github.com/kab1why1/habit/internal/infrastructure/persistence/redis"
	"github.com/kab1why1/habit/internal/infrastructure/scheduler"
	"github.com/kab1why1/habit/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/kab1why1/habit/internal/interface/http"
	"github.com/kab1why1/habit/internal/interface/http/handlers"
	"github.com/kab1why1/habit/pkg/circuitbreaker"
	"github.com/kab1why1/habit/pkg/logger"
	"github.com/kab1why1/habit/pkg/timeutil"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve собирает зависимости и работает до сигнала остановки.
func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	log.Info("starting habit service",
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("driver", cfg.Database.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	store, schema, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		_ = store.Close()
	}()

	if cfg.Database.AutoMigrate {
		ran, err := schema.Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", logger.Int("applied", ran))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(store))

	var (
		cache     leaderboard.Cache
		redisConn *redis.Cache
		limiter   httpapi.RateLimiter
	)
	redisConn, err = a.openRedis(ctx)
	if err != nil {
		log.Warn("failed to connect to Redis, cache disabled", logger.Err(err))
		redisConn = nil
	}
	if redisConn != nil {
		defer func() { _ = redisConn.Close() }()
		health.AddOptionalCheck("redis", handlers.NewPingCheck(redisConn))
		breaker := circuitbreaker.New("redis",
			circuitbreaker.WithThresholds(cfg.Redis.BreakerFailures, 0),
			circuitbreaker.WithCooldown(cfg.Redis.BreakerCooldown),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		)
		cache = redis.NewGuardedLeaderboardCache(redis.NewLeaderboardCache(redisConn, cfg.Redis.LeaderboardTTL), breaker, log)
		if cfg.HTTP.RateLimit > 0 {
			limiter = redis.NewRateLimiter(redisConn, cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
		}
		log.Info("Redis connection established", logger.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))
	}
	if limiter == nil && cfg.HTTP.RateLimit > 0 {
		limiter = httpapi.NewMemoryRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{Location: cfg.App.Location}
	engine := cfg.Engine

	// Кеш лидерборда при записи можно выключить флагом без перезапуска чтения.
	var writeCache leaderboard.Cache
	if cache != nil && cfg.Features.IsEnabled(config.FeatureLeaderboardCache, nil) {
		writeCache = cache
	}

	rules := progression.Rules{XPPerTransition: engine.XPPerTransition, PenalizeDecrement: engine.PenalizeDecrement}
	deps := httpapi.Dependencies{
		Accounts:      command.NewAccountHandler(store, clock, cfg.Auth.BcryptCost, log),
		Habits:        command.NewHabitHandler(store, clock, log),
		Progress:      command.NewRecordProgressHandler(store, writeCache, clock, rules, log),
		HabitViews:    query.NewHabitsHandler(store, clock, engine.MaxStreakLookbackDays, log),
		History:       query.NewHistoryHandler(store, clock, engine.StatsWindowDays, log),
		Leaderboard:   query.NewLeaderboardHandler(store, cache, engine.LeaderboardSize, log),
		Profile:       query.NewProfileHandler(store),
		Tokens:        handlers.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.App.Name),
		Features:      cfg.Features,
		RateLimiter:   limiter,
		HealthChecker: health,
		Logger:        log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && cache != nil {
		sched = scheduler.New(cfg.App.Location, log)
		job := jobs.NewRebuildLeaderboardJob(store.Leaderboard(), cache, redisConn, log, jobs.RebuildLeaderboardConfig{
			Size:    leaderboard.MaxSize,
			Timeout: cfg.Scheduler.JobTimeout,
			LockTTL: 2 * cfg.Scheduler.LeaderboardInterval,
		})
		if err := sched.Register(job, cfg.Scheduler.LeaderboardInterval); err != nil {
			return fmt.Errorf("failed to register job: %w", err)
		}
	} else if cfg.Scheduler.Enabled {
		log.Info("scheduler skipped: leaderboard cache is disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.AllowedOrigins = cfg.HTTP.CORSOrigins
	httpCfg.Version = cfg.App.Version
	server := httpapi.NewServer(httpCfg, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if sched != nil {
			_ = sched.Stop()
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("habit service stopped")
	return nil
}
