// Package main - точка входа сервиса привычек.
//
// Один бинарник habitd обслуживает:
// - REST API (serve) с фоновым пересчётом кеша лидерборда
// - миграции схемы (migrate up|down|status)
// - административные операции (user create, leaderboard rebuild)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kab1why1/habit/config"
	"github.com/kab1why1/habit/pkg/logger"

	"github.com/spf13/cobra"
)

// app хранит то, что нужно всем подкомандам.
type app struct {
	configFile string
	cfg        *config.Config
	log        *logger.Logger
}

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "habitd",
		Short:         "Habit tracker service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "YAML config file (overrides HABIT_CONFIG_FILE)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newUserCmd(a),
		newLeaderboardCmd(a),
	)
	return root
}

// init загружает конфигурацию и настраивает логирование.
func (a *app) init() error {
	if a.configFile != "" {
		if err := os.Setenv("HABIT_CONFIG_FILE", a.configFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	obs := cfg.Observability
	a.log = logger.New(logger.Options{
		Level:      logger.ParseLevel(obs.LogLevel),
		Format:     obs.LogFormat,
		File:       obs.LogFile,
		MaxSizeMB:  obs.LogMaxSizeMB,
		MaxBackups: obs.LogMaxBackups,
		MaxAgeDays: obs.LogMaxAgeDays,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
	logger.SetDefault(a.log)
	return nil
}
