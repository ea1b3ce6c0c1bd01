package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"fieldTracker/internal/app"
	"fieldTracker/internal/config"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/repository/task/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "field-tracker",
		Short:         "Учёт выездных задач исполнителей",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "путь к config.yml")

	root.AddCommand(newServeCommand(), newMigrateCommand(), newForwardCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и фоновый перенос задач",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := app.New(cfg)
			defer a.Close()
			if _, err := a.Init(ctx); err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции базы данных",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return postgres.MigrateUp(cfg.Database.URL)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Откатить миграции, без steps - все",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps должно быть положительным числом: %q", args[0])
				}
				steps = n
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return postgres.MigrateDown(cfg.Database.URL, steps)
		},
	})

	return migrateCmd
}

func newForwardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forward",
		Short: "Один проход переноса просроченных задач",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a := app.New(cfg)
			defer a.Close()
			if _, err := a.Init(context.Background()); err != nil {
				return err
			}

			report, err := a.Forwarder().Run(cmd.Context())
			logger.Info("Перенос завершён",
				zap.Int("scanned", report.Scanned),
				zap.Int("forwarded", report.Forwarded),
				zap.Int("failed", report.Failed))
			return err
		},
	}
}
