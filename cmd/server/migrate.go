package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GearGrab/service-booking/internal/config"
	"github.com/GearGrab/service-booking/internal/platform/database"
	"github.com/GearGrab/service-booking/internal/platform/logger"
	"github.com/GearGrab/service-booking/migrations"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateDownCmd.Flags().IntP("steps", "n", 1, "Number of migrations to roll back")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back PostgreSQL schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, log, err := migrationTarget()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return database.RunMigrations(url, migrations.FS, log)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}

		url, log, err := migrationTarget()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return database.RollbackMigrations(url, migrations.FS, steps, log)
	},
}

func migrationTarget() (string, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		return "", nil, fmt.Errorf("create logger: %w", err)
	}
	return postgresConfig(cfg).DatabaseURL(), log, nil
}

func postgresConfig(cfg *config.ServiceConfig) database.PostgresConfig {
	return database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
}
