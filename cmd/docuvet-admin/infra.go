package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/docuvet/docuvet/config"
	"github.com/docuvet/docuvet/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

// connectInfra loads configuration and opens the database connection shared
// by all admin commands.
func connectInfra(logger *slog.Logger) (*config.AppConfig, *sql.DB, error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	return &cfg, db, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("close database failed", "error", err)
	}
}

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := connectInfra(logger)
			if err != nil {
				return err
			}
			defer closeDB(db, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultMigrationTimeout)
			defer cancel()

			return bootstrap.RunMigrations(ctx, db, logger)
		},
	}
}
