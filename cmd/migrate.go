package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/M3-org/clanktank-sub000/internal/adapters/repository"
	"github.com/M3-org/clanktank-sub000/internal/config"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the SQL schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	if cfg.StoreDriver == config.DriverMemory {
		return fmt.Errorf("%w: migrate needs a sqlite or postgres store_driver", config.ErrInvalidConfig)
	}

	db, err := repository.OpenGorm(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql db: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info(ctx, "schema migrated", logger.String("driver", cfg.StoreDriver))
	return nil
}
