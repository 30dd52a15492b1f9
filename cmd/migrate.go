package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/infra"
	"github.com/Alturino/storefront/internal/log"
)

func runMigrate(c context.Context, cfg *config.Config, direction string) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "main runMigrate").
		Str("direction", direction).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing database").Logger()
	logger.Info().Msg("initializing database")
	pool := infra.NewDatabaseClient(logger.WithContext(c), cfg.Database)
	defer pool.Close()
	logger.Info().Msg("initialized database")

	logger = logger.With().Str(log.KeyProcess, "migrating database").Logger()
	logger.Info().Msg("migrating database")
	if err := infra.Migrate(logger.WithContext(c), pool, infra.MigrationDirection(direction)); err != nil {
		err = fmt.Errorf("failed migrating database with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("migrated database")

	return nil
}
