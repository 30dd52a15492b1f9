package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/migrations"
)

type MigrationDirection string

const (
	MigrationUp   MigrationDirection = "up"
	MigrationDown MigrationDirection = "down"
)

// Migrate applies the embedded migrations through pool.
func Migrate(c context.Context, pool *pgxpool.Pool, direction MigrationDirection) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "infra Migrate").
		Str("direction", string(direction)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing migration source").Logger()
	logger.Info().Msg("initializing migration source")
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		err = fmt.Errorf("failed initializing migration source with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("initialized migration source")

	logger = logger.With().Str(log.KeyProcess, "initializing db driver").Logger()
	logger.Info().Msg("initializing db driver")
	db := stdlib.OpenDBFromPool(pool)
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		err = fmt.Errorf("failed creating postgres migration driver with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("initialized db driver")

	migration, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		err = fmt.Errorf("failed initializing migration with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger = logger.With().Str(log.KeyProcess, "running migration").Logger()
	logger.Info().Msg("running migration")
	switch direction {
	case MigrationDown:
		err = migration.Down()
	default:
		err = migration.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		err = fmt.Errorf("failed running migration %s with error=%w", direction, err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("ran migration")

	return nil
}
