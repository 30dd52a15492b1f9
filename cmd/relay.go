package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/infra"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/metrics"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/outbox"
	"github.com/Alturino/storefront/internal/repository"
)

func runRelay(c context.Context, cfg *config.Config) error {
	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "main runRelay").Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	shutdownFuncs, err := inOtel.InitOtelSdk(logger.WithContext(c), constants.AppRelay, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inOtel.ShutdownOtel(shutdownCtx, shutdownFuncs); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing database").Logger()
	logger.Info().Msg("initializing database")
	pool := infra.NewDatabaseClient(logger.WithContext(c), cfg.Database)
	defer pool.Close()
	logger.Info().Msg("initialized database")

	logger = logger.With().
		Str(log.KeyTopic, cfg.Kafka.Topic).
		Strs("brokers", cfg.Kafka.Brokers).
		Str(log.KeyProcess, "initializing kafka writer").
		Logger()
	logger.Info().Msg("initializing kafka writer")
	writer := infra.NewKafkaWriter(cfg.Kafka)
	defer func() {
		if err := writer.Close(); err != nil {
			err = fmt.Errorf("failed closing kafka writer with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()
	logger.Info().Msg("initialized kafka writer")

	relay := outbox.NewRelay(
		repository.NewStore(pool),
		writer,
		cfg.Kafka.RelayInterval,
		metrics.New(prometheus.DefaultRegisterer),
	)

	logger = logger.With().Str(log.KeyProcess, "relaying outbox").Logger()
	if err := relay.Run(logger.WithContext(c)); err != nil {
		err = fmt.Errorf("failed relaying outbox with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("stopped relaying outbox")

	return nil
}
