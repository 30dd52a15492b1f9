package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/infra"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/notification"
)

func runNotification(c context.Context, cfg *config.Config) error {
	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "main runNotification").Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	shutdownFuncs, err := inOtel.InitOtelSdk(logger.WithContext(c), constants.AppNotification, cfg.Otel)
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

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	cache := infra.NewCacheClient(logger.WithContext(c), cfg.Cache)
	defer cache.Close()
	logger.Info().Msg("initialized cache")

	logger = logger.With().
		Str(log.KeyTopic, cfg.Kafka.Topic).
		Str("groupId", cfg.Kafka.GroupID).
		Str(log.KeyProcess, "initializing kafka reader").
		Logger()
	logger.Info().Msg("initializing kafka reader")
	reader := infra.NewKafkaReader(cfg.Kafka)
	defer func() {
		if err := reader.Close(); err != nil {
			err = fmt.Errorf("failed closing kafka reader with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()
	logger.Info().Msg("initialized kafka reader")

	logger = logger.With().Str(log.KeyProcess, "consuming order events").Logger()
	if err := notification.Run(logger.WithContext(c), reader, cache); err != nil {
		err = fmt.Errorf("failed consuming order events with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	return nil
}
