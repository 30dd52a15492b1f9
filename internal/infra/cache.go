package infra

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/log"
)

var (
	cacheOnce sync.Once
	cache     *redis.Client
)

// NewCacheClient returns the process wide traced redis client. It exits when
// redis cannot be reached.
func NewCacheClient(c context.Context, cfg config.Cache) *redis.Client {
	cacheOnce.Do(func() {
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "infra NewCacheClient").
			Logger()

		logger = logger.With().Str(log.KeyProcess, "initializing redis client").Logger()
		logger.Info().Msg("initializing redis client")
		cache = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.Database,
		})
		logger.Info().Msg("initialized redis client")

		logger = logger.With().Str(log.KeyProcess, "instrumenting redis client").Logger()
		logger.Info().Msg("instrumenting redis client")
		if err := redisotel.InstrumentTracing(cache, redisotel.WithAttributes(semconv.DBSystemRedis)); err != nil {
			err = fmt.Errorf("failed initializing redis tracing with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		if err := redisotel.InstrumentMetrics(cache, redisotel.WithAttributes(semconv.DBSystemRedis)); err != nil {
			err = fmt.Errorf("failed initializing redis metrics with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("instrumented redis client")

		logger = logger.With().Str(log.KeyProcess, "pinging redis").Logger()
		logger.Info().Msg("pinging redis")
		if err := cache.Ping(c).Err(); err != nil {
			err = fmt.Errorf("failed pinging redis with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("pinged redis")
	})
	return cache
}
