package infra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	pgxuuid "github.com/vgarvardt/pgx-google-uuid/v5"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/log"
)

func PostgresURL(cfg config.Database) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     cfg.Name,
		RawQuery: "sslmode=disable",
	}
	if cfg.TimeZone != "" {
		u.RawQuery += "&timezone=" + url.QueryEscape(cfg.TimeZone)
	}
	return u.String()
}

// NewPostgresPool opens a traced pgx pool with google/uuid registered on
// every connection and pings it.
func NewPostgresPool(c context.Context, connString string, maxConns int32, minConns int32) (*pgxpool.Pool, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "infra NewPostgresPool").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing pgx config").Logger()
	logger.Info().Msg("initializing pgx config")
	pgxConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		err = fmt.Errorf("failed creating pgx config with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if maxConns > 0 {
		pgxConfig.MaxConns = maxConns
	}
	if minConns > 0 {
		pgxConfig.MinConns = minConns
	}
	pgxConfig.MaxConnLifetime = 15 * time.Minute
	pgxConfig.MaxConnIdleTime = 5 * time.Minute
	pgxConfig.ConnConfig.Tracer = otelpgx.NewTracer(
		otelpgx.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	pgxConfig.AfterConnect = func(c context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	logger.Info().Msg("initialized pgx config")

	logger = logger.With().Str(log.KeyProcess, "creating connection pool").Logger()
	logger.Info().Msg("creating connection pool")
	pool, err := pgxpool.NewWithConfig(c, pgxConfig)
	if err != nil {
		err = fmt.Errorf("failed creating connection pool with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("created connection pool")

	logger = logger.With().Str(log.KeyProcess, "pinging database").Logger()
	logger.Info().Msg("pinging database")
	if err = pool.Ping(c); err != nil {
		pool.Close()
		err = fmt.Errorf("failed pinging database with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Msg("pinged database")

	return pool, nil
}

func NewDatabaseClient(c context.Context, cfg config.Database) *pgxpool.Pool {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "infra NewDatabaseClient").
		Str(log.KeyProcess, "connecting to database").
		Str("dbHost", cfg.Host).
		Str("dbName", cfg.Name).
		Logger()

	logger.Info().Msg("connecting to database")
	pool, err := NewPostgresPool(logger.WithContext(c), PostgresURL(cfg), cfg.MaxConnections, cfg.MinConnections)
	if err != nil {
		logger.Fatal().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("connected to database")

	return pool
}
