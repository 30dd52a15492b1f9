// Package testutil starts the postgres and redis containers used by
// integration tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	testRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/Alturino/storefront/internal/infra"
)

const (
	postgresImage = "postgres:16.6-alpine3.21"
	redisImage    = "redis:7.4.2-alpine3.21"
)

func Context() context.Context {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}).
		WithContext(context.Background())
}

// SkipShort skips container backed tests under -short.
func SkipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container backed test in short mode")
	}
}

// Postgres starts a postgres container with every migration applied. The
// container is terminated when the test finishes.
func Postgres(t *testing.T, c context.Context) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := postgres.Run(
		c,
		postgresImage,
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_PORT":     "5432",
			"POSTGRES_USER":     "postgres",
		}),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.WithDatabase("postgres"),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Errorf("failed terminating postgres container with error: %s", err)
		}
	})
	if err != nil {
		t.Fatalf("failed running postgres container with error: %s", err)
	}

	pgConnStr, err := pgContainer.ConnectionString(c, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed getting postgres connection string with error: %s", err)
	}

	pool, err := infra.NewPostgresPool(c, pgConnStr, 10, 1)
	if err != nil {
		t.Fatalf("failed connecting postgres pool with error: %s", err)
	}
	t.Cleanup(pool.Close)

	if err = infra.Migrate(c, pool, infra.MigrationUp); err != nil {
		t.Fatalf("failed migrating postgres with error: %s", err)
	}

	return pool
}

// Redis starts a redis container. The container is terminated when the test
// finishes.
func Redis(t *testing.T, c context.Context) *redis.Client {
	t.Helper()

	redisContainer, err := testRedis.Run(
		c,
		redisImage,
		testRedis.WithLogLevel(testRedis.LogLevelVerbose),
	)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Errorf("failed terminating redis container with error: %s", err)
		}
	})
	if err != nil {
		t.Fatalf("failed running redis container with error: %s", err)
	}

	redisConnStr, err := redisContainer.ConnectionString(c)
	if err != nil {
		t.Fatalf("failed getting redis connection string with error: %s", err)
	}

	redisOpt, err := redis.ParseURL(redisConnStr)
	if err != nil {
		t.Fatalf("failed parsing redis connection string with error: %s", err)
	}

	client := redis.NewClient(redisOpt)
	t.Cleanup(func() { client.Close() })
	if err = client.Ping(c).Err(); err != nil {
		t.Fatalf("failed ping redis client with error: %s", err)
	}

	return client
}
