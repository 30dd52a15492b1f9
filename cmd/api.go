package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/Alturino/storefront/cart"
	"github.com/Alturino/storefront/internal/auth"
	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/infra"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/metrics"
	"github.com/Alturino/storefront/internal/middleware"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/payment"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/order"
	paymentApi "github.com/Alturino/storefront/payment"
	"github.com/Alturino/storefront/product"
	"github.com/Alturino/storefront/user"
)

const shutdownTimeout = 15 * time.Second

type apiDependencies struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Cache    *redis.Client
	Provider *payment.Stripe
	Registry *prometheus.Registry
}

// newRouter wires every domain onto one router. The webhook is mounted
// before the body logging subrouter so its raw body reaches the signature
// check untouched.
func newRouter(deps apiDependencies) *mux.Router {
	cfg := deps.Config
	store := repository.NewStore(deps.Pool)
	products := catalog.NewCatalog(store, deps.Cache)
	tokens := auth.NewTokenManager(cfg.Application.SecretKey, cfg.Application.AccessTokenTTL)
	m := metrics.New(deps.Registry)

	router := mux.NewRouter()
	router.Use(
		middleware.RecoverPanic,
		otelmux.Middleware(constants.AppApi),
		middleware.Logging,
		middleware.Metrics(m),
	)
	router.Handle("/metrics", metrics.Handler(deps.Registry)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthz(deps.Pool, deps.Cache)).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	paymentApi.Attach(api, deps.Provider, store, deps.Cache, cfg, m)

	body := api.NewRoute().Subrouter()
	body.Use(middleware.LogRequestBody(cfg.Application.MaxBodyBytes))
	public := body.NewRoute().Subrouter()
	protected := body.NewRoute().Subrouter()
	protected.Use(middleware.Auth(tokens))

	product.Attach(public, protected, store, products)
	user.Attach(public, protected, store, tokens, cfg.Application)
	cart.Attach(protected, store, products)
	order.Attach(protected, order.Dependencies{
		Store:    store,
		Queries:  store,
		Catalog:  products,
		Provider: deps.Provider,
		Metrics:  m,
	}, cfg)

	return router
}

func healthz(pool *pgxpool.Pool, cache *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, span := inOtel.Tracer.Start(r.Context(), "healthz")
		defer span.End()

		logger := zerolog.Ctx(c).With().Str(log.KeyTag, "healthz").Logger()

		c, cancel := context.WithTimeout(c, 2*time.Second)
		defer cancel()
		if err := pool.Ping(c); err != nil {
			err = fmt.Errorf("failed pinging database with error=%w", err)
			inHttp.Fail(c, w, span, logger, err)
			return
		}
		if err := cache.Ping(c).Err(); err != nil {
			err = fmt.Errorf("failed pinging cache with error=%w", err)
			inHttp.Fail(c, w, span, logger, err)
			return
		}

		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     inHttp.StatusSuccess,
			"statusCode": http.StatusOK,
			"message":    "healthy",
		})
	}
}

func runApi(c context.Context, cfg *config.Config) (err error) {
	c, span := inOtel.Tracer.Start(c, "runApi")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "main runApi").Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	shutdownFuncs, err := inOtel.InitOtelSdk(logger.WithContext(c), constants.AppApi, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inOtel.ShutdownOtel(shutdownCtx, shutdownFuncs); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing database").Logger()
	logger.Info().Msg("initializing database")
	pool := infra.NewDatabaseClient(logger.WithContext(c), cfg.Database)
	defer func() {
		logger.Info().Msg("closing database")
		pool.Close()
		logger.Info().Msg("closed database")
	}()
	logger.Info().Msg("initialized database")

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	cache := infra.NewCacheClient(logger.WithContext(c), cfg.Cache)
	defer func() {
		logger.Info().Msg("closing cache")
		if err := cache.Close(); err != nil {
			err = fmt.Errorf("failed closing cache with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("closed cache")
	}()
	logger.Info().Msg("initialized cache")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	router := newRouter(apiDependencies{
		Config:   cfg,
		Pool:     pool,
		Cache:    cache,
		Provider: payment.NewStripe(cfg.Payment),
		Registry: registry,
	})
	logger.Info().Msg("initialized router")

	baseLogger := logger.With().Reset().Timestamp().Caller().Str(log.KeyAppName, constants.AppApi).Logger()
	server := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return baseLogger.WithContext(c) },
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Msgf("start listening request at %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("encounter error=%w while running server", err)
		}
		close(serverErr)
	}()

	select {
	case err = <-serverErr:
		if err != nil {
			inOtel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
	case <-c.Done():
		logger.Info().Msg("received interuption signal shutting down")
	}

	logger = logger.With().Str(log.KeyProcess, "shutting down server").Logger()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		err = fmt.Errorf("failed shutting down server with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("shutdown server")

	return nil
}
