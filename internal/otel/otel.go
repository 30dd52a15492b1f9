package otel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/contrib/propagators/ot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/log"
)

var Tracer = otel.Tracer(constants.AppStorefront)

type ShutdownFunc func(context.Context) error

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		jaeger.Jaeger{},
		ot.OT{},
	)
}

func InitOtelSdk(
	c context.Context,
	serviceName string,
	cfg config.Otel,
) (shutdownFuncs []ShutdownFunc, err error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "otel InitOtelSdk").
		Logger()

	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	logger = logger.With().Str(log.KeyProcess, "initializing propagator").Logger()
	logger.Info().Msg("initializing propagator")
	otel.SetTextMapPropagator(newPropagator())
	logger.Info().Msg("initialized propagator")

	logger = logger.With().Str(log.KeyProcess, "initializing tracer provider").Logger()
	logger.Info().Msg("initializing tracer provider")
	tracerProvider, err := initTracerProvider(c, endpoint, serviceName)
	if err != nil {
		err = fmt.Errorf("failed initializing tracer provider with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	otel.SetTracerProvider(tracerProvider)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	logger.Info().Msg("initialized tracer provider")

	logger = logger.With().Str(log.KeyProcess, "initializing meter provider").Logger()
	logger.Info().Msg("initializing meter provider")
	meterProvider, err := initMeterProvider(c, endpoint, serviceName)
	if err != nil {
		err = fmt.Errorf("failed initializing meter provider with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return shutdownFuncs, err
	}
	otel.SetMeterProvider(meterProvider)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	logger.Info().Msg("initialized meter provider")

	return shutdownFuncs, nil
}

func ShutdownOtel(c context.Context, shutdownFuncs []ShutdownFunc) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, shutdown := range shutdownFuncs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := shutdown(c); err != nil {
				mu.Lock()
				errs = errors.Join(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}
