package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func newResource(c context.Context, serviceName string) (*resource.Resource, error) {
	return resource.New(c, resource.WithAttributes(semconv.ServiceName(serviceName)))
}

func initTracerProvider(
	c context.Context,
	endpoint string,
	serviceName string,
) (*trace.TracerProvider, error) {
	res, err := newResource(c, serviceName)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(
		c,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(5*time.Second)),
		trace.WithResource(res),
	), nil
}

func initMeterProvider(
	c context.Context,
	endpoint string,
	serviceName string,
) (*metric.MeterProvider, error) {
	res, err := newResource(c, serviceName)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(
		c,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(5*time.Second))),
		metric.WithResource(res),
	), nil
}
