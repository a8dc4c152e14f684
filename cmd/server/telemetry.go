package main

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/Sskingcobraz/Xalvion/internal/metrics"
)

const serviceName = "xalvion"

// newMetricsHandler exports to endpoint over OTLP/gRPC, or records nothing
// when endpoint is empty. The returned func flushes and stops the exporter.
func newMetricsHandler(ctx context.Context, endpoint string) (metrics.Handler, func(context.Context) error, error) {
	if endpoint == "" {
		return metrics.NewNoOpHandler(ctx), func(context.Context) error { return nil }, nil
	}

	var opts []otlpmetricgrpc.Option
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlpmetricgrpc.WithEndpointURL(endpoint))
	} else {
		zap.L().Warn("otel: using insecure connection to collector", zap.String("endpoint", endpoint))
		opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otel: failed to create metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: failed to create otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(provider)

	zap.L().Debug("OpenTelemetry metrics enabled", zap.String("endpoint", endpoint))
	return metrics.NewOtelHandler(ctx, provider, serviceName), provider.Shutdown, nil
}
