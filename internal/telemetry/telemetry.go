package telemetry

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint defaults to OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string
	// SampleRatio defaults to OTEL_TRACES_SAMPLER_ARG, then 1.
	SampleRatio float64
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Endpoint) == "" {
		o.Endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if o.SampleRatio <= 0 {
		o.SampleRatio = 1
		if raw := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); raw != "" {
			if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 && parsed <= 1 {
				o.SampleRatio = parsed
			}
		}
	}
	if o.ServiceName == "" {
		o.ServiceName = "place-search"
	}
	return o
}

func noop(context.Context) error { return nil }

// Init configures the global OpenTelemetry trace provider. Without an endpoint
// tracing stays disabled and a noop shutdown is returned.
func Init(ctx context.Context, options Options) (shutdown func(context.Context) error, err error) {
	options = options.withDefaults()
	if options.Endpoint == "" {
		return noop, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracehttp.New(initCtx,
		otlptracehttp.WithEndpoint(strings.TrimPrefix(strings.TrimPrefix(options.Endpoint, "http://"), "https://")),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(3*time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	)
	if err != nil {
		// Non-fatal: service starts without tracing.
		return noop, nil
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(options.ServiceName))}
	if options.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(options.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(options.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
