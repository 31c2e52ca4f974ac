// Package telemetry installs the OpenTelemetry tracer provider used by the
// HTTP router and the forecast service.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Service information
	ServiceName    = "commodity-forecast"
	ServiceVersion = "1.0.0"

	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TelemetryConfig holds configuration for telemetry
type TelemetryConfig struct {
	Enabled        bool
	Exporter       string
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64
}

// DefaultConfig returns default telemetry configuration
func DefaultConfig() *TelemetryConfig {
	return &TelemetryConfig{
		Enabled:        false,
		Exporter:       ExporterStdout,
		OTLPEndpoint:   "localhost:4318",
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "development",
		SampleRate:     1.0,
	}
}

var (
	mu             sync.Mutex
	globalProvider *sdktrace.TracerProvider
	serviceName    = ServiceName
)

// InitTelemetry installs the global tracer provider and W3C propagator.
// A disabled config leaves the no-op provider in place.
func InitTelemetry(config TelemetryConfig) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !config.Enabled {
		return nil
	}

	ctx := context.Background()
	exporter, err := newExporter(ctx, config)
	if err != nil {
		return err
	}

	name := config.ServiceName
	if name == "" {
		name = ServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	sampleRate := config.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(provider)

	mu.Lock()
	globalProvider = provider
	serviceName = name
	mu.Unlock()
	return nil
}

func newExporter(ctx context.Context, config TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(config.Exporter) {
	case "", ExporterStdout:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	case ExporterOTLP:
		hostport, urlPath, insecure, _, err := normalizeOTLPEndpoint(config.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(hostport),
			otlptracehttp.WithURLPath(urlPath),
		}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported telemetry exporter %q", config.Exporter)
	}
}

// normalizeOTLPEndpoint accepts either host:port or a full http(s) URL and
// returns the exporter endpoint, the traces path and whether TLS is off.
func normalizeOTLPEndpoint(endpoint string) (hostport, urlPath string, insecure bool, resolved string, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", "", false, "", fmt.Errorf("invalid OTLPEndpoint %q", endpoint)
	}
	switch u.Scheme {
	case "http":
		insecure = true
	case "https":
	default:
		return "", "", false, "", fmt.Errorf("invalid OTLPEndpoint %q: unsupported scheme", endpoint)
	}

	urlPath = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(urlPath, "/v1/traces") {
		urlPath += "/v1/traces"
	}
	resolved = fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, urlPath)
	return u.Host, urlPath, insecure, resolved, nil
}

// Shutdown flushes and stops the global provider, if one was installed.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	provider := globalProvider
	globalProvider = nil
	mu.Unlock()

	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	mu.Lock()
	name := serviceName
	mu.Unlock()
	return otel.Tracer(name)
}

// StartSpan starts a span with the given attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CommodityAttributes identifies the price series a span works on.
func CommodityAttributes(commodity, market string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("commodity", commodity),
		attribute.String("market", market),
	}
}
