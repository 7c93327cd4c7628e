package otel

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Collector endpoints used when Config.Endpoint is empty
const (
	DefaultJaegerEndpoint = "http://localhost:14268/api/traces"
	DefaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
)

// newExporter builds the span exporter named by config. Stdout spans go to
// stderr so they do not interleave with the log store console sink.
func newExporter(config Config) (sdktrace.SpanExporter, error) {
	endpoint := config.Endpoint
	switch config.Exporter {
	case ExporterJaeger:
		if endpoint == "" {
			endpoint = DefaultJaegerEndpoint
		}
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
		if err != nil {
			return nil, fmt.Errorf("jaeger exporter: %w", err)
		}
		return exp, nil
	case ExporterZipkin:
		if endpoint == "" {
			endpoint = DefaultZipkinEndpoint
		}
		exp, err := zipkin.New(endpoint)
		if err != nil {
			return nil, fmt.Errorf("zipkin exporter: %w", err)
		}
		return exp, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return discardExporter{}, nil
	}
}

// discardExporter drops every span
type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }

func (discardExporter) Shutdown(context.Context) error { return nil }
