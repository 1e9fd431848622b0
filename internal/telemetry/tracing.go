// Package telemetry installs the global OpenTelemetry tracer provider used by
// the HTTP tracing middleware and the task service spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Options struct {
	// Exporter is one of "none", "stdout" or "otlp".
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	// Writer receives stdout spans; defaults to os.Stdout.
	Writer io.Writer
}

type ShutdownFunc func(context.Context) error

// InitTracing sets the global tracer provider and returns a function that
// flushes and stops it. With the "none" exporter the global no-op provider
// is left in place.
func InitTracing(ctx context.Context, opts Options) (ShutdownFunc, error) {
	var exp sdktrace.SpanExporter
	var err error

	switch opts.Exporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case "otlp":
		var httpOpts []otlptracehttp.Option
		if opts.OTLPEndpoint != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpointURL(opts.OTLPEndpoint))
		}
		exp, err = otlptracehttp.New(ctx, httpOpts...)
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", opts.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
