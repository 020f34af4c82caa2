// Package tracing provides OpenTelemetry-based distributed tracing
// infrastructure. It supports multiple exporters (stdout, OTLP) and
// provides domain-specific span helpers for session, stream, and steering
// tracing.
package tracing

import (
	"context"
	"fmt"
	"io"
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
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the flowtone tracer.
	TracerName = "github.com/flowtonehq/flowtone"

	// Version is the semantic version of the tracer.
	Version = "1.0.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool
	ExporterType ExporterType
	OTLPEndpoint string
	ServiceName  string
	Environment  string
	SampleRate   float64
	Output       io.Writer // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "flowtone",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// global is the package-level default tracer.
var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL
	// conflicts with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// Start starts a new span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// --- Domain-specific span helpers ---

// SessionSpan represents a focus session span, open for the session's
// whole lifetime.
type SessionSpan struct {
	span trace.Span
	ctx  context.Context
}

// StartSessionSpan starts a span for a focus session.
func (t *Tracer) StartSessionSpan(ctx context.Context, sessionID, mode string, durationSeconds int) (context.Context, *SessionSpan) {
	ctx, span := t.tracer.Start(ctx, "session.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("session.mode", mode),
			attribute.Int("session.duration_seconds", durationSeconds),
		),
	)

	return ctx, &SessionSpan{span: span, ctx: ctx}
}

// AddSuspension records a focus-violation suspension on the session.
func (ss *SessionSpan) AddSuspension(appName, host string) {
	ss.span.AddEvent("session.suspended", trace.WithAttributes(
		attribute.String("violation.app", appName),
		attribute.String("violation.host", host),
	))
}

// AddProfileSwitch records a committed routing switch.
func (ss *SessionSpan) AddProfileSwitch(label string) {
	ss.span.AddEvent("session.profile_switch", trace.WithAttributes(
		attribute.String("profile.label", label),
	))
}

// SetCompletion records how the session ended.
func (ss *SessionSpan) SetCompletion(completed bool, elapsedSeconds int) {
	ss.span.SetAttributes(
		attribute.Bool("session.completed", completed),
		attribute.Int("session.elapsed_seconds", elapsedSeconds),
	)
}

// End ends the session span with success status.
func (ss *SessionSpan) End() {
	ss.span.SetStatus(codes.Ok, "session ended")
	ss.span.End()
}

// EndWithError ends the session span with error status.
func (ss *SessionSpan) EndWithError(err error) {
	ss.span.RecordError(err)
	ss.span.SetStatus(codes.Error, err.Error())
	ss.span.End()
}

// StreamSpan represents a streaming connection span.
type StreamSpan struct {
	span trace.Span
	ctx  context.Context
}

// StartStreamSpan starts a span for a backend streaming connection.
func (t *Tracer) StartStreamSpan(ctx context.Context, endpoint, model string) (context.Context, *StreamSpan) {
	ctx, span := t.tracer.Start(ctx, "stream.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("stream.endpoint", endpoint),
			attribute.String("stream.model", model),
		),
	)

	return ctx, &StreamSpan{span: span, ctx: ctx}
}

// SetChunkStats records receive-loop statistics.
func (ss *StreamSpan) SetChunkStats(chunks int, bytes int64) {
	ss.span.SetAttributes(
		attribute.Int("stream.chunks", chunks),
		attribute.Int64("stream.bytes", bytes),
	)
}

// End ends the stream span with success status.
func (ss *StreamSpan) End() {
	ss.span.SetStatus(codes.Ok, "stream closed")
	ss.span.End()
}

// EndWithError ends the stream span with error status.
func (ss *StreamSpan) EndWithError(err error) {
	ss.span.RecordError(err)
	ss.span.SetStatus(codes.Error, err.Error())
	ss.span.End()
}

// SteerSpan represents a steering classification span.
type SteerSpan struct {
	span trace.Span
	ctx  context.Context
}

// StartSteerSpan starts a span for one steering utterance.
func (t *Tracer) StartSteerSpan(ctx context.Context) (context.Context, *SteerSpan) {
	ctx, span := t.tracer.Start(ctx, "steer.classify",
		trace.WithSpanKind(trace.SpanKindClient),
	)

	return ctx, &SteerSpan{span: span, ctx: ctx}
}

// SetIntent records the classified intent kind.
func (ss *SteerSpan) SetIntent(kind string) {
	ss.span.SetAttributes(attribute.String("steer.intent", kind))
}

// End ends the steer span with success status.
func (ss *SteerSpan) End() {
	ss.span.SetStatus(codes.Ok, "steering applied")
	ss.span.End()
}

// EndWithError ends the steer span with error status.
func (ss *SteerSpan) EndWithError(err error) {
	ss.span.RecordError(err)
	ss.span.SetStatus(codes.Error, err.Error())
	ss.span.End()
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}
