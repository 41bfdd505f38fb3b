package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ocerrors "github.com/opencall/opencall/internal/errors"
)

const instrumentationName = "github.com/opencall/opencall"

// Span names
const (
	SpanRequest = "api.request"
	SpanRefresh = "auth.refresh"
)

func tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// StartRequestSpan starts the span wrapping one pipeline call, retries
// included.
func StartRequestSpan(ctx context.Context, tp trace.TracerProvider, method, endpoint string) (context.Context, trace.Span) {
	return tracer(tp).Start(ctx, SpanRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("api.endpoint", endpoint),
		),
	)
}

// StartRefreshSpan starts the span for a token refresh.
func StartRefreshSpan(ctx context.Context, tp trace.TracerProvider) (context.Context, trace.Span) {
	return tracer(tp).Start(ctx, SpanRefresh, trace.WithSpanKind(trace.SpanKindClient))
}

// StartCommandSpan creates a span for a CLI command execution.
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	return tracer(nil).Start(ctx, "command."+cmdName,
		trace.WithAttributes(attribute.String("command", cmdName)),
	)
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// API errors also contribute their kind and status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if apiErr, ok := ocerrors.AsAPIError(err); ok {
		span.SetAttributes(
			attribute.String("error.kind", apiErr.Kind.String()),
			attribute.Int("http.status_code", apiErr.Status),
		)
	}
}

// RecordAttempt notes one dispatch of a request.
func RecordAttempt(span trace.Span, attempt, status int) {
	span.AddEvent("attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.Int("http.status_code", status),
		attribute.String("http.status_text", http.StatusText(status)),
	))
}
