// Package observability provides distributed tracing for the docchat CLI.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for chat transport operations.
	TracerName = "docchat"
)

// Span attribute keys
const (
	AttrDocumentID  = "document_id"
	AttrTokens      = "tokens"
	AttrSources     = "sources"
	AttrTimestamps  = "timestamps"
	AttrPendingDocs = "pending_docs"
	AttrErrorType   = "error_type"
)

// Span names
const (
	SpanConnect   = "docchat.stream.connect"
	SpanChatTurn  = "docchat.stream.turn"
	SpanPollCycle = "docchat.poller.cycle"
)

// Tracer provides tracing for streaming chat and polling operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new docchat tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartConnectSpan starts a span for a transport dial.
func (t *Tracer) StartConnectSpan(ctx context.Context, documentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanConnect,
		trace.WithAttributes(attribute.String(AttrDocumentID, documentID)),
	)
}

// StartTurnSpan starts a span covering one request/response streaming turn,
// from the outbound request frame to the terminal or error frame.
func (t *Tracer) StartTurnSpan(ctx context.Context, documentID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanChatTurn,
		trace.WithAttributes(attribute.String(AttrDocumentID, documentID)),
	)
}

// StartPollSpan starts a span for one document-status poll cycle.
func (t *Tracer) StartPollSpan(ctx context.Context, pendingDocs int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPollCycle,
		trace.WithAttributes(attribute.Int(AttrPendingDocs, pendingDocs)),
	)
}

// EndSpan marks the span ok and ends it.
func EndSpan(span trace.Span) {
	span.SetStatus(codes.Ok, "")
	span.End()
}

// EndTurnSpan records the turn outcome and ends the span.
func EndTurnSpan(span trace.Span, tokens, sources, timestamps int) {
	span.SetAttributes(
		attribute.Int(AttrTokens, tokens),
		attribute.Int(AttrSources, sources),
		attribute.Int(AttrTimestamps, timestamps),
	)
	span.SetStatus(codes.Ok, "")
	span.End()
}

// FailSpan records an error on the span and ends it.
func FailSpan(span trace.Span, errType string, err error) {
	span.SetAttributes(attribute.String(AttrErrorType, errType))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Error, errType)
	}
	span.End()
}
