// Package otel provides OpenTelemetry tracing integration for Ergors.
//
// This package enables distributed tracing of Ergors operations using
// OpenTelemetry. Traces provide visibility into connection lifecycle,
// session establishment, and message flow across the cluster channels.
//
// # Span Hierarchy
//
// The following spans are created during normal operation:
//
//	ergors.connect
//	└── ergors.hello
//
//	ergors.request
//	├── ergors.send
//	└── ergors.receive
//
//	ergors.maintenance
//	├── ergors.announce
//	└── ergors.ping
//
// # Attributes
//
// Common span attributes include:
//   - node.id: The remote node's hex-encoded ID
//   - peer.id: The remote libp2p peer ID
//   - channel: The channel name for message operations
//   - message.size: Size of sent/received messages
//   - connection.direction: "inbound" or "outbound"
//   - request.id: The correlation ID for request operations
//   - request.result: "success", "timeout", "canceled", or "error"
//
// # Example Usage
//
//	import (
//	    "github.com/permissionlessweb/ergors"
//	    ergorsotel "github.com/permissionlessweb/ergors/otel"
//	    "go.opentelemetry.io/otel"
//	)
//
//	func run(ctx context.Context, mgr *ergors.Manager, nodeID string, msg *wire.Message) {
//	    tracer := ergorsotel.NewTracer(otel.GetTracerProvider())
//
//	    ctx, span := tracer.StartRequest(ctx, nodeID, "req-1")
//	    _, err := mgr.Request(ctx, nodeID, msg, 0)
//	    tracer.EndSpan(span, err)
//	}
package otel

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the OpenTelemetry tracer.
	TracerName = "github.com/permissionlessweb/ergors"

	// Span names
	SpanConnect     = "ergors.connect"
	SpanHello       = "ergors.hello"
	SpanSend        = "ergors.send"
	SpanBroadcast   = "ergors.broadcast"
	SpanRequest     = "ergors.request"
	SpanReceive     = "ergors.receive"
	SpanAnnounce    = "ergors.announce"
	SpanPing        = "ergors.ping"
	SpanMaintenance = "ergors.maintenance"
	SpanDisconnect  = "ergors.disconnect"

	// Attribute keys
	AttrNodeID              = "node.id"
	AttrPeerID              = "peer.id"
	AttrChannel             = "channel"
	AttrMessageSize         = "message.size"
	AttrConnectionDirection = "connection.direction"
	AttrRequestID           = "request.id"
	AttrRequestResult       = "request.result"
	AttrErrorMessage        = "error.message"
)

// Tracer provides OpenTelemetry tracing for Ergors operations.
// It wraps an OpenTelemetry TracerProvider and creates spans for
// connection lifecycle, session establishment, and message operations.
//
// Tracer is safe for concurrent use.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the given TracerProvider.
// If provider is nil, a no-op tracer is used.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

// StartConnect starts a span for a connection attempt.
func (t *Tracer) StartConnect(ctx context.Context, peerID peer.ID, direction string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanConnect,
		trace.WithAttributes(
			attribute.String(AttrPeerID, peerID.String()),
			attribute.String(AttrConnectionDirection, direction),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartHello starts a span for the session hello exchange.
func (t *Tracer) StartHello(ctx context.Context, peerID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanHello,
		trace.WithAttributes(
			attribute.String(AttrPeerID, peerID.String()),
		),
	)
}

// StartSend starts a span for sending a message to a single node.
func (t *Tracer) StartSend(ctx context.Context, nodeID, channel string, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSend,
		trace.WithAttributes(
			attribute.String(AttrNodeID, nodeID),
			attribute.String(AttrChannel, channel),
			attribute.Int(AttrMessageSize, size),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartBroadcast starts a span for broadcasting a message to all online peers.
func (t *Tracer) StartBroadcast(ctx context.Context, channel string, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanBroadcast,
		trace.WithAttributes(
			attribute.String(AttrChannel, channel),
			attribute.Int(AttrMessageSize, size),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartRequest starts a span for a correlated request.
func (t *Tracer) StartRequest(ctx context.Context, nodeID, requestID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRequest,
		trace.WithAttributes(
			attribute.String(AttrNodeID, nodeID),
			attribute.String(AttrRequestID, requestID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartReceive starts a span for receiving a message.
func (t *Tracer) StartReceive(ctx context.Context, nodeID, channel string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanReceive,
		trace.WithAttributes(
			attribute.String(AttrNodeID, nodeID),
			attribute.String(AttrChannel, channel),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// StartAnnounce starts a span for a discovery announce.
func (t *Tracer) StartAnnounce(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAnnounce)
}

// StartPing starts a span for a health ping round.
func (t *Tracer) StartPing(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanPing)
}

// StartMaintenance starts a span for a maintenance pass.
func (t *Tracer) StartMaintenance(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanMaintenance)
}

// StartDisconnect starts a span for disconnecting a node.
func (t *Tracer) StartDisconnect(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDisconnect,
		trace.WithAttributes(
			attribute.String(AttrNodeID, nodeID),
		),
	)
}

// RecordRequestResult records the result of a correlated request on the given span.
func (t *Tracer) RecordRequestResult(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String(AttrRequestResult, result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// RecordError records an error on the given span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// EndSpan ends a span, optionally recording an error.
func (t *Tracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NopTracer is a no-op tracer that does nothing.
// It is used when tracing is disabled.
// NopTracer wraps the real Tracer with a noop provider.
type NopTracer struct {
	*Tracer
}

// NewNopTracer creates a new no-op tracer.
func NewNopTracer() *NopTracer {
	return &NopTracer{
		Tracer: NewTracer(nil),
	}
}
