package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/todochaos/pkg/core"
)

const messagingSystem = "todochaos.eventbus"

func messagingAttrs(address, operation string) trace.SpanStartOption {
	return trace.WithAttributes(
		semconv.MessagingSystemKey.String(messagingSystem),
		semconv.MessagingDestinationNameKey.String(address),
		attribute.String("messaging.operation", operation),
	)
}

// PublishWithSpan publishes a message with span propagation
func PublishWithSpan(ctx context.Context, eventBus core.EventBus, address string, body interface{}) error {
	if !IsInitialized() {
		return eventBus.PublishContext(ctx, address, body)
	}

	_, span := StartSpan(ctx, "eventbus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		messagingAttrs(address, "publish"),
	)
	defer span.End()

	if requestID := core.GetRequestID(ctx); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}

	err := eventBus.PublishContext(ctx, address, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "OK")
	}

	return err
}

// TracedPublisher publishes through PublishWithSpan under a fixed parent
// context
type TracedPublisher struct {
	Bus core.EventBus
	Ctx context.Context
}

// NewTracedPublisher wraps bus
func NewTracedPublisher(ctx context.Context, bus core.EventBus) *TracedPublisher {
	return &TracedPublisher{Bus: bus, Ctx: ctx}
}

// Publish implements the publisher contract of the auth package
func (p *TracedPublisher) Publish(address string, body interface{}) error {
	ctx := p.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return PublishWithSpan(ctx, p.Bus, address, body)
}

// WrapConsumerHandler wraps a consumer handler with span creation. The
// check happens per message so handlers registered before Initialize are
// traced too.
func WrapConsumerHandler(address string, handler core.MessageHandler) core.MessageHandler {
	return func(ctx core.FluxorContext, msg core.Message) error {
		if !IsInitialized() {
			return handler(ctx, msg)
		}

		_, span := StartSpan(ctx.Context(), "eventbus.consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			messagingAttrs(address, "consume"),
		)
		defer span.End()

		if requestID := core.GetRequestID(ctx.Context()); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		err := handler(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "OK")
		}

		return err
	}
}
