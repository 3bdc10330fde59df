package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const ScopeName = "github.com/stateforward/go-hfsm"

var (
	MachineKey    = attribute.Key("hsm.machine")
	TransitionKey = attribute.Key("hsm.transition")
	FromKey       = attribute.Key("hsm.from")
	ToKey         = attribute.Key("hsm.to")
	LCAKey        = attribute.Key("hsm.lca")
	ActivitiesKey = attribute.Key("hsm.activities")
	PendingKey    = attribute.Key("hsm.pending")
)

// Tracer returns the package tracer from provider, or from the global provider
// when provider is nil.
func Tracer(provider trace.TracerProvider) trace.Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return provider.Tracer(ScopeName)
}

// Start opens a span and returns a function that ends it, recording err when
// it is non-nil.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func Annotate(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
