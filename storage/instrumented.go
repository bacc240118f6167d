package storage

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/token-authority/instrumentation"
)

// Instrumented wraps store operations in spans and storage metrics.
// The zero value is a no-op, so stores work without instrumentation.
type Instrumented struct {
	inst        *instrumentation.Instrumentation
	tracer      trace.Tracer
	storageType string
}

// NewInstrumented returns span/metric helpers for a store backend such as "memory" or "sql".
func NewInstrumented(inst *instrumentation.Instrumentation, storageType string) Instrumented {
	if inst == nil {
		return Instrumented{storageType: storageType}
	}
	return Instrumented{
		inst:        inst,
		tracer:      inst.Tracer("storage"),
		storageType: storageType,
	}
}

// Enabled reports whether an Instrumentation is attached.
func (o Instrumented) Enabled() bool {
	return o.inst != nil
}

// Instrumentation returns the attached instrumentation, or nil.
func (o Instrumented) Instrumentation() *instrumentation.Instrumentation {
	return o.inst
}

// StartSpan opens a storage.<operation> span. Without instrumentation the
// returned span is a no-op; the caller's span is never handed back.
func (o Instrumented) StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, noop.Span{}
	}
	return o.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, o.storageType),
		))
}

// Finish records the operation result on span and in the storage metrics.
// Not-found errors are an expected outcome, not a span error.
func (o Instrumented) Finish(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if o.inst == nil {
		return
	}

	result := "success"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case IsNotFound(err):
		result = "not_found"
	default:
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(attribute.String(instrumentation.AttrStorageResult, result))
	o.inst.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(start).Milliseconds()))
}

// IsNotFound reports whether err is one of the store not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}
