package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CARDINALITY:
//
// Span and metric attributes must stay bounded. Never attach file names,
// session tokens or part numbers as attributes; they belong in logs, which
// carry the trace_id for correlation.
//
// Bounded attributes used here:
// - direction: "upload", "download"
// - protocol: "multipart", "chunk", "regular"
// - operation: "initiate", "upload_part", "complete", "download", ...
// - status: "success", "error"

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := statusOf(err)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments journal database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	t.RecordDBOperation(ctx, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentProtocolOperation instruments a call to the remote file API.
func (t *Telemetry) InstrumentProtocolOperation(ctx context.Context, protocol, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	err := t.InstrumentOperation(ctx, "protocol_"+operation, "file_api", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("protocol.type", protocol),
			attribute.String("protocol.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordProtocolOperation(ctx, protocol, operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentTransfer instruments a whole upload or download session.
func (t *Telemetry) InstrumentTransfer(ctx context.Context, direction string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.AddActiveTransfers(ctx, direction, 1)
	defer t.AddActiveTransfers(ctx, direction, -1)

	err := t.InstrumentOperation(ctx, "transfer_"+direction, "transfer", fn)

	t.RecordTransfer(ctx, direction, statusOf(err), time.Since(start))

	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
