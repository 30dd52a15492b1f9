package otel

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordError marks the span as failed. A nil error is ignored.
func RecordError(err error, span trace.Span) {
	if err == nil || span == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err, trace.WithStackTrace(true))
}
