package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type requestId struct{}

func RequestIDFromContext(c context.Context) string {
	if c == nil {
		return ""
	}
	id, _ := c.Value(requestId{}).(string)
	return id
}

func AttachRequestIDToContext(c context.Context, id string) context.Context {
	return context.WithValue(c, requestId{}, id)
}

// TraceHook stamps request and trace ids on events logged with a context.
func TraceHook() zerolog.HookFunc {
	return func(e *zerolog.Event, level zerolog.Level, message string) {
		c := e.GetCtx()
		if reqId := RequestIDFromContext(c); reqId != "" {
			e.Str(KeyRequestID, reqId)
		}
		spanCtx := trace.SpanContextFromContext(c)
		if spanCtx.IsValid() {
			e.Str(KeyTraceID, spanCtx.TraceID().String()).
				Str(KeySpanID, spanCtx.SpanID().String())
		}
	}
}
