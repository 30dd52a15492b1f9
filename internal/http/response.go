package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

func WriteJsonResponse(
	c context.Context,
	w http.ResponseWriter,
	header map[string]string,
	body map[string]interface{},
) {
	c, span := otel.Tracer.Start(c, "WriteJsonResponse")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "WriteJsonResponse").Logger()

	w.Header().Set(HeaderContentType, HeaderValueJson)
	for k, v := range header {
		w.Header().Add(k, v)
	}

	statusCode := http.StatusOK
	if v, ok := body["statusCode"].(int); ok {
		statusCode = v
	}
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
}

// StatusCode maps the kind of err onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, inErrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, inErrors.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, inErrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, inErrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inErrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, inErrors.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes the failed envelope for err. Errors of unknown
// kind are reported as a generic internal error without their message.
func WriteErrorResponse(c context.Context, w http.ResponseWriter, err error) {
	statusCode := StatusCode(err)
	body := map[string]interface{}{
		"status":     StatusFailed,
		"statusCode": statusCode,
		"message":    err.Error(),
	}
	if kind := inErrors.Kind(err); kind != nil {
		body["kind"] = kind.Error()
	} else {
		body["message"] = http.StatusText(statusCode)
	}
	WriteJsonResponse(c, w, map[string]string{}, body)
}

// Fail records err on span, logs it and writes the failed envelope. Client
// errors are logged at info, everything else at error.
func Fail(c context.Context, w http.ResponseWriter, span trace.Span, logger zerolog.Logger, err error) {
	otel.RecordError(err, span)
	if StatusCode(err) >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(err.Error())
	} else {
		logger.Info().Err(err).Msg(err.Error())
	}
	WriteErrorResponse(c, w, err)
}
