package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

const maskedValue = "****"

var maskedFields = []string{"password", "newPassword"}

// Logging attaches a request scoped logger and request id to the context and
// echoes the id back on the response. Bodies are never read here.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(inHttp.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c, span := otel.Tracer.Start(
			r.Context(),
			"middleware Logging",
			trace.WithAttributes(
				attribute.String(log.KeyRequestID, requestID),
				attribute.String(log.KeyRequestHost, r.Host),
				attribute.String(log.KeyRequestIp, r.RemoteAddr),
				attribute.String(log.KeyRequestMethod, r.Method),
				attribute.String(log.KeyRequestURI, r.RequestURI),
			),
		)
		defer span.End()

		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyRequestID, requestID).
			Dict(log.KeyRequest, zerolog.Dict().
				Str(log.KeyRequestHost, r.Host).
				Str(log.KeyRequestIp, r.RemoteAddr).
				Str(log.KeyRequestMethod, r.Method).
				Str(log.KeyRequestURI, r.RequestURI).
				Str(log.KeyRequestURL, r.URL.String())).
			Logger()

		logger.Trace().Msg("attaching request value to context")
		c = log.AttachRequestIDToContext(c, requestID)
		c = logger.WithContext(c)
		logger.Trace().Msg("attached request value to context")

		w.Header().Set(inHttp.HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(c))
	})
}

const defaultMaxBodyBytes = 1 << 20

// LogRequestBody logs the JSON body with credentials masked and restores it
// for the next handler. Bodies over limit bytes are rejected with 400. It must
// not wrap routes that verify raw bytes.
func LogRequestBody(limit int64) mux.MiddlewareFunc {
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			c := r.Context()
			logger := zerolog.Ctx(c).With().Str(log.KeyTag, "middleware LogRequestBody").Logger()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				maxBytesErr := &http.MaxBytesError{}
				if errors.As(err, &maxBytesErr) {
					err = fmt.Errorf("%w: body exceeds %d bytes", inErrors.ErrInvalidArgument, limit)
				} else {
					err = fmt.Errorf("%w: failed reading body with error=%w", inErrors.ErrInvalidArgument, err)
				}
				logger.Info().Err(err).Msg(err.Error())
				inHttp.WriteErrorResponse(c, w, err)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestBody := map[string]interface{}{}
			if err := json.Unmarshal(body, &requestBody); err == nil {
				for _, field := range maskedFields {
					if _, ok := requestBody[field]; ok {
						requestBody[field] = maskedValue
					}
				}
				logger.Debug().Any(log.KeyRequestBody, requestBody).Msg("request body")
			}

			next.ServeHTTP(w, r)
		})
	}
}
