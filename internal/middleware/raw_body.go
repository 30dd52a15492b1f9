package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
)

type rawBodyKey struct{}

// RawBody reads at most limit bytes of the body before any parsing and keeps
// the exact bytes in the context. Larger bodies are rejected with 400.
func RawBody(limit int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := r.Context()
			logger := zerolog.Ctx(c).With().Str(log.KeyTag, "middleware RawBody").Logger()

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				maxBytesErr := &http.MaxBytesError{}
				if errors.As(err, &maxBytesErr) {
					err = fmt.Errorf("%w: body exceeds %d bytes", inErrors.ErrInvalidArgument, limit)
				} else {
					err = fmt.Errorf("%w: failed reading body with error=%w", inErrors.ErrInvalidArgument, err)
				}
				logger.Warn().Err(err).Msg(err.Error())
				inHttp.WriteErrorResponse(c, w, err)
				return
			}
			logger.Trace().Int(log.KeyWebhookPayloadSize, len(body)).Msg("read raw body")

			c = context.WithValue(c, rawBodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(c))
		})
	}
}

func RawBodyFromContext(c context.Context) []byte {
	body, _ := c.Value(rawBodyKey{}).([]byte)
	return body
}
