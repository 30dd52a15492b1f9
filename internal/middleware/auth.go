package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/auth"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

const bearerPrefix = "bearer "

// Auth resolves the principal from a bearer token, falling back to the access
// token cookie. Requests without a valid token are rejected with 401.
func Auth(tokens *auth.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, span := otel.Tracer.Start(r.Context(), "middleware Auth")
			defer span.End()

			logger := zerolog.Ctx(c).With().Str(log.KeyTag, "middleware Auth").Logger()

			logger = logger.With().Str(log.KeyProcess, "extracting token").Logger()
			token := tokenFromRequest(r)
			if token == "" {
				err := inErrors.ErrEmptyAuth
				otel.RecordError(err, span)
				logger.Info().Err(err).Msg(err.Error())
				inHttp.WriteErrorResponse(c, w, err)
				return
			}

			logger = logger.With().Str(log.KeyProcess, "verifying token").Logger()
			principal, err := tokens.Verify(c, token)
			if err != nil {
				err = fmt.Errorf("failed verifying token with error=%w", err)
				otel.RecordError(err, span)
				logger.Info().Err(err).Msg(err.Error())
				inHttp.WriteErrorResponse(c, w, err)
				return
			}

			logger = logger.With().
				Str(log.KeyUserID, principal.UserID.String()).
				Str(log.KeyRole, string(principal.Role)).
				Logger()
			logger.Trace().Msg("verified token")

			c = auth.AttachPrincipal(logger.WithContext(c), principal)
			next.ServeHTTP(w, r.WithContext(c))
		})
	}
}

// RequireRole rejects principals without role with 403. It must run after
// Auth.
func RequireRole(role auth.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := r.Context()
			principal, err := auth.PrincipalFromContext(c)
			if err != nil {
				inHttp.WriteErrorResponse(c, w, err)
				return
			}
			if principal.Role != role {
				err = fmt.Errorf("role=%s is not allowed with error=%w", principal.Role, inErrors.ErrAdminOnly)
				zerolog.Ctx(c).Info().Err(err).Str(log.KeyTag, "middleware RequireRole").Msg(err.Error())
				inHttp.WriteErrorResponse(c, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	authorization := r.Header.Get(inHttp.HeaderAuthorization)
	if len(authorization) > len(bearerPrefix) && strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authorization[len(bearerPrefix):])
	}
	if cookie, err := r.Cookie(constants.CookieAccessToken); err == nil {
		return cookie.Value
	}
	return ""
}
