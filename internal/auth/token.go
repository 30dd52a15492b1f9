package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID uuid.UUID `json:"userId"`
	Role   Role      `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

func (m *TokenManager) Issue(c context.Context, principal Principal) (string, error) {
	c, span := otel.Tracer.Start(c, "TokenManager Issue")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "TokenManager Issue").
		Str(log.KeyUserID, principal.UserID.String()).
		Logger()

	issuedAt := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{constants.AudienceUser},
			Issuer:    constants.IssuerUser,
			Subject:   principal.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	})

	logger = logger.With().Str(log.KeyProcess, "signing token").Logger()
	logger.Trace().Msg("signing token")
	signed, err := token.SignedString(m.secret)
	if err != nil {
		err = fmt.Errorf("failed signing token with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", err
	}
	logger.Trace().Msg("signed token")

	return signed, nil
}

// Verify parses token and returns its principal. Every failure wraps
// ErrUnauthenticated.
func (m *TokenManager) Verify(c context.Context, token string) (Principal, error) {
	c, span := otel.Tracer.Start(c, "TokenManager Verify")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "TokenManager Verify").Logger()

	if token == "" {
		otel.RecordError(inErrors.ErrEmptyAuth, span)
		logger.Info().Msg(inErrors.ErrEmptyAuth.Error())
		return Principal{}, inErrors.ErrEmptyAuth
	}

	logger = logger.With().Str(log.KeyProcess, "parsing claims").Logger()
	logger.Trace().Msg("parsing claims")
	claims := Claims{}
	jwtToken, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithAudience(constants.AudienceUser),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(constants.IssuerUser),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !jwtToken.Valid {
		err = fmt.Errorf("failed parsing claims with error=%w: %w", inErrors.ErrTokenInvalid, err)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return Principal{}, err
	}
	logger.Trace().Msg("parsed claims")

	logger = logger.With().Str(log.KeyProcess, "parsing subject").Logger()
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		err = fmt.Errorf("failed parsing subject=%s with error=%w: %w", claims.Subject, inErrors.ErrTokenInvalid, err)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return Principal{}, err
	}

	role := claims.Role
	if role != RoleAdmin {
		role = RoleCustomer
	}
	principal := Principal{UserID: userID, Role: role}
	logger.Trace().Str(log.KeyUserID, userID.String()).Str(log.KeyRole, string(role)).Msg("parsed subject")

	return principal, nil
}
