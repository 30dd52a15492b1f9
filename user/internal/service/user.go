package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Alturino/storefront/internal/auth"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/internal/validate"
	"github.com/Alturino/storefront/user/pkg/request"
	"github.com/Alturino/storefront/user/pkg/response"
)

const codeUniqueViolation = "23505"

type UserQuerier interface {
	InsertUser(ctx context.Context, arg repository.InsertUserParams) (repository.User, error)
	FindUserByEmail(ctx context.Context, email string) (repository.User, error)
	FindUserById(ctx context.Context, id uuid.UUID) (repository.User, error)
}

type TokenIssuer interface {
	Issue(c context.Context, principal auth.Principal) (string, error)
}

type UserService struct {
	queries     UserQuerier
	tokens      TokenIssuer
	adminEmails []string
	cost        int
}

// NewUserService registers accounts whose email is in adminEmails with the
// admin role. Everyone else is a customer.
func NewUserService(queries UserQuerier, tokens TokenIssuer, adminEmails []string) *UserService {
	normalized := make([]string, 0, len(adminEmails))
	for _, email := range adminEmails {
		normalized = append(normalized, normalizeEmail(email))
	}
	return &UserService{
		queries:     queries,
		tokens:      tokens,
		adminEmails: normalized,
		cost:        bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *UserService) Register(c context.Context, param request.Register) (response.User, error) {
	c, span := otel.Tracer.Start(c, "UserService Register")
	defer span.End()

	email := normalizeEmail(param.Email)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "UserService Register").
		Str(log.KeyEmail, email).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating request").Logger()
	if err := validate.Struct(c, param); err != nil {
		err = fmt.Errorf("failed validating request with error=%w", err)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.User{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "hashing password").Logger()
	logger.Info().Msg("hashing password")
	hashed, err := bcrypt.GenerateFromPassword([]byte(param.Password), u.cost)
	if err != nil {
		err = fmt.Errorf("failed hashing password with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.User{}, err
	}
	logger.Info().Msg("hashed password")

	role := repository.UserRoleCustomer
	if slices.Contains(u.adminEmails, email) {
		role = repository.UserRoleAdmin
	}

	logger = logger.With().
		Str(log.KeyRole, string(role)).
		Str(log.KeyProcess, "inserting user").
		Logger()
	logger.Info().Msg("inserting user")
	user, err := u.queries.InsertUser(c, repository.InsertUserParams{
		ID:       uuid.New(),
		Username: strings.TrimSpace(param.Username),
		Email:    email,
		Password: string(hashed),
		Role:     role,
	})
	pgErr := &pgconn.PgError{}
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		err = fmt.Errorf("failed inserting user with error=%w", inErrors.ErrEmailTaken)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.User{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed inserting user with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.User{}, err
	}
	logger.Info().Str(log.KeyUserID, user.ID.String()).Msg("inserted user")

	return response.FromUser(user), nil
}

// Login returns a signed access token. Unknown emails and wrong passwords
// are both reported as ErrBadCredentials.
func (u *UserService) Login(c context.Context, param request.Login) (string, response.User, error) {
	c, span := otel.Tracer.Start(c, "UserService Login")
	defer span.End()

	email := normalizeEmail(param.Email)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "UserService Login").
		Str(log.KeyEmail, email).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating request").Logger()
	if err := validate.Struct(c, param); err != nil {
		err = fmt.Errorf("failed validating request with error=%w", err)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return "", response.User{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "finding user").Logger()
	logger.Info().Msg("finding user by email")
	user, err := u.queries.FindUserByEmail(c, email)
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("failed finding user by email with error=%w", inErrors.ErrBadCredentials)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return "", response.User{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed finding user by email with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", response.User{}, err
	}
	logger = logger.With().Str(log.KeyUserID, user.ID.String()).Logger()
	logger.Info().Msg("found user by email")

	logger = logger.With().Str(log.KeyProcess, "verifying password").Logger()
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(param.Password)); err != nil {
		err = fmt.Errorf("failed verifying password with error=%w", inErrors.ErrBadCredentials)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return "", response.User{}, err
	}
	logger.Info().Msg("verified password")

	logger = logger.With().Str(log.KeyProcess, "issuing token").Logger()
	logger.Info().Msg("issuing token")
	token, err := u.tokens.Issue(c, auth.Principal{UserID: user.ID, Role: auth.Role(user.Role)})
	if err != nil {
		err = fmt.Errorf("failed issuing token with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", response.User{}, err
	}
	logger.Info().Msg("issued token")

	return token, response.FromUser(user), nil
}

func (u *UserService) FindUserById(c context.Context, id uuid.UUID) (response.User, error) {
	c, span := otel.Tracer.Start(c, "UserService FindUserById")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "UserService FindUserById").
		Str(log.KeyUserID, id.String()).
		Str(log.KeyProcess, "finding user").
		Logger()

	logger.Info().Msg("finding user")
	user, err := u.queries.FindUserById(c, id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("failed finding user with error=%w", inErrors.ErrUserNotFound)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.User{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed finding user with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.User{}, err
	}
	logger.Info().Msg("found user")

	return response.FromUser(user), nil
}
