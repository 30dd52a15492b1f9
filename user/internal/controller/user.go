package controller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/auth"
	"github.com/Alturino/storefront/internal/constants"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/user/internal/service"
	"github.com/Alturino/storefront/user/pkg/request"
)

type UserController struct {
	service  *service.UserService
	tokenTTL time.Duration
	secure   bool
}

// AttachUserController mounts /user. Register and login are public, logout
// and me need an authenticated principal.
func AttachUserController(
	public *mux.Router,
	protected *mux.Router,
	service *service.UserService,
	tokenTTL time.Duration,
	secureCookie bool,
) {
	controller := UserController{service: service, tokenTTL: tokenTTL, secure: secureCookie}

	router := public.PathPrefix("/user").Subrouter()
	router.HandleFunc("/register", controller.Register).Methods(http.MethodPost)
	router.HandleFunc("/login", controller.Login).Methods(http.MethodPost)

	authRouter := protected.PathPrefix("/user").Subrouter()
	authRouter.HandleFunc("/logout", controller.Logout).Methods(http.MethodPost)
	authRouter.HandleFunc("/me", controller.Me).Methods(http.MethodGet)
}

func (u UserController) accessTokenCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     constants.CookieAccessToken,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   u.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (u UserController) Register(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Register")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "UserController Register").Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Info().Msg("decoding request body")
	reqBody := request.Register{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Object(log.KeyRequestBody, reqBody).Logger()
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "registering user").Logger()
	logger.Info().Msg("registering user")
	user, err := u.service.Register(logger.WithContext(c), reqBody)
	if err != nil {
		err = fmt.Errorf("failed registering user with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Str(log.KeyUserID, user.ID.String()).Msg("registered user")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusCreated,
		"message": fmt.Sprintf(
			"user with username=%s and email=%s is registered",
			user.Username,
			user.Email,
		),
		"data": map[string]interface{}{
			"user": user,
		},
	})
}

func (u UserController) Login(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Login")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "UserController Login").Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Info().Msg("decoding request body")
	reqBody := request.Login{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Object(log.KeyRequestBody, reqBody).Logger()
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "login").Logger()
	logger.Info().Msg("login")
	token, user, err := u.service.Login(logger.WithContext(c), reqBody)
	if err != nil {
		err = fmt.Errorf("failed login with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Str(log.KeyUserID, user.ID.String()).Msg("login success")

	http.SetCookie(w, u.accessTokenCookie(token, int(u.tokenTTL.Seconds())))
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "login success",
		"data": map[string]interface{}{
			"token": token,
			"user":  user,
		},
	})
}

func (u UserController) Logout(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Logout")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "UserController Logout").Logger()
	logger.Info().Str(log.KeyProcess, "clearing access token").Msg("clearing access token")

	http.SetCookie(w, u.accessTokenCookie("", -1))
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "logout success",
	})
}

func (u UserController) Me(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "UserController Me")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "UserController Me").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyUserID, principal.UserID.String()).
		Str(log.KeyProcess, "finding user").
		Logger()

	logger.Info().Msg("finding user")
	user, err := u.service.FindUserById(logger.WithContext(c), principal.UserID)
	if err != nil {
		err = fmt.Errorf("failed finding user with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found user")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "found user",
		"data": map[string]interface{}{
			"user": user,
		},
	})
}
