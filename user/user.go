package user

import (
	"github.com/gorilla/mux"

	"github.com/Alturino/storefront/internal/auth"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/user/internal/controller"
	"github.com/Alturino/storefront/user/internal/service"
)

type Querier = service.UserQuerier

// Attach mounts the identity API. protected must authenticate requests.
func Attach(public *mux.Router, protected *mux.Router, queries Querier, tokens *auth.TokenManager, cfg config.Application) {
	controller.AttachUserController(
		public,
		protected,
		service.NewUserService(queries, tokens, cfg.AdminEmails),
		tokens.TTL(),
		cfg.Env == "production",
	)
}
