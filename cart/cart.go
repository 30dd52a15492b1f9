package cart

import (
	"github.com/gorilla/mux"

	"github.com/Alturino/storefront/cart/internal/controller"
	"github.com/Alturino/storefront/cart/internal/service"
)

type (
	Querier       = service.CartQuerier
	ProductFinder = service.ProductFinder
)

// Attach mounts the cart API on router, which must authenticate requests.
func Attach(router *mux.Router, queries Querier, catalog ProductFinder) {
	controller.AttachCartController(router, service.NewCartService(queries, catalog))
}
