package order

import (
	"github.com/gorilla/mux"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/metrics"
	"github.com/Alturino/storefront/order/internal/controller"
	"github.com/Alturino/storefront/order/internal/service"
)

type (
	Store           = service.OrderStore
	Querier         = service.OrderQuerier
	ProductFinder   = service.ProductFinder
	PaymentProvider = service.PaymentProvider
)

type Dependencies struct {
	Store    Store
	Queries  Querier
	Catalog  ProductFinder
	Provider PaymentProvider
	Metrics  *metrics.Metrics
}

// Attach mounts the checkout and order query API on router, which must
// authenticate requests.
func Attach(router *mux.Router, deps Dependencies, cfg *config.Config) {
	checkout := service.NewCheckoutService(
		deps.Store,
		deps.Catalog,
		deps.Provider,
		service.CheckoutConfig{
			FrontendURL:     cfg.Application.FrontendURL,
			ProviderTimeout: cfg.Payment.Timeout,
		},
		deps.Metrics,
	)
	orders := service.NewOrderService(deps.Queries, deps.Catalog)
	controller.AttachOrderController(router, checkout, orders)
}
