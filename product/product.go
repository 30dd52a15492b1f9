package product

import (
	"github.com/gorilla/mux"

	"github.com/Alturino/storefront/product/internal/controller"
	"github.com/Alturino/storefront/product/internal/service"
)

type (
	Querier = service.ProductQuerier
	Cache   = service.ProductCache
)

// Attach mounts the catalog API. Reads go on public, admin writes on
// protected, which must authenticate requests.
func Attach(public *mux.Router, protected *mux.Router, queries Querier, catalog Cache) {
	controller.AttachProductController(public, protected, service.NewProductService(queries, catalog))
}
