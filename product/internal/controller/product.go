package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/auth"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/middleware"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/product/internal/service"
	"github.com/Alturino/storefront/product/pkg/request"
)

const pathProductID = "/{productId:[0-9a-fA-F-]{36}}"

type ProductController struct {
	service *service.ProductService
}

// AttachProductController mounts the catalog routes. Reads are public;
// protected must authenticate the caller and is used for admin writes.
func AttachProductController(public *mux.Router, protected *mux.Router, service *service.ProductService) {
	controller := ProductController{service: service}

	router := public.PathPrefix("/products").Subrouter()
	router.HandleFunc("", controller.FindProducts).Methods(http.MethodGet)
	router.HandleFunc("/category/{category}", controller.FindProductsByCategory).Methods(http.MethodGet)

	adminRouter := protected.PathPrefix("/products").Subrouter()
	adminRouter.Use(middleware.RequireRole(auth.RoleAdmin))
	adminRouter.HandleFunc("", controller.InsertProduct).Methods(http.MethodPost)
	adminRouter.HandleFunc("/admin-products", controller.FindAdminProducts).Methods(http.MethodGet)
	adminRouter.HandleFunc(pathProductID, controller.UpdateProduct).Methods(http.MethodPut)
	adminRouter.HandleFunc(pathProductID, controller.DeleteProduct).Methods(http.MethodDelete)

	router.HandleFunc(pathProductID, controller.FindProductById).Methods(http.MethodGet)
}

func (p ProductController) InsertProduct(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController InsertProduct")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "ProductController InsertProduct").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyUserID, principal.UserID.String()).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Info().Msg("decoding request body")
	reqBody := request.CreateProduct{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "inserting product").Logger()
	logger.Info().Msg("inserting product")
	product, err := p.service.InsertProduct(logger.WithContext(c), principal.UserID, reqBody)
	if err != nil {
		err = fmt.Errorf("failed inserting product with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("inserted product")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusCreated,
		"message":    "successfully inserted product",
		"data": map[string]interface{}{
			"product": product,
		},
	})
}

func (p ProductController) FindProducts(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProducts")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindProducts").
		Str(log.KeyProcess, "finding products").
		Logger()

	logger.Info().Msg("finding products")
	products, err := p.service.FindProducts(logger.WithContext(c))
	if err != nil {
		err = fmt.Errorf("failed finding products with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found products")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "found products",
		"data": map[string]interface{}{
			"products": products,
		},
	})
}

func (p ProductController) FindProductsByCategory(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProductsByCategory")
	defer span.End()

	category := mux.Vars(r)["category"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindProductsByCategory").
		Str(log.KeyCategory, category).
		Str(log.KeyProcess, "finding products by category").
		Logger()

	logger.Info().Msg("finding products by category")
	products, err := p.service.FindProductsByCategory(logger.WithContext(c), category)
	if err != nil {
		err = fmt.Errorf("failed finding products by category with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found products by category")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("found products in category=%s", category),
		"data": map[string]interface{}{
			"products": products,
		},
	})
}

func (p ProductController) FindAdminProducts(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindAdminProducts")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "ProductController FindAdminProducts").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyUserID, principal.UserID.String()).
		Str(log.KeyProcess, "finding admin products").
		Logger()

	logger.Info().Msg("finding admin products")
	products, err := p.service.FindProductsByOwner(logger.WithContext(c), principal.UserID)
	if err != nil {
		err = fmt.Errorf("failed finding admin products with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found admin products")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "found admin products",
		"data": map[string]interface{}{
			"products": products,
		},
	})
}

func (p ProductController) FindProductById(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProductById")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "ProductController FindProductById").Logger()

	logger = logger.With().Str(log.KeyProcess, "validating productId").Logger()
	productID, err := inHttp.PathUUID(r, "productId")
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyProductID, productID.String()).
		Str(log.KeyProcess, "finding product").
		Logger()

	logger.Info().Msg("finding product")
	product, err := p.service.FindProductById(logger.WithContext(c), productID)
	if err != nil {
		err = fmt.Errorf("failed finding product with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found product")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("found productId=%s", productID.String()),
		"data": map[string]interface{}{
			"product": product,
		},
	})
}

func (p ProductController) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController UpdateProduct")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "ProductController UpdateProduct").Logger()

	productID, err := inHttp.PathUUID(r, "productId")
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyProductID, productID.String()).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	reqBody := request.UpdateProduct{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "updating product").Logger()
	logger.Info().Msg("updating product")
	product, err := p.service.UpdateProduct(logger.WithContext(c), productID, reqBody)
	if err != nil {
		err = fmt.Errorf("failed updating product with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("updated product")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("successfully updated productId=%s", productID.String()),
		"data": map[string]interface{}{
			"product": product,
		},
	})
}

func (p ProductController) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController DeleteProduct")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "ProductController DeleteProduct").Logger()

	productID, err := inHttp.PathUUID(r, "productId")
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyProductID, productID.String()).
		Str(log.KeyProcess, "deleting product").
		Logger()

	logger.Info().Msg("deleting product")
	if err := p.service.DeleteProduct(logger.WithContext(c), productID); err != nil {
		err = fmt.Errorf("failed deleting product with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("deleted product")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("successfully deleted productId=%s", productID.String()),
	})
}
