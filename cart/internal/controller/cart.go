package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/service"
	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/internal/auth"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/validate"
)

type CartController struct {
	service *service.CartService
}

// AttachCartController mounts the cart routes. The router must already
// authenticate the caller.
func AttachCartController(mux *mux.Router, service *service.CartService) {
	controller := CartController{service: service}

	router := mux.PathPrefix("/cart").Subrouter()
	router.HandleFunc("", controller.AddItem).Methods(http.MethodPost)
	router.HandleFunc("", controller.GetCart).Methods(http.MethodGet)
	router.HandleFunc("/{productId}", controller.UpdateQuantity).Methods(http.MethodPut)
	router.HandleFunc("/{productId}", controller.RemoveItem).Methods(http.MethodDelete)
}

func (t CartController) AddItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "CartController AddItem").Logger()

	logger = logger.With().Str(log.KeyProcess, "getting principal").Logger()
	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyUserID, principal.UserID.String()).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Info().Msg("decoding request body")
	reqBody := request.AddItem{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	if err := validate.Struct(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "adding item").Logger()
	logger.Info().Msg("adding item")
	cart, err := t.service.AddItem(logger.WithContext(c), principal.UserID, reqBody)
	if err != nil {
		err = fmt.Errorf("failed adding item with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("added item")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "successfully added item to cart",
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}

func (t CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController GetCart")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "CartController GetCart").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyUserID, principal.UserID.String()).
		Str(log.KeyProcess, "getting cart").
		Logger()

	logger.Info().Msg("getting cart")
	cart, err := t.service.GetCart(logger.WithContext(c), principal.UserID)
	if err != nil {
		err = fmt.Errorf("failed getting cart with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	if cart == nil {
		logger.Info().Msg("cart is empty")
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     inHttp.StatusSuccess,
			"statusCode": http.StatusOK,
			"message":    "cart is empty",
			"data": map[string]interface{}{
				"cart":  nil,
				"empty": true,
			},
		})
		return
	}
	logger.Info().Msg("got cart")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "successfully got cart",
		"data": map[string]interface{}{
			"cart":  cart,
			"empty": false,
		},
	})
}

func (t CartController) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController UpdateQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "CartController UpdateQuantity").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyUserID, principal.UserID.String()).Logger()

	logger = logger.With().Str(log.KeyProcess, "validating productId").Logger()
	productID, err := inHttp.PathUUID(r, "productId")
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyProductID, productID.String()).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	reqBody := request.UpdateQuantity{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	if err := validate.Struct(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "updating quantity").Logger()
	logger.Info().Msg("updating quantity")
	cart, err := t.service.UpdateQuantity(logger.WithContext(c), principal.UserID, productID, reqBody)
	if err != nil {
		err = fmt.Errorf("failed updating quantity with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("updated quantity")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("successfully updated productId=%s", productID.String()),
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}

func (t CartController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "CartController RemoveItem").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyUserID, principal.UserID.String()).Logger()

	productID, err := inHttp.PathUUID(r, "productId")
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyProductID, productID.String()).
		Str(log.KeyProcess, "removing item").
		Logger()

	logger.Info().Msg("removing item")
	cart, err := t.service.RemoveItem(logger.WithContext(c), principal.UserID, productID)
	if err != nil {
		err = fmt.Errorf("failed removing item with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("removed item")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    fmt.Sprintf("successfully removed productId=%s", productID.String()),
		"data": map[string]interface{}{
			"cart": cart,
		},
	})
}
