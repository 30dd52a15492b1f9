package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/auth"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/order/internal/service"
	"github.com/Alturino/storefront/order/pkg/request"
)

type OrderController struct {
	checkout *service.CheckoutService
	orders   *service.OrderService
}

// AttachOrderController mounts the order routes. The router must already
// authenticate the caller.
func AttachOrderController(
	mux *mux.Router,
	checkout *service.CheckoutService,
	orders *service.OrderService,
) {
	controller := OrderController{checkout: checkout, orders: orders}

	router := mux.PathPrefix("/order").Subrouter()
	router.HandleFunc("/checkout", controller.CreateCheckout).Methods(http.MethodPost)
	router.HandleFunc("/my-orders", controller.ListMyOrders).Methods(http.MethodGet)
	router.HandleFunc("/by-session/{sessionId}", controller.GetOrderBySession).Methods(http.MethodGet)
}

func (s OrderController) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController CreateCheckout")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "OrderController CreateCheckout").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().Str(log.KeyUserID, principal.UserID.String()).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Info().Msg("decoding request body")
	reqBody := request.CreateCheckout{}
	if err := inHttp.DecodeJsonBody(r, &reqBody); err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "creating checkout").Logger()
	logger.Info().Msg("creating checkout")
	session, err := s.checkout.CreateCheckout(logger.WithContext(c), principal.UserID, reqBody)
	if err != nil {
		err = fmt.Errorf("failed creating checkout with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().
		Str(log.KeyOrderID, session.OrderID.String()).
		Str(log.KeySessionID, session.SessionID).
		Msg("created checkout")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "successfully created checkout session",
		"data": map[string]interface{}{
			"url":       session.URL,
			"sessionId": session.SessionID,
			"orderId":   session.OrderID,
		},
	})
}

func (s OrderController) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController ListMyOrders")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "OrderController ListMyOrders").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyUserID, principal.UserID.String()).
		Str(log.KeyProcess, "finding orders").
		Logger()

	logger.Info().Msg("finding orders")
	orders, err := s.orders.ListMyOrders(logger.WithContext(c), principal.UserID)
	if err != nil {
		err = fmt.Errorf("failed finding orders with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found orders")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "found orders",
		"data": map[string]interface{}{
			"orders": orders,
		},
	})
}

func (s OrderController) GetOrderBySession(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController GetOrderBySession")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "OrderController GetOrderBySession").Logger()

	principal, err := auth.PrincipalFromContext(c)
	if err != nil {
		inHttp.Fail(c, w, span, logger, err)
		return
	}

	sessionID := mux.Vars(r)["sessionId"]
	if sessionID == "" {
		err = fmt.Errorf("%w: sessionId is required", inErrors.ErrInvalidArgument)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger = logger.With().
		Str(log.KeyUserID, principal.UserID.String()).
		Str(log.KeySessionID, sessionID).
		Str(log.KeyProcess, "finding order").
		Logger()

	logger.Info().Msg("finding order")
	order, err := s.orders.GetOrderBySession(logger.WithContext(c), principal.UserID, sessionID)
	if err != nil {
		err = fmt.Errorf("failed finding order with error=%w", err)
		inHttp.Fail(c, w, span, logger, err)
		return
	}
	logger.Info().Msg("found order")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     inHttp.StatusSuccess,
		"statusCode": http.StatusOK,
		"message":    "found order",
		"data": map[string]interface{}{
			"order": order,
		},
	})
}
