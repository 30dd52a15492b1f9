package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/constants"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/middleware"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/payment/internal/service"
)

type WebhookController struct {
	service *service.ReconcileService
}

// AttachWebhookController mounts the provider webhook. The route reads the
// raw body itself and must not sit behind any body parsing middleware.
func AttachWebhookController(mux *mux.Router, service *service.ReconcileService, maxBodyBytes int64) {
	controller := WebhookController{service: service}

	router := mux.PathPrefix("/v1/webhook").Subrouter()
	router.Use(middleware.RawBody(maxBodyBytes))
	router.HandleFunc("/stripe", controller.HandleStripe).Methods(http.MethodPost)
}

func (s WebhookController) HandleStripe(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WebhookController HandleStripe")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WebhookController HandleStripe").
		Str(log.KeyProcess, "handling provider event").
		Logger()

	payload := middleware.RawBodyFromContext(c)
	logger.Info().Int(log.KeyWebhookPayloadSize, len(payload)).Msg("handling provider event")
	outcome, err := s.service.HandleEvent(logger.WithContext(c), payload, r.Header.Get(constants.HeaderStripeSig))
	if err != nil {
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     inHttp.StatusFailed,
			"statusCode": http.StatusBadRequest,
			"message":    "webhook signature verification failed",
		})
		return
	}
	logger.Info().Str("outcome", string(outcome)).Msg("handled provider event")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"received": true,
	})
}
