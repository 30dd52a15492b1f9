package payment

import (
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/metrics"
	"github.com/Alturino/storefront/payment/internal/controller"
	"github.com/Alturino/storefront/payment/internal/service"
)

type (
	EventVerifier = service.EventVerifier
	OrderSettler  = service.OrderSettler
)

// Attach mounts the provider webhook on router. router must not parse or log
// request bodies.
func Attach(
	router *mux.Router,
	verifier EventVerifier,
	store OrderSettler,
	cache *redis.Client,
	cfg *config.Config,
	m *metrics.Metrics,
) {
	svc := service.NewReconcileService(verifier, store, cache, cfg.Kafka.Topic, m)
	controller.AttachWebhookController(router, svc, cfg.Payment.MaxWebhookBytes)
}
