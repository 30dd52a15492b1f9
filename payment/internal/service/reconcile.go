package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/metrics"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/payment"
	"github.com/Alturino/storefront/internal/repository"
)

const (
	keyProcessedEvent = "webhook:events:%s"
	processedEventTTL = 72 * time.Hour
)

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeNoop         Outcome = "noop"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeInconsistent Outcome = "inconsistent"
	OutcomeFailed       Outcome = "failed"
	OutcomeRejected     Outcome = "rejected"
)

type EventVerifier interface {
	VerifyEvent(c context.Context, payload []byte, signatureHeader string) (payment.Event, error)
}

type OrderSettler interface {
	SettleOrderTx(c context.Context, arg repository.SettleOrderTxParams) (repository.SettleOrderTxResult, error)
}

type ReconcileService struct {
	verifier EventVerifier
	store    OrderSettler
	cache    *redis.Client
	topic    string
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewReconcileService builds the provider event handler. cache may be nil, in
// which case duplicates are only caught by the conditional order update.
func NewReconcileService(
	verifier EventVerifier,
	store OrderSettler,
	cache *redis.Client,
	topic string,
	m *metrics.Metrics,
) *ReconcileService {
	return &ReconcileService{
		verifier: verifier,
		store:    store,
		cache:    cache,
		topic:    topic,
		metrics:  m,
		now:      time.Now,
	}
}

func processedEventKey(eventID string) string {
	return fmt.Sprintf(keyProcessedEvent, eventID)
}

func statusForEvent(eventType string) (repository.OrderStatus, bool) {
	switch eventType {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncPaymentSucceeded:
		return repository.OrderStatusPaid, true
	case payment.EventCheckoutAsyncPaymentFailed:
		return repository.OrderStatusFailed, true
	case payment.EventCheckoutExpired:
		return repository.OrderStatusCancelled, true
	default:
		return "", false
	}
}

// HandleEvent verifies and applies one provider event. The only error it
// returns is a signature failure; once the signature verifies every inner
// failure is logged and the event is acknowledged.
func (svc *ReconcileService) HandleEvent(c context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	c, span := otel.Tracer.Start(c, "ReconcileService HandleEvent")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ReconcileService HandleEvent").
		Int(log.KeyWebhookPayloadSize, len(payload)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "verifying event").Logger()
	logger.Info().Msg("verifying event")
	event, err := svc.verifier.VerifyEvent(logger.WithContext(c), payload, signatureHeader)
	if errors.Is(err, inErrors.ErrUnauthenticated) {
		err = fmt.Errorf("failed verifying event with error=%w", err)
		svc.metrics.ObserveWebhookEvent("unknown", string(OutcomeRejected))
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return OutcomeRejected, err
	}
	logger = logger.With().
		Str(log.KeyEventID, event.ID).
		Str(log.KeyEventType, event.Type).
		Logger()
	if err != nil {
		return svc.finish(logger.WithContext(c), span, event, OutcomeInconsistent, err), nil
	}
	logger.Info().Msg("verified event")

	status, handled := statusForEvent(event.Type)
	if !handled {
		logger.Info().Msg("received unhandled event type, acknowledging")
		svc.metrics.ObserveWebhookEvent(event.Type, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	if svc.seen(logger.WithContext(c), event.ID) {
		logger.Info().Msg("event already processed, acknowledging")
		svc.metrics.ObserveWebhookEvent(event.Type, string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	logger = logger.With().Str(log.KeyProcess, "reading session metadata").Logger()
	if event.Session == nil {
		err = fmt.Errorf("%w: event has no checkout session", inErrors.ErrDataInconsistency)
		return svc.finish(logger.WithContext(c), span, event, OutcomeInconsistent, err), nil
	}
	orderID, userID, err := correlation(event.Session.Metadata)
	if err != nil {
		return svc.finish(logger.WithContext(c), span, event, OutcomeInconsistent, err), nil
	}
	logger = logger.With().
		Str(log.KeyOrderID, orderID.String()).
		Str(log.KeyUserID, userID.String()).
		Str(log.KeySessionID, event.Session.ID).
		Str(log.KeyOrderStatus, string(status)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "settling order").Logger()
	logger.Info().Msg("settling order")
	result, err := svc.store.SettleOrderTx(logger.WithContext(c), repository.SettleOrderTxParams{
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		PaymentID: event.Session.PaymentIntentID,
		SettledAt: svc.now().UTC(),
		Topic:     svc.topic,
	})
	if errors.Is(err, inErrors.ErrDataInconsistency) {
		return svc.finish(logger.WithContext(c), span, event, OutcomeInconsistent, err), nil
	}
	if err != nil {
		err = fmt.Errorf("failed settling order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.metrics.ObserveWebhookEvent(event.Type, string(OutcomeFailed))
		return OutcomeFailed, nil
	}

	outcome := OutcomeNoop
	if result.Applied {
		outcome = OutcomeApplied
		logger.Info().Bool("cartCleared", result.CartCleared).Msg("settled order")
	} else {
		logger.Info().
			Str("currentStatus", string(result.Order.Status)).
			Msg("order already settled, acknowledging")
	}
	return svc.finish(logger.WithContext(c), span, event, outcome, nil), nil
}

// finish remembers the event as processed and records the outcome. Data
// inconsistencies are logged as errors but still acknowledged.
func (svc *ReconcileService) finish(
	c context.Context,
	span trace.Span,
	event payment.Event,
	outcome Outcome,
	err error,
) Outcome {
	logger := zerolog.Ctx(c)
	if err != nil {
		err = fmt.Errorf("failed reconciling event with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	if event.ID != "" {
		svc.remember(c, event.ID)
	}
	eventType := event.Type
	if eventType == "" {
		eventType = "unknown"
	}
	svc.metrics.ObserveWebhookEvent(eventType, string(outcome))
	return outcome
}

func (svc *ReconcileService) seen(c context.Context, eventID string) bool {
	if svc.cache == nil || eventID == "" {
		return false
	}
	logger := zerolog.Ctx(c).With().Str(log.KeyCacheKey, processedEventKey(eventID)).Logger()
	n, err := svc.cache.Exists(c, processedEventKey(eventID)).Result()
	if err != nil {
		logger.Warn().Err(err).Msg("failed checking processed event, continuing")
		return false
	}
	return n > 0
}

func (svc *ReconcileService) remember(c context.Context, eventID string) {
	if svc.cache == nil {
		return
	}
	logger := zerolog.Ctx(c).With().Str(log.KeyCacheKey, processedEventKey(eventID)).Logger()
	if err := svc.cache.Set(c, processedEventKey(eventID), svc.now().UTC().Format(time.RFC3339), processedEventTTL).Err(); err != nil {
		logger.Warn().Err(err).Msg("failed remembering processed event")
	}
}

func correlation(metadata map[string]string) (orderID uuid.UUID, userID uuid.UUID, err error) {
	rawOrderID, rawUserID := metadata[payment.MetadataOrderID], metadata[payment.MetadataUserID]
	if rawOrderID == "" || rawUserID == "" {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: missing orderId or userId in session metadata", inErrors.ErrDataInconsistency)
	}
	orderID, err = uuid.Parse(rawOrderID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: orderId=%s is not a valid uuid", inErrors.ErrDataInconsistency, rawOrderID)
	}
	userID, err = uuid.Parse(rawUserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: userId=%s is not a valid uuid", inErrors.ErrDataInconsistency, rawUserID)
	}
	return orderID, userID, nil
}
