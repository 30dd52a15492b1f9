package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Alturino/storefront/internal/config"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired               = "checkout.session.expired"
	MetadataOrderID                    = "orderId"
	MetadataUserID                     = "userId"
	signatureTolerance                 = 5 * time.Minute
	defaultProviderTimeout             = 10 * time.Second
	checkoutSessionEventTypePrefix     = "checkout.session."
)

type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

type SessionParams struct {
	OrderID    uuid.UUID
	UserID     uuid.UUID
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
}

type Session struct {
	ID  string
	URL string
}

// CheckoutSession is the part of a provider checkout session reconciliation
// needs.
type CheckoutSession struct {
	ID              string
	Metadata        map[string]string
	PaymentIntentID string
	PaymentStatus   string
}

type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

// Stripe is the long lived client for the Stripe API. It is safe for
// concurrent use.
type Stripe struct {
	sessions      session.Client
	webhookSecret string
	currency      string
	timeout       time.Duration
}

func NewStripe(cfg config.Payment) *Stripe {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.ApiURL != "" {
		backendConfig.URL = stripe.String(strings.TrimSuffix(cfg.ApiURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &Stripe{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		currency:      strings.ToLower(currency),
		timeout:       timeout,
	}
}

func (s *Stripe) Timeout() time.Duration {
	return s.timeout
}

// CreateSession opens a hosted checkout session for one order. The order id
// doubles as the idempotency key. Every failure wraps ErrUpstream.
func (s *Stripe) CreateSession(c context.Context, arg SessionParams) (Session, error) {
	c, span := otel.Tracer.Start(c, "Stripe CreateSession")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Stripe CreateSession").
		Str(log.KeyOrderID, arg.OrderID.String()).
		Int(log.KeyLineItems, len(arg.LineItems)).
		Logger()

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, len(arg.LineItems))
	for i, item := range arg.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Image != "" {
			productData.Images = stripe.StringSlice([]string{item.Image})
		}
		lineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				ProductData: productData,
				UnitAmount:  stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(arg.SuccessURL),
		CancelURL:         stripe.String(arg.CancelURL),
		LineItems:         lineItems,
		ClientReferenceID: stripe.String(arg.OrderID.String()),
	}
	params.Context = c
	params.AddMetadata(MetadataOrderID, arg.OrderID.String())
	params.AddMetadata(MetadataUserID, arg.UserID.String())
	params.SetIdempotencyKey(arg.OrderID.String())

	logger = logger.With().Str(log.KeyProcess, "creating checkout session").Logger()
	logger.Info().Msg("creating checkout session")
	created, err := s.sessions.New(params)
	if err != nil {
		err = fmt.Errorf("%w: failed creating checkout session with error=%w", inErrors.ErrUpstream, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}
	if created.ID == "" || created.URL == "" {
		err = fmt.Errorf("%w: checkout session has no redirect url", inErrors.ErrUpstream)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}
	logger.Info().Str(log.KeySessionID, created.ID).Msg("created checkout session")

	return Session{ID: created.ID, URL: created.URL}, nil
}

// VerifyEvent checks the signature header against the exact payload bytes and
// decodes the event. Signature failures wrap ErrUnauthenticated.
func (s *Stripe) VerifyEvent(c context.Context, payload []byte, signatureHeader string) (Event, error) {
	c, span := otel.Tracer.Start(c, "Stripe VerifyEvent")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Stripe VerifyEvent").
		Int(log.KeyWebhookPayloadSize, len(payload)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "verifying signature").Logger()
	logger.Trace().Msg("verifying signature")
	stripeEvent, err := webhook.ConstructEventWithOptions(
		payload,
		signatureHeader,
		s.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                signatureTolerance,
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		err = fmt.Errorf("%w: failed verifying webhook signature with error=%w", inErrors.ErrSignature, err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return Event{}, err
	}
	logger.Trace().Msg("verified signature")

	event := Event{ID: stripeEvent.ID, Type: string(stripeEvent.Type)}
	if !strings.HasPrefix(event.Type, checkoutSessionEventTypePrefix) || stripeEvent.Data == nil {
		return event, nil
	}

	logger = logger.With().Str(log.KeyProcess, "decoding checkout session").Logger()
	checkoutSession := stripe.CheckoutSession{}
	if err := json.Unmarshal(stripeEvent.Data.Raw, &checkoutSession); err != nil {
		err = fmt.Errorf("%w: failed decoding checkout session with error=%w", inErrors.ErrDataInconsistency, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return event, err
	}
	event.Session = &CheckoutSession{
		ID:            checkoutSession.ID,
		Metadata:      checkoutSession.Metadata,
		PaymentStatus: string(checkoutSession.PaymentStatus),
	}
	if checkoutSession.PaymentIntent != nil {
		event.Session.PaymentIntentID = checkoutSession.PaymentIntent.ID
	}

	return event, nil
}
