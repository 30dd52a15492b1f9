package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/metrics"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/payment"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/internal/validate"
	"github.com/Alturino/storefront/order/pkg/request"
	"github.com/Alturino/storefront/order/pkg/response"
)

const (
	placeholderSessionPrefix = "pending_"
	minorUnitsPerMajor       = 100
	sessionIDPlaceholder     = "{CHECKOUT_SESSION_ID}"
)

// maxOrderTotal is the largest amount orders.total_amount numeric(24, 2) holds.
var maxOrderTotal = decimal.New(1, 22).Sub(decimal.New(1, -2))

const (
	outcomeCreated  = "created"
	outcomeRejected = "rejected"
	outcomeUpstream = "upstream_error"
	outcomeFailed   = "failed"
)

type OrderStore interface {
	CreateOrderTx(c context.Context, arg repository.CreateOrderTxParams) (repository.Order, error)
	UpdateOrderPaymentSession(ctx context.Context, arg repository.UpdateOrderPaymentSessionParams) (repository.Order, error)
}

type ProductFinder interface {
	FindProductsByIds(c context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
}

type PaymentProvider interface {
	CreateSession(c context.Context, arg payment.SessionParams) (payment.Session, error)
}

type CheckoutConfig struct {
	FrontendURL     string
	ProviderTimeout time.Duration
}

type CheckoutService struct {
	store       OrderStore
	catalog     ProductFinder
	provider    PaymentProvider
	frontendURL string
	timeout     time.Duration
	metrics     *metrics.Metrics
}

func NewCheckoutService(
	store OrderStore,
	catalog ProductFinder,
	provider PaymentProvider,
	cfg CheckoutConfig,
	m *metrics.Metrics,
) *CheckoutService {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CheckoutService{
		store:       store,
		catalog:     catalog,
		provider:    provider,
		frontendURL: strings.TrimSuffix(cfg.FrontendURL, "/"),
		timeout:     timeout,
		metrics:     m,
	}
}

func PlaceholderSessionID(orderID uuid.UUID) string {
	return placeholderSessionPrefix + orderID.String()
}

func minorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(minorUnitsPerMajor)).Round(0).IntPart()
}

// CreateCheckout persists a pending order priced from the catalog and opens a
// provider session for it. The order is returned only after the provider
// session id is stored on it. A provider failure leaves the pending order in
// place and returns ErrUpstream.
func (svc *CheckoutService) CreateCheckout(
	c context.Context,
	userID uuid.UUID,
	param request.CreateCheckout,
) (response.CheckoutSession, error) {
	c, span := otel.Tracer.Start(c, "CheckoutService CreateCheckout")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CheckoutService CreateCheckout").
		Str(log.KeyUserID, userID.String()).
		Int(log.KeyLineItems, len(param.Products)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating line items").Logger()
	logger.Info().Msg("validating line items")
	if err := validate.Struct(c, param); err != nil {
		err = fmt.Errorf("failed validating line items with error=%w", err)
		svc.metrics.ObserveCheckout(outcomeRejected)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.CheckoutSession{}, err
	}
	logger.Info().Msg("validated line items")

	logger = logger.With().Str(log.KeyProcess, "resolving catalog prices").Logger()
	logger.Info().Msg("resolving catalog prices")
	ids := make([]uuid.UUID, len(param.Products))
	for i, item := range param.Products {
		ids[i] = item.ProductID
	}
	products, err := svc.catalog.FindProductsByIds(c, ids)
	if err != nil {
		err = fmt.Errorf("failed resolving catalog prices with error=%w", err)
		svc.metrics.ObserveCheckout(outcomeFailed)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.CheckoutSession{}, err
	}

	orderID := uuid.New()
	total := decimal.Zero
	orderItems := make([]repository.InsertOrderItemsParams, len(param.Products))
	lineItems := make([]payment.LineItem, len(param.Products))
	for i, item := range param.Products {
		if item.Quantity > math.MaxInt32 {
			err = fmt.Errorf("%w: quantity=%d of productId=%s is out of range", inErrors.ErrInvalidArgument, item.Quantity, item.ProductID.String())
			svc.metrics.ObserveCheckout(outcomeRejected)
			otel.RecordError(err, span)
			logger.Info().Err(err).Msg(err.Error())
			return response.CheckoutSession{}, err
		}
		product, ok := products[item.ProductID]
		if !ok {
			err = fmt.Errorf("failed resolving productId=%s with error=%w", item.ProductID.String(), inErrors.ErrProductNotFound)
			svc.metrics.ObserveCheckout(outcomeRejected)
			otel.RecordError(err, span)
			logger.Info().Err(err).Msg(err.Error())
			return response.CheckoutSession{}, err
		}
		if !item.UnitPrice.Equal(product.Price) {
			logger.Warn().
				Str(log.KeyProductID, product.ID.String()).
				Str("clientPrice", item.UnitPrice.String()).
				Str("catalogPrice", product.Price.String()).
				Msg("client price differs from catalog, charging catalog price")
		}

		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		orderItems[i] = repository.InsertOrderItemsParams{
			OrderID:   orderID,
			Position:  int32(i),
			ProductID: product.ID,
			Quantity:  int32(item.Quantity),
		}
		lineItems[i] = payment.LineItem{
			Name:       firstNonEmpty(item.Title, product.Title),
			Image:      firstNonEmpty(item.Image, product.Image),
			UnitAmount: minorUnits(product.Price),
			Quantity:   int64(item.Quantity),
		}
	}
	total = total.Round(2)
	if total.GreaterThan(maxOrderTotal) {
		err = fmt.Errorf("%w: totalAmount=%s exceeds %s", inErrors.ErrInvalidArgument, total.String(), maxOrderTotal.StringFixed(2))
		svc.metrics.ObserveCheckout(outcomeRejected)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.CheckoutSession{}, err
	}
	logger = logger.With().
		Str(log.KeyOrderID, orderID.String()).
		Str(log.KeyTotalAmount, total.String()).
		Logger()
	logger.Info().Msg("resolved catalog prices")

	logger = logger.With().Str(log.KeyProcess, "persisting pending order").Logger()
	logger.Info().Msg("persisting pending order")
	_, err = svc.store.CreateOrderTx(logger.WithContext(c), repository.CreateOrderTxParams{
		Order: repository.InsertOrderParams{
			ID:               orderID,
			UserID:           userID,
			TotalAmount:      repository.NumericFromDecimal(total),
			PaymentSessionID: PlaceholderSessionID(orderID),
		},
		Items: orderItems,
	})
	if err != nil {
		err = fmt.Errorf("failed persisting pending order with error=%w", err)
		svc.metrics.ObserveCheckout(outcomeFailed)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.CheckoutSession{}, err
	}
	logger.Info().Msg("persisted pending order")

	logger = logger.With().Str(log.KeyProcess, "creating payment session").Logger()
	logger.Info().Msg("creating payment session")
	providerCtx, cancel := context.WithTimeout(logger.WithContext(c), svc.timeout)
	session, err := svc.provider.CreateSession(providerCtx, payment.SessionParams{
		OrderID:    orderID,
		UserID:     userID,
		LineItems:  lineItems,
		SuccessURL: fmt.Sprintf("%s/success?session_id=%s", svc.frontendURL, sessionIDPlaceholder),
		CancelURL:  fmt.Sprintf("%s/cancel", svc.frontendURL),
	})
	cancel()
	if err == nil && (session.ID == "" || session.URL == "") {
		err = fmt.Errorf("%w: payment session has no redirect url", inErrors.ErrUpstream)
	}
	if err != nil {
		err = fmt.Errorf("failed creating payment session with error=%w", upstream(err))
		svc.metrics.ObserveCheckout(outcomeUpstream)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.CheckoutSession{}, err
	}
	logger = logger.With().Str(log.KeySessionID, session.ID).Logger()
	logger.Info().Msg("created payment session")

	logger = logger.With().Str(log.KeyProcess, "binding payment session").Logger()
	logger.Info().Msg("binding payment session")
	_, err = svc.store.UpdateOrderPaymentSession(c, repository.UpdateOrderPaymentSessionParams{
		ID:               orderID,
		PaymentSessionID: session.ID,
	})
	if err != nil {
		err = fmt.Errorf("failed binding payment session with error=%w", err)
		svc.metrics.ObserveCheckout(outcomeFailed)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.CheckoutSession{}, err
	}
	logger.Info().Msg("bound payment session")
	svc.metrics.ObserveCheckout(outcomeCreated)

	return response.CheckoutSession{URL: session.URL, SessionID: session.ID, OrderID: orderID}, nil
}

// upstream makes sure provider failures, including timeouts, carry the
// upstream kind.
func upstream(err error) error {
	if inErrors.Kind(err) == inErrors.ErrUpstream {
		return err
	}
	return fmt.Errorf("%w: %w", inErrors.ErrUpstream, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
