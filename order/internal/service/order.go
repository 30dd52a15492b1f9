package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/order/pkg/response"
)

type OrderQuerier interface {
	FindOrdersByUserId(ctx context.Context, userID uuid.UUID) ([]repository.Order, error)
	FindOrderBySessionId(ctx context.Context, arg repository.FindOrderBySessionIdParams) (repository.Order, error)
	FindOrderItemsByOrderIds(ctx context.Context, orderIDs []uuid.UUID) ([]repository.OrderItem, error)
}

type OrderService struct {
	queries OrderQuerier
	catalog ProductFinder
}

func NewOrderService(queries OrderQuerier, catalog ProductFinder) *OrderService {
	return &OrderService{queries: queries, catalog: catalog}
}

// ListMyOrders returns the caller's orders newest first with their items
// joined against the catalog.
func (svc *OrderService) ListMyOrders(c context.Context, userID uuid.UUID) ([]response.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService ListMyOrders")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService ListMyOrders").
		Str(log.KeyUserID, userID.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "finding orders").Logger()
	logger.Info().Msg("finding orders")
	orders, err := svc.queries.FindOrdersByUserId(c, userID)
	if err != nil {
		err = fmt.Errorf("failed finding orders with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int("orders", len(orders)).Msg("found orders")

	views, err := svc.withItems(logger.WithContext(c), orders)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	return views, nil
}

// GetOrderBySession returns the caller's order bound to sessionID. Sessions
// of other users are reported as not found.
func (svc *OrderService) GetOrderBySession(
	c context.Context,
	userID uuid.UUID,
	sessionID string,
) (response.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService GetOrderBySession")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService GetOrderBySession").
		Str(log.KeyUserID, userID.String()).
		Str(log.KeySessionID, sessionID).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "finding order").Logger()
	logger.Info().Msg("finding order")
	order, err := svc.queries.FindOrderBySessionId(c, repository.FindOrderBySessionIdParams{
		UserID:           userID,
		PaymentSessionID: sessionID,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("failed finding order with error=%w", inErrors.ErrOrderNotFound)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Order{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed finding order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Order{}, err
	}
	logger.Info().Str(log.KeyOrderID, order.ID.String()).Msg("found order")

	views, err := svc.withItems(logger.WithContext(c), []repository.Order{order})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Order{}, err
	}
	return views[0], nil
}

func (svc *OrderService) withItems(c context.Context, orders []repository.Order) ([]response.Order, error) {
	logger := zerolog.Ctx(c).With().Str(log.KeyProcess, "joining order items").Logger()

	views := make([]response.Order, len(orders))
	if len(orders) == 0 {
		return views, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := svc.queries.FindOrderItemsByOrderIds(c, ids)
	if err != nil {
		return nil, fmt.Errorf("failed finding order items with error=%w", err)
	}

	productIDs := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		productIDs = append(productIDs, item.ProductID)
	}
	products := map[uuid.UUID]catalog.Product{}
	if len(productIDs) > 0 {
		products, err = svc.catalog.FindProductsByIds(c, productIDs)
		if err != nil {
			return nil, fmt.Errorf("failed resolving order products with error=%w", err)
		}
	}

	byOrder := make(map[uuid.UUID][]response.OrderItem, len(orders))
	for _, item := range items {
		line := response.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if p, ok := products[item.ProductID]; ok {
			line.Product = &p
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], line)
	}

	for i, o := range orders {
		views[i] = response.FromOrder(o, byOrder[o.ID])
	}
	logger.Debug().Int("items", len(items)).Msg("joined order items")
	return views, nil
}
