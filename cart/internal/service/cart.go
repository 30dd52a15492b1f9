package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/cart/pkg/response"
	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
)

const defaultQuantity = 1

type CartQuerier interface {
	UpsertCartItem(ctx context.Context, arg repository.UpsertCartItemParams) (repository.CartItem, error)
	FindCartByUserId(ctx context.Context, userID uuid.UUID) (repository.Cart, error)
	FindCartItemsByCartId(ctx context.Context, cartID uuid.UUID) ([]repository.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, arg repository.UpdateCartItemQuantityParams) (repository.CartItem, error)
	DeleteCartItem(ctx context.Context, arg repository.DeleteCartItemParams) (int64, error)
	DeleteCartByUserId(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ProductFinder interface {
	FindProductById(c context.Context, id uuid.UUID) (catalog.Product, error)
	FindProductsByIds(c context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
}

type CartService struct {
	queries CartQuerier
	catalog ProductFinder
}

func NewCartService(queries CartQuerier, catalog ProductFinder) *CartService {
	return &CartService{queries: queries, catalog: catalog}
}

// AddItem adds quantity of productID to the user's cart, creating the cart on
// first use. An existing line has its quantity incremented.
func (svc *CartService) AddItem(c context.Context, userID uuid.UUID, param request.AddItem) (response.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService AddItem").
		Str(log.KeyUserID, userID.String()).
		Str(log.KeyProductID, param.ProductID.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating quantity").Logger()
	quantity := defaultQuantity
	if param.Quantity != nil {
		quantity = *param.Quantity
	}
	qty, err := toQuantity(quantity)
	if err != nil {
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger = logger.With().Int32(log.KeyQuantity, qty).Logger()

	logger = logger.With().Str(log.KeyProcess, "finding product").Logger()
	logger.Info().Msg("finding product")
	if _, err := svc.catalog.FindProductById(c, param.ProductID); err != nil {
		err = fmt.Errorf("failed finding productId=%s with error=%w", param.ProductID.String(), err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Msg("found product")

	logger = logger.With().Str(log.KeyProcess, "upserting cart item").Logger()
	logger.Info().Msg("upserting cart item")
	item, err := svc.queries.UpsertCartItem(c, repository.UpsertCartItemParams{
		CartID:    uuid.New(),
		UserID:    userID,
		ProductID: param.ProductID,
		Quantity:  qty,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("%w: line quantity of productId=%s would exceed %d", inErrors.ErrInvalidArgument, param.ProductID.String(), math.MaxInt32)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed upserting cart item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Int32("lineQuantity", item.Quantity).Msg("upserted cart item")

	return svc.snapshot(c, userID)
}

// GetCart returns the priced cart, or nil when the cart is empty. An empty
// cart, including one whose products were all deleted, is removed.
func (svc *CartService) GetCart(c context.Context, userID uuid.UUID) (*response.CartView, error) {
	c, span := otel.Tracer.Start(c, "CartService GetCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService GetCart").
		Str(log.KeyUserID, userID.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "finding cart").Logger()
	logger.Info().Msg("finding cart")
	cart, err := svc.queries.FindCartByUserId(c, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Info().Msg("cart not found, returning empty")
		return nil, nil
	}
	if err != nil {
		err = fmt.Errorf("failed finding cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger = logger.With().Str(log.KeyCartID, cart.ID.String()).Logger()

	items, err := svc.queries.FindCartItemsByCartId(c, cart.ID)
	if err != nil {
		err = fmt.Errorf("failed finding cart items with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int(log.KeyCartItems, len(items)).Msg("found cart")
	if len(items) == 0 {
		return nil, svc.evict(c, userID)
	}

	logger = logger.With().Str(log.KeyProcess, "resolving products").Logger()
	logger.Info().Msg("resolving products")
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := svc.catalog.FindProductsByIds(c, ids)
	if err != nil {
		err = fmt.Errorf("failed resolving products with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	lines := []response.CartLine{}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			logger.Info().Str(log.KeyProductID, item.ProductID.String()).Msg("skipping deleted product")
			continue
		}
		lines = append(lines, response.CartLine{
			Product:   product,
			Quantity:  item.Quantity,
			LineTotal: LineTotal(product.Price, item.Quantity),
		})
	}
	logger.Info().Int("resolved", len(lines)).Msg("resolved products")
	if len(lines) == 0 {
		return nil, svc.evict(c, userID)
	}

	lineTotals := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		lineTotals[i] = line.LineTotal
	}
	summary := Summarize(lineTotals)

	return &response.CartView{
		ID:       cart.ID,
		UserID:   cart.UserID,
		Items:    lines,
		Subtotal: summary.Subtotal,
		Tax:      summary.Tax,
		Shipping: summary.Shipping,
		Total:    summary.Total,
	}, nil
}

func (svc *CartService) UpdateQuantity(
	c context.Context,
	userID uuid.UUID,
	productID uuid.UUID,
	param request.UpdateQuantity,
) (response.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService UpdateQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService UpdateQuantity").
		Str(log.KeyUserID, userID.String()).
		Str(log.KeyProductID, productID.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating quantity").Logger()
	if param.NewQuantity == nil {
		err := fmt.Errorf("%w: newQuantity is required", inErrors.ErrInvalidArgument)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	qty, err := toQuantity(*param.NewQuantity)
	if err != nil {
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger = logger.With().Int32(log.KeyQuantity, qty).Logger()

	if _, err := svc.findCart(c, userID); err != nil {
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "updating cart item quantity").Logger()
	logger.Info().Msg("updating cart item quantity")
	_, err = svc.queries.UpdateCartItemQuantity(c, repository.UpdateCartItemQuantityParams{
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("failed updating productId=%s with error=%w", productID.String(), inErrors.ErrCartItemMissing)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed updating cart item quantity with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Msg("updated cart item quantity")

	return svc.snapshot(c, userID)
}

// RemoveItem drops one line. An emptied cart stays stored until the next
// GetCart.
func (svc *CartService) RemoveItem(c context.Context, userID uuid.UUID, productID uuid.UUID) (response.Cart, error) {
	c, span := otel.Tracer.Start(c, "CartService RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService RemoveItem").
		Str(log.KeyUserID, userID.String()).
		Str(log.KeyProductID, productID.String()).
		Logger()

	if _, err := svc.findCart(c, userID); err != nil {
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "deleting cart item").Logger()
	logger.Info().Msg("deleting cart item")
	deleted, err := svc.queries.DeleteCartItem(c, repository.DeleteCartItemParams{
		UserID:    userID,
		ProductID: productID,
	})
	if err != nil {
		err = fmt.Errorf("failed deleting cart item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	if deleted == 0 {
		err = fmt.Errorf("failed deleting productId=%s with error=%w", productID.String(), inErrors.ErrCartItemMissing)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Msg("deleted cart item")

	return svc.snapshot(c, userID)
}

func (svc *CartService) findCart(c context.Context, userID uuid.UUID) (repository.Cart, error) {
	cart, err := svc.queries.FindCartByUserId(c, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Cart{}, fmt.Errorf("failed finding cart of userId=%s with error=%w", userID.String(), inErrors.ErrCartNotFound)
	}
	if err != nil {
		return repository.Cart{}, fmt.Errorf("failed finding cart with error=%w", err)
	}
	return cart, nil
}

func (svc *CartService) snapshot(c context.Context, userID uuid.UUID) (response.Cart, error) {
	logger := zerolog.Ctx(c).With().Str(log.KeyProcess, "loading cart snapshot").Logger()

	cart, err := svc.findCart(c, userID)
	if err != nil {
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	items, err := svc.queries.FindCartItemsByCartId(c, cart.ID)
	if err != nil {
		err = fmt.Errorf("failed finding cart items with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}

	result := response.Cart{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Items:     make([]response.CartItem, len(items)),
		UpdatedAt: cart.UpdatedAt.Time,
	}
	for i, item := range items {
		result.Items[i] = response.CartItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return result, nil
}

func (svc *CartService) evict(c context.Context, userID uuid.UUID) error {
	logger := zerolog.Ctx(c).With().Str(log.KeyProcess, "deleting empty cart").Logger()
	logger.Info().Msg("deleting empty cart")
	if _, err := svc.queries.DeleteCartByUserId(c, userID); err != nil {
		err = fmt.Errorf("failed deleting empty cart with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("deleted empty cart")
	return nil
}

func toQuantity(quantity int) (int32, error) {
	if quantity < 1 || quantity > math.MaxInt32 {
		return 0, fmt.Errorf("%w: quantity=%d must be a positive integer", inErrors.ErrInvalidArgument, quantity)
	}
	return int32(quantity), nil
}
