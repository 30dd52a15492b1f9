package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/event"
	"github.com/Alturino/storefront/internal/testutil"
)

const testTopic = "storefront.orders"

func createPendingOrder(t *testing.T, c context.Context, store *Store, userID uuid.UUID, productID uuid.UUID) Order {
	t.Helper()
	orderID := uuid.New()
	order, err := store.CreateOrderTx(c, CreateOrderTxParams{
		Order: InsertOrderParams{
			ID:               orderID,
			UserID:           userID,
			TotalAmount:      NumericFromDecimal(decimal.RequireFromString("20.00")),
			PaymentSessionID: "pending_" + orderID.String(),
		},
		Items: []InsertOrderItemsParams{{OrderID: orderID, Position: 0, ProductID: productID, Quantity: 2}},
	})
	require.NoError(t, err)
	return order
}

func TestStore(t *testing.T) {
	testutil.SkipShort(t)
	c := testutil.Context()
	store := NewStore(testutil.Postgres(t, c))

	product, err := store.InsertProduct(c, InsertProductParams{
		ID:       uuid.New(),
		Title:    "Mug",
		Category: "Kitchen",
		Price:    NumericFromDecimal(decimal.RequireFromString("10.00")),
	})
	require.NoError(t, err)

	t.Run("cart upsert increments quantity", func(t *testing.T) {
		userID := uuid.New()
		for i := 0; i < 2; i++ {
			_, err := store.UpsertCartItem(c, UpsertCartItemParams{
				CartID:    uuid.New(),
				UserID:    userID,
				ProductID: product.ID,
				Quantity:  2,
			})
			require.NoError(t, err)
		}
		cart, err := store.FindCartByUserId(c, userID)
		require.NoError(t, err)
		items, err := store.FindCartItemsByCartId(c, cart.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.EqualValues(t, 4, items[0].Quantity)
	})

	t.Run("cart upsert refuses integer overflow", func(t *testing.T) {
		userID := uuid.New()
		_, err := store.UpsertCartItem(c, UpsertCartItemParams{CartID: uuid.New(), UserID: userID, ProductID: product.ID, Quantity: math.MaxInt32})
		require.NoError(t, err)

		_, err = store.UpsertCartItem(c, UpsertCartItemParams{CartID: uuid.New(), UserID: userID, ProductID: product.ID, Quantity: 1})
		assert.ErrorIs(t, err, pgx.ErrNoRows)

		cart, err := store.FindCartByUserId(c, userID)
		require.NoError(t, err)
		items, err := store.FindCartItemsByCartId(c, cart.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.EqualValues(t, math.MaxInt32, items[0].Quantity)
	})

	t.Run("create order keeps line positions", func(t *testing.T) {
		userID := uuid.New()
		order := createPendingOrder(t, c, store, userID, product.ID)
		assert.Equal(t, OrderStatusPending, order.Status)
		assert.True(t, decimal.RequireFromString("20").Equal(DecimalFromNumeric(order.TotalAmount)))

		items, err := store.FindOrderItemsByOrderIds(c, []uuid.UUID{order.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.EqualValues(t, 2, items[0].Quantity)

		bound, err := store.UpdateOrderPaymentSession(c, UpdateOrderPaymentSessionParams{ID: order.ID, PaymentSessionID: "cs_" + order.ID.String()})
		require.NoError(t, err)
		found, err := store.FindOrderBySessionId(c, FindOrderBySessionIdParams{UserID: userID, PaymentSessionID: bound.PaymentSessionID})
		require.NoError(t, err)
		assert.Equal(t, order.ID, found.ID)

		_, err = store.FindOrderBySessionId(c, FindOrderBySessionIdParams{UserID: uuid.New(), PaymentSessionID: bound.PaymentSessionID})
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})

	t.Run("duplicate session id is rejected", func(t *testing.T) {
		order := createPendingOrder(t, c, store, uuid.New(), product.ID)
		_, err := store.CreateOrderTx(c, CreateOrderTxParams{
			Order: InsertOrderParams{
				ID:               uuid.New(),
				UserID:           uuid.New(),
				TotalAmount:      NumericFromDecimal(decimal.RequireFromString("1.00")),
				PaymentSessionID: order.PaymentSessionID,
			},
		})
		pgErr := &pgconn.PgError{}
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "23505", pgErr.Code)
	})

	t.Run("settle pays once and clears cart", func(t *testing.T) {
		userID := uuid.New()
		_, err := store.UpsertCartItem(c, UpsertCartItemParams{CartID: uuid.New(), UserID: userID, ProductID: product.ID, Quantity: 1})
		require.NoError(t, err)
		order := createPendingOrder(t, c, store, userID, product.ID)

		arg := SettleOrderTxParams{
			OrderID:   order.ID,
			UserID:    userID,
			Status:    OrderStatusPaid,
			PaymentID: "pi_store",
			SettledAt: time.Now(),
			Topic:     testTopic,
		}
		result, err := store.SettleOrderTx(c, arg)
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.True(t, result.CartCleared)
		assert.Equal(t, OrderStatusPaid, result.Order.Status)
		assert.Equal(t, "pi_store", result.Order.PaymentID.String)
		assert.True(t, result.Order.PaidAt.Valid)

		_, err = store.FindCartByUserId(c, userID)
		assert.ErrorIs(t, err, pgx.ErrNoRows)

		arg.Status = OrderStatusCancelled
		again, err := store.SettleOrderTx(c, arg)
		require.NoError(t, err)
		assert.False(t, again.Applied)
		assert.Equal(t, OrderStatusPaid, again.Order.Status)
	})

	t.Run("settle cancelled keeps cart", func(t *testing.T) {
		userID := uuid.New()
		_, err := store.UpsertCartItem(c, UpsertCartItemParams{CartID: uuid.New(), UserID: userID, ProductID: product.ID, Quantity: 1})
		require.NoError(t, err)
		order := createPendingOrder(t, c, store, userID, product.ID)

		result, err := store.SettleOrderTx(c, SettleOrderTxParams{
			OrderID:   order.ID,
			UserID:    userID,
			Status:    OrderStatusCancelled,
			SettledAt: time.Now(),
			Topic:     testTopic,
		})
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.False(t, result.CartCleared)
		assert.False(t, result.Order.PaidAt.Valid)

		_, err = store.FindCartByUserId(c, userID)
		assert.NoError(t, err)
	})

	t.Run("settle reports inconsistencies", func(t *testing.T) {
		order := createPendingOrder(t, c, store, uuid.New(), product.ID)

		_, err := store.SettleOrderTx(c, SettleOrderTxParams{
			OrderID: order.ID, UserID: uuid.New(), Status: OrderStatusPaid, SettledAt: time.Now(), Topic: testTopic,
		})
		assert.ErrorIs(t, err, inErrors.ErrDataInconsistency)

		_, err = store.SettleOrderTx(c, SettleOrderTxParams{
			OrderID: uuid.New(), UserID: order.UserID, Status: OrderStatusPaid, SettledAt: time.Now(), Topic: testTopic,
		})
		assert.ErrorIs(t, err, inErrors.ErrDataInconsistency)

		_, err = store.SettleOrderTx(c, SettleOrderTxParams{
			OrderID: order.ID, UserID: order.UserID, Status: OrderStatusPending, Topic: testTopic,
		})
		assert.ErrorIs(t, err, inErrors.ErrInvalidArgument)

		unchanged, err := store.FindOrderById(c, order.ID)
		require.NoError(t, err)
		assert.Equal(t, OrderStatusPending, unchanged.Status)
	})

	t.Run("relay marks sent only after publish", func(t *testing.T) {
		// drain events appended by the subtests above
		_, err := store.RelayOutboxTx(c, 1000, func(context.Context, []OutboxEvent) error { return nil })
		require.NoError(t, err)

		userID := uuid.New()
		order := createPendingOrder(t, c, store, userID, product.ID)
		_, err = store.SettleOrderTx(c, SettleOrderTxParams{
			OrderID: order.ID, UserID: userID, Status: OrderStatusPaid, PaymentID: "pi_relay", SettledAt: time.Now(), Topic: testTopic,
		})
		require.NoError(t, err)

		relayed, err := store.RelayOutboxTx(c, 100, func(context.Context, []OutboxEvent) error {
			return errors.New("broker down")
		})
		require.Error(t, err)
		assert.Zero(t, relayed)

		var published []OutboxEvent
		relayed, err = store.RelayOutboxTx(c, 100, func(_ context.Context, events []OutboxEvent) error {
			published = events
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, relayed)
		require.Len(t, published, 1)
		assert.Equal(t, event.TypeOrderPaid, published[0].EventType)
		assert.Equal(t, order.ID.String(), published[0].Key)

		payload := event.OrderEvent{}
		require.NoError(t, json.Unmarshal(published[0].Payload, &payload))
		assert.Equal(t, order.ID, payload.OrderID)
		assert.Equal(t, "pi_relay", payload.PaymentID)

		relayed, err = store.RelayOutboxTx(c, 100, func(context.Context, []OutboxEvent) error { return nil })
		require.NoError(t, err)
		assert.Zero(t, relayed)
	})
}
