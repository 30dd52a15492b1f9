package service

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/payment"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/order/pkg/request"
)

type fakeOrders struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]repository.Order
	items    map[uuid.UUID][]repository.OrderItem
	bindings int
	txErr    error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[uuid.UUID]repository.Order{}, items: map[uuid.UUID][]repository.OrderItem{}}
}

func (f *fakeOrders) CreateOrderTx(_ context.Context, arg repository.CreateOrderTxParams) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		return repository.Order{}, f.txErr
	}
	now := repository.Timestamptz(time.Now())
	order := repository.Order{
		ID:               arg.Order.ID,
		UserID:           arg.Order.UserID,
		TotalAmount:      arg.Order.TotalAmount,
		Status:           repository.OrderStatusPending,
		PaymentSessionID: arg.Order.PaymentSessionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	f.orders[order.ID] = order
	for _, item := range arg.Items {
		f.items[order.ID] = append(f.items[order.ID], repository.OrderItem(item))
	}
	return order, nil
}

func (f *fakeOrders) UpdateOrderPaymentSession(_ context.Context, arg repository.UpdateOrderPaymentSessionParams) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[arg.ID]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	order.PaymentSessionID = arg.PaymentSessionID
	f.orders[arg.ID] = order
	f.bindings++
	return order, nil
}

func (f *fakeOrders) FindOrdersByUserId(_ context.Context, userID uuid.UUID) ([]repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	orders := []repository.Order{}
	for _, o := range f.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && orders[j].CreatedAt.Time.After(orders[j-1].CreatedAt.Time); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
	return orders, nil
}

func (f *fakeOrders) FindOrderBySessionId(_ context.Context, arg repository.FindOrderBySessionIdParams) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID == arg.UserID && o.PaymentSessionID == arg.PaymentSessionID {
			return o, nil
		}
	}
	return repository.Order{}, pgx.ErrNoRows
}

func (f *fakeOrders) FindOrderItemsByOrderIds(_ context.Context, orderIDs []uuid.UUID) ([]repository.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []repository.OrderItem{}
	for _, id := range orderIDs {
		items = append(items, f.items[id]...)
	}
	return items, nil
}

func (f *fakeOrders) only(t *testing.T) repository.Order {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.orders, 1)
	for _, o := range f.orders {
		return o
	}
	return repository.Order{}
}

type fakeCatalog struct {
	products map[uuid.UUID]catalog.Product
}

func (f fakeCatalog) FindProductsByIds(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	found := map[uuid.UUID]catalog.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []payment.SessionParams
	create func(c context.Context, arg payment.SessionParams) (payment.Session, error)
}

func (f *fakeProvider) CreateSession(c context.Context, arg payment.SessionParams) (payment.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, arg)
	f.mu.Unlock()
	if f.create != nil {
		return f.create(c, arg)
	}
	return payment.Session{ID: "cs_test_" + arg.OrderID.String(), URL: "https://checkout.stripe.test/pay"}, nil
}

func testContext() context.Context {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}).
		WithContext(context.Background())
}

func newProduct(title string, price string) catalog.Product {
	return catalog.Product{
		ID:       uuid.New(),
		Title:    title,
		Category: "shoes",
		Price:    decimal.RequireFromString(price),
		Image:    "https://img.test/" + title + ".png",
	}
}

func TestCreateCheckout(t *testing.T) {
	shoe := newProduct("shoe", "10.00")
	sock := newProduct("sock", "0.02")
	products := fakeCatalog{products: map[uuid.UUID]catalog.Product{shoe.ID: shoe, sock.ID: sock}}
	userID := uuid.New()

	item := func(p catalog.Product, price string, qty int) request.CheckoutItem {
		return request.CheckoutItem{
			ProductID: p.ID,
			Title:     p.Title,
			UnitPrice: decimal.RequireFromString(price),
			Quantity:  qty,
		}
	}

	t.Run("creates pending order and binds session", func(t *testing.T) {
		orders := newFakeOrders()
		provider := &fakeProvider{}
		svc := NewCheckoutService(orders, products, provider, CheckoutConfig{FrontendURL: "http://shop.test/"}, nil)

		session, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{
			Products: []request.CheckoutItem{item(shoe, "10.00", 2)},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.test/pay", session.URL)
		assert.Equal(t, "cs_test_"+session.OrderID.String(), session.SessionID)

		order := orders.only(t)
		assert.Equal(t, session.OrderID, order.ID)
		assert.Equal(t, userID, order.UserID)
		assert.Equal(t, repository.OrderStatusPending, order.Status)
		assert.Equal(t, session.SessionID, order.PaymentSessionID)
		assert.True(t, decimal.RequireFromString("20.00").Equal(repository.DecimalFromNumeric(order.TotalAmount)))
		assert.Equal(t, 1, orders.bindings)

		require.Len(t, provider.calls, 1)
		call := provider.calls[0]
		assert.Equal(t, order.ID, call.OrderID)
		assert.Equal(t, userID, call.UserID)
		assert.Equal(t, "http://shop.test/success?session_id={CHECKOUT_SESSION_ID}", call.SuccessURL)
		assert.Equal(t, "http://shop.test/cancel", call.CancelURL)
		require.Len(t, call.LineItems, 1)
		assert.Equal(t, payment.LineItem{Name: "shoe", Image: shoe.Image, UnitAmount: 1000, Quantity: 2}, call.LineItems[0])
	})

	t.Run("charges catalog price over client price", func(t *testing.T) {
		orders := newFakeOrders()
		provider := &fakeProvider{}
		svc := NewCheckoutService(orders, products, provider, CheckoutConfig{}, nil)

		_, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{
			Products: []request.CheckoutItem{item(shoe, "0.01", 3), item(sock, "9.99", 1)},
		})
		require.NoError(t, err)

		order := orders.only(t)
		assert.True(t, decimal.RequireFromString("30.02").Equal(repository.DecimalFromNumeric(order.TotalAmount)))
		require.Len(t, provider.calls[0].LineItems, 2)
		assert.Equal(t, int64(1000), provider.calls[0].LineItems[0].UnitAmount)
		assert.Equal(t, int64(2), provider.calls[0].LineItems[1].UnitAmount)

		items := orders.items[order.ID]
		require.Len(t, items, 2)
		assert.Equal(t, int32(0), items[0].Position)
		assert.Equal(t, shoe.ID, items[0].ProductID)
		assert.Equal(t, int32(3), items[0].Quantity)
		assert.Equal(t, int32(1), items[1].Position)
	})

	t.Run("falls back to catalog title and image", func(t *testing.T) {
		provider := &fakeProvider{}
		svc := NewCheckoutService(newFakeOrders(), products, provider, CheckoutConfig{}, nil)

		_, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{
			Products: []request.CheckoutItem{{ProductID: sock.ID, UnitPrice: sock.Price, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, "sock", provider.calls[0].LineItems[0].Name)
		assert.Equal(t, sock.Image, provider.calls[0].LineItems[0].Image)
	})

	t.Run("accepts large quantities", func(t *testing.T) {
		orders := newFakeOrders()
		provider := &fakeProvider{}
		svc := NewCheckoutService(orders, products, provider, CheckoutConfig{}, nil)

		_, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{
			Products: []request.CheckoutItem{item(shoe, "10.00", 10000)},
		})
		require.NoError(t, err)

		order := orders.only(t)
		assert.True(t, decimal.RequireFromString("100000.00").Equal(repository.DecimalFromNumeric(order.TotalAmount)))
		assert.Equal(t, int32(10000), orders.items[order.ID][0].Quantity)
		assert.Equal(t, int64(10000), provider.calls[0].LineItems[0].Quantity)
	})

	pricey := newProduct("yacht", "100000000000000.00")
	products.products[pricey.ID] = pricey
	beyondInt32 := math.MaxInt32
	beyondInt32++

	rejected := []struct {
		name     string
		products []request.CheckoutItem
		kind     error
	}{
		{name: "empty", products: []request.CheckoutItem{}, kind: inErrors.ErrInvalidArgument},
		{name: "zero quantity", products: []request.CheckoutItem{item(shoe, "10.00", 0)}, kind: inErrors.ErrInvalidArgument},
		{name: "zero price", products: []request.CheckoutItem{item(shoe, "0", 1)}, kind: inErrors.ErrInvalidArgument},
		{name: "negative price", products: []request.CheckoutItem{item(shoe, "-1.00", 1)}, kind: inErrors.ErrInvalidArgument},
		{name: "quantity beyond int32", products: []request.CheckoutItem{item(shoe, "10.00", beyondInt32)}, kind: inErrors.ErrInvalidArgument},
		{name: "total beyond order column", products: []request.CheckoutItem{item(pricey, "1.00", 1000000000)}, kind: inErrors.ErrInvalidArgument},
		{name: "unknown product", products: []request.CheckoutItem{item(newProduct("ghost", "1.00"), "1.00", 1)}, kind: inErrors.ErrNotFound},
	}
	for _, tc := range rejected {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			orders := newFakeOrders()
			provider := &fakeProvider{}
			svc := NewCheckoutService(orders, products, provider, CheckoutConfig{}, nil)

			_, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{Products: tc.products})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Empty(t, orders.orders)
			assert.Empty(t, provider.calls)
		})
	}

	upstream := []struct {
		name   string
		create func(c context.Context, arg payment.SessionParams) (payment.Session, error)
	}{
		{
			name: "provider error",
			create: func(context.Context, payment.SessionParams) (payment.Session, error) {
				return payment.Session{}, errors.New("card_declined")
			},
		},
		{
			name: "empty redirect url",
			create: func(context.Context, payment.SessionParams) (payment.Session, error) {
				return payment.Session{ID: "cs_test_nourl"}, nil
			},
		},
		{
			name: "timeout",
			create: func(c context.Context, _ payment.SessionParams) (payment.Session, error) {
				<-c.Done()
				return payment.Session{}, c.Err()
			},
		},
	}
	for _, tc := range upstream {
		t.Run("upstream "+tc.name, func(t *testing.T) {
			orders := newFakeOrders()
			svc := NewCheckoutService(
				orders,
				products,
				&fakeProvider{create: tc.create},
				CheckoutConfig{ProviderTimeout: 50 * time.Millisecond},
				nil,
			)

			_, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{
				Products: []request.CheckoutItem{item(shoe, "10.00", 1)},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, inErrors.ErrUpstream)

			order := orders.only(t)
			assert.Equal(t, repository.OrderStatusPending, order.Status)
			assert.True(t, strings.HasPrefix(order.PaymentSessionID, "pending_"))
			assert.Equal(t, PlaceholderSessionID(order.ID), order.PaymentSessionID)
			assert.Zero(t, orders.bindings)
		})
	}

	t.Run("store failure skips provider", func(t *testing.T) {
		orders := newFakeOrders()
		orders.txErr = errors.New("connection reset")
		provider := &fakeProvider{}
		svc := NewCheckoutService(orders, products, provider, CheckoutConfig{}, nil)

		_, err := svc.CreateCheckout(testContext(), userID, request.CreateCheckout{
			Products: []request.CheckoutItem{item(shoe, "10.00", 1)},
		})
		require.Error(t, err)
		assert.Nil(t, inErrors.Kind(err))
		assert.Empty(t, provider.calls)
	})
}

func TestMinorUnits(t *testing.T) {
	testCases := []struct {
		price string
		want  int64
	}{
		{price: "10.00", want: 1000},
		{price: "19.99", want: 1999},
		{price: "0.015", want: 2},
		{price: "0.014", want: 1},
		{price: "1.005", want: 101},
	}
	for _, tc := range testCases {
		t.Run(tc.price, func(t *testing.T) {
			assert.Equal(t, tc.want, minorUnits(decimal.RequireFromString(tc.price)))
		})
	}
}
