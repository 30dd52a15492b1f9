package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/internal/auth"
	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/middleware"
	"github.com/Alturino/storefront/internal/payment"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/order/internal/service"
)

type memoryOrders struct {
	orders map[uuid.UUID]repository.Order
	items  map[uuid.UUID][]repository.OrderItem
}

func (m *memoryOrders) CreateOrderTx(_ context.Context, arg repository.CreateOrderTxParams) (repository.Order, error) {
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
	m.orders[order.ID] = order
	for _, item := range arg.Items {
		m.items[order.ID] = append(m.items[order.ID], repository.OrderItem(item))
	}
	return order, nil
}

func (m *memoryOrders) UpdateOrderPaymentSession(_ context.Context, arg repository.UpdateOrderPaymentSessionParams) (repository.Order, error) {
	order, ok := m.orders[arg.ID]
	if !ok {
		return repository.Order{}, pgx.ErrNoRows
	}
	order.PaymentSessionID = arg.PaymentSessionID
	m.orders[arg.ID] = order
	return order, nil
}

func (m *memoryOrders) FindOrdersByUserId(_ context.Context, userID uuid.UUID) ([]repository.Order, error) {
	orders := []repository.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (m *memoryOrders) FindOrderBySessionId(_ context.Context, arg repository.FindOrderBySessionIdParams) (repository.Order, error) {
	for _, o := range m.orders {
		if o.UserID == arg.UserID && o.PaymentSessionID == arg.PaymentSessionID {
			return o, nil
		}
	}
	return repository.Order{}, pgx.ErrNoRows
}

func (m *memoryOrders) FindOrderItemsByOrderIds(_ context.Context, orderIDs []uuid.UUID) ([]repository.OrderItem, error) {
	items := []repository.OrderItem{}
	for _, id := range orderIDs {
		items = append(items, m.items[id]...)
	}
	return items, nil
}

type memoryCatalog map[uuid.UUID]catalog.Product

func (m memoryCatalog) FindProductsByIds(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	found := map[uuid.UUID]catalog.Product{}
	for _, id := range ids {
		if p, ok := m[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

type stubProvider struct {
	err error
}

func (s *stubProvider) CreateSession(_ context.Context, arg payment.SessionParams) (payment.Session, error) {
	if s.err != nil {
		return payment.Session{}, s.err
	}
	return payment.Session{ID: "cs_test_" + arg.OrderID.String(), URL: "https://checkout.stripe.test/pay"}, nil
}

type orderRouter struct {
	router   *mux.Router
	orders   *memoryOrders
	provider *stubProvider
	alice    string
	bob      string
}

func newOrderRouter(t *testing.T, products ...catalog.Product) orderRouter {
	t.Helper()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano})
	tokens := auth.NewTokenManager("secret", time.Hour)
	c := logger.WithContext(context.Background())

	alice, err := tokens.Issue(c, auth.Principal{UserID: uuid.New(), Role: auth.RoleCustomer})
	require.NoError(t, err)
	bob, err := tokens.Issue(c, auth.Principal{UserID: uuid.New(), Role: auth.RoleCustomer})
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		})
	})
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.Auth(tokens))

	cat := memoryCatalog{}
	for _, p := range products {
		cat[p.ID] = p
	}
	orders := &memoryOrders{orders: map[uuid.UUID]repository.Order{}, items: map[uuid.UUID][]repository.OrderItem{}}
	provider := &stubProvider{}
	AttachOrderController(
		protected,
		service.NewCheckoutService(orders, cat, provider, service.CheckoutConfig{FrontendURL: "http://shop.test"}, nil),
		service.NewOrderService(orders, cat),
	)

	return orderRouter{router: router, orders: orders, provider: provider, alice: alice, bob: bob}
}

func (o orderRouter) do(method string, path string, token string, body interface{}) *httptest.ResponseRecorder {
	buf := &bytes.Buffer{}
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set(inHttp.HeaderContentType, inHttp.HeaderValueJson)
	if token != "" {
		req.Header.Set(inHttp.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	o.router.ServeHTTP(rec, req)
	return rec
}

type failedBody struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"kind"`
}

func decodeFailed(t *testing.T, rec *httptest.ResponseRecorder) failedBody {
	t.Helper()
	body := failedBody{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestCheckoutRoute(t *testing.T) {
	shoe := catalog.Product{ID: uuid.New(), Title: "shoe", Price: decimal.RequireFromString("10.00")}
	line := func(quantity interface{}) map[string]interface{} {
		return map[string]interface{}{"productId": shoe.ID, "title": "shoe", "price": "10.00", "quantity": quantity}
	}

	t.Run("creates session", func(t *testing.T) {
		o := newOrderRouter(t, shoe)
		rec := o.do(http.MethodPost, "/api/order/checkout", o.alice, map[string]interface{}{"products": []interface{}{line(2)}})
		require.Equal(t, http.StatusOK, rec.Code)

		body := struct {
			Data struct {
				URL       string    `json:"url"`
				SessionID string    `json:"sessionId"`
				OrderID   uuid.UUID `json:"orderId"`
			} `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "https://checkout.stripe.test/pay", body.Data.URL)
		assert.Equal(t, "cs_test_"+body.Data.OrderID.String(), body.Data.SessionID)
		require.Contains(t, o.orders.orders, body.Data.OrderID)
		assert.Equal(t, body.Data.SessionID, o.orders.orders[body.Data.OrderID].PaymentSessionID)
	})

	invalid := []struct {
		name string
		body interface{}
	}{
		{name: "empty products", body: map[string]interface{}{"products": []interface{}{}}},
		{name: "missing products", body: map[string]interface{}{}},
		{name: "zero quantity", body: map[string]interface{}{"products": []interface{}{line(0)}}},
		{name: "fractional quantity", body: map[string]interface{}{"products": []interface{}{line(2.5)}}},
		{name: "non numeric quantity", body: map[string]interface{}{"products": []interface{}{line("two")}}},
		{name: "malformed json", body: `{"products": [`},
	}
	for _, tc := range invalid {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			o := newOrderRouter(t, shoe)
			rec := o.do(http.MethodPost, "/api/order/checkout", o.alice, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, inErrors.ErrInvalidArgument.Error(), decodeFailed(t, rec).Kind)
			assert.Empty(t, o.orders.orders)
		})
	}

	t.Run("unknown product is not found", func(t *testing.T) {
		o := newOrderRouter(t)
		rec := o.do(http.MethodPost, "/api/order/checkout", o.alice, map[string]interface{}{"products": []interface{}{line(1)}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("provider failure is bad gateway", func(t *testing.T) {
		o := newOrderRouter(t, shoe)
		o.provider.err = errors.New("stripe unavailable")
		rec := o.do(http.MethodPost, "/api/order/checkout", o.alice, map[string]interface{}{"products": []interface{}{line(1)}})
		require.Equal(t, http.StatusBadGateway, rec.Code)
		body := decodeFailed(t, rec)
		assert.Equal(t, http.StatusBadGateway, body.StatusCode)
		assert.Equal(t, inErrors.ErrUpstream.Error(), body.Kind)
		assert.NotContains(t, rec.Body.String(), "checkout.stripe.test")
		assert.Len(t, o.orders.orders, 1, "pending order is left behind")
	})

	t.Run("anonymous is unauthenticated", func(t *testing.T) {
		o := newOrderRouter(t, shoe)
		rec := o.do(http.MethodPost, "/api/order/checkout", "", map[string]interface{}{"products": []interface{}{line(1)}})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, o.orders.orders)
	})
}

func TestOrderQueryRoutes(t *testing.T) {
	shoe := catalog.Product{ID: uuid.New(), Title: "shoe", Price: decimal.RequireFromString("10.00")}
	o := newOrderRouter(t, shoe)

	rec := o.do(http.MethodPost, "/api/order/checkout", o.alice, map[string]interface{}{
		"products": []interface{}{map[string]interface{}{"productId": shoe.ID, "price": "10.00", "quantity": 3}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	created := struct {
		Data struct {
			SessionID string `json:"sessionId"`
		} `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	t.Run("owner finds order by session", func(t *testing.T) {
		rec := o.do(http.MethodGet, "/api/order/by-session/"+created.Data.SessionID, o.alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := struct {
			Data struct {
				Order struct {
					Status      string          `json:"status"`
					TotalAmount decimal.Decimal `json:"totalAmount"`
				} `json:"order"`
			} `json:"data"`
		}{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "pending", body.Data.Order.Status)
		assert.True(t, decimal.RequireFromString("30.00").Equal(body.Data.Order.TotalAmount))
	})

	t.Run("other user gets not found", func(t *testing.T) {
		rec := o.do(http.MethodGet, "/api/order/by-session/"+created.Data.SessionID, o.bob, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("my orders are owner scoped", func(t *testing.T) {
		orders := func(token string) int {
			rec := o.do(http.MethodGet, "/api/order/my-orders", token, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			body := struct {
				Data struct {
					Orders []json.RawMessage `json:"orders"`
				} `json:"data"`
			}{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			return len(body.Data.Orders)
		}
		assert.Equal(t, 1, orders(o.alice))
		assert.Equal(t, 0, orders(o.bob))
	})
}
