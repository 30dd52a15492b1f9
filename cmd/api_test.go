package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/payment"
	"github.com/Alturino/storefront/internal/testutil"
)

const (
	e2eWebhookSecret = "whsec_e2e"
	e2eSessionID     = "cs_test_e2e"
	e2eAdminEmail    = "admin@storefront.test"
)

// stripeDouble answers checkout session creation with a fixed session.
type stripeDouble struct {
	mu       sync.Mutex
	metadata map[string]string
}

func (s *stripeDouble) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/checkout/sessions" || r.ParseForm() != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.mu.Lock()
	s.metadata = map[string]string{
		payment.MetadataOrderID: r.PostForm.Get("metadata[" + payment.MetadataOrderID + "]"),
		payment.MetadataUserID:  r.PostForm.Get("metadata[" + payment.MetadataUserID + "]"),
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     e2eSessionID,
		"object": "checkout.session",
		"url":    "https://checkout.stripe.test/" + e2eSessionID,
	})
}

type apiClient struct {
	t      *testing.T
	c      context.Context
	router *mux.Router
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (a apiClient) do(method string, path string, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	buf := &bytes.Buffer{}
	if body != nil {
		require.NoError(a.t, json.NewEncoder(buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, buf).WithContext(a.c)
	req.Header.Set(inHttp.HeaderContentType, inHttp.HeaderValueJson)
	if token != "" {
		req.Header.Set(inHttp.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	e := envelope{}
	if rec.Body.Len() > 0 && rec.Header().Get(inHttp.HeaderContentType) == inHttp.HeaderValueJson {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &e))
	}
	return rec.Code, e
}

func (a apiClient) login(username string, email string) string {
	a.t.Helper()
	status, _ := a.do(http.MethodPost, "/api/user/register", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "password1",
	})
	require.Equal(a.t, http.StatusCreated, status)

	status, e := a.do(http.MethodPost, "/api/user/login", "", map[string]string{"email": email, "password": "password1"})
	require.Equal(a.t, http.StatusOK, status)
	data := struct {
		Token string `json:"token"`
	}{}
	require.NoError(a.t, json.Unmarshal(e.Data, &data))
	return data.Token
}

func decodeData(t *testing.T, e envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v))
}

func TestApiCheckoutToPaidOrder(t *testing.T) {
	testutil.SkipShort(t)
	c := testutil.Context()
	pool := testutil.Postgres(t, c)
	cache := testutil.Redis(t, c)

	stripeApi := &stripeDouble{}
	stripeServer := httptest.NewServer(stripeApi)
	t.Cleanup(stripeServer.Close)

	cfg := &config.Config{
		Application: config.Application{
			Env:            "test",
			SecretKey:      "e2e-secret",
			FrontendURL:    "http://shop.test",
			AccessTokenTTL: time.Hour,
			AdminEmails:    []string{e2eAdminEmail},
		},
		Payment: config.Payment{
			SecretKey:       "sk_test_e2e",
			WebhookSecret:   e2eWebhookSecret,
			ApiURL:          stripeServer.URL,
			Currency:        "usd",
			Timeout:         5 * time.Second,
			MaxWebhookBytes: 64 << 10,
		},
		Kafka: config.Kafka{Topic: "storefront.orders"},
	}
	registry := prometheus.NewRegistry()
	router := newRouter(apiDependencies{
		Config:   cfg,
		Pool:     pool,
		Cache:    cache,
		Provider: payment.NewStripe(cfg.Payment),
		Registry: registry,
	})
	api := apiClient{t: t, c: c, router: router}

	status, _ := api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)

	admin := api.login("admin", e2eAdminEmail)
	customer := api.login("alice", "alice@storefront.test")

	status, _ = api.do(http.MethodPost, "/api/products", customer, map[string]string{"title": "Shoe", "price": "10.00"})
	require.Equal(t, http.StatusForbidden, status)

	status, e := api.do(http.MethodPost, "/api/products", admin, map[string]string{
		"title":    "Shoe",
		"category": "footwear",
		"price":    "10.00",
		"image":    "https://img.storefront.test/shoe.png",
	})
	require.Equal(t, http.StatusCreated, status)
	created := struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
	}{}
	decodeData(t, e, &created)
	productID := created.Product.ID

	status, _ = api.do(http.MethodPost, "/api/cart", customer, map[string]interface{}{"productId": productID, "quantity": 2})
	require.Equal(t, http.StatusOK, status)

	status, e = api.do(http.MethodGet, "/api/cart", customer, nil)
	require.Equal(t, http.StatusOK, status)
	cartView := struct {
		Cart struct {
			Subtotal decimal.Decimal `json:"subtotal"`
			Tax      decimal.Decimal `json:"tax"`
			Total    decimal.Decimal `json:"total"`
		} `json:"cart"`
		Empty bool `json:"empty"`
	}{}
	decodeData(t, e, &cartView)
	assert.False(t, cartView.Empty)
	assert.True(t, decimal.RequireFromString("20.00").Equal(cartView.Cart.Subtotal), cartView.Cart.Subtotal.String())
	assert.True(t, decimal.RequireFromString("1.60").Equal(cartView.Cart.Tax), cartView.Cart.Tax.String())
	assert.True(t, decimal.RequireFromString("21.60").Equal(cartView.Cart.Total), cartView.Cart.Total.String())

	status, e = api.do(http.MethodPost, "/api/order/checkout", customer, map[string]interface{}{
		"products": []map[string]interface{}{
			{"productId": productID, "title": "Shoe", "price": "1.00", "quantity": 2},
		},
	})
	require.Equal(t, http.StatusOK, status)
	checkout := struct {
		URL       string `json:"url"`
		SessionID string `json:"sessionId"`
		OrderID   string `json:"orderId"`
	}{}
	decodeData(t, e, &checkout)
	assert.Equal(t, e2eSessionID, checkout.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/"+e2eSessionID, checkout.URL)

	type orderView struct {
		Order struct {
			ID          string          `json:"id"`
			Status      string          `json:"status"`
			TotalAmount decimal.Decimal `json:"totalAmount"`
			PaymentID   *string         `json:"paymentId"`
		} `json:"order"`
	}
	status, e = api.do(http.MethodGet, "/api/order/by-session/"+e2eSessionID, customer, nil)
	require.Equal(t, http.StatusOK, status)
	pending := orderView{}
	decodeData(t, e, &pending)
	assert.Equal(t, checkout.OrderID, pending.Order.ID)
	assert.Equal(t, "pending", pending.Order.Status)
	assert.True(t, decimal.RequireFromString("20.00").Equal(pending.Order.TotalAmount), pending.Order.TotalAmount.String())

	status, _ = api.do(http.MethodGet, "/api/order/by-session/"+e2eSessionID, admin, nil)
	assert.Equal(t, http.StatusNotFound, status)

	stripeApi.mu.Lock()
	metadata := stripeApi.metadata
	stripeApi.mu.Unlock()
	assert.Equal(t, checkout.OrderID, metadata[payment.MetadataOrderID])

	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_e2e",
		"object":      "event",
		"type":        payment.EventCheckoutCompleted,
		"api_version": "2024-06-20",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             e2eSessionID,
				"object":         "checkout.session",
				"payment_intent": "pi_e2e",
				"payment_status": "paid",
				"metadata":       metadata,
			},
		},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    e2eWebhookSecret,
		Timestamp: time.Now(),
	})
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", bytes.NewReader(signed.Payload)).WithContext(c)
		req.Header.Set(constants.HeaderStripeSig, signed.Header)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	}

	status, e = api.do(http.MethodGet, "/api/order/by-session/"+e2eSessionID, customer, nil)
	require.Equal(t, http.StatusOK, status)
	paid := orderView{}
	decodeData(t, e, &paid)
	assert.Equal(t, "paid", paid.Order.Status)
	require.NotNil(t, paid.Order.PaymentID)
	assert.Equal(t, "pi_e2e", *paid.Order.PaymentID)

	status, e = api.do(http.MethodGet, "/api/cart", customer, nil)
	require.Equal(t, http.StatusOK, status)
	emptyCart := struct {
		Empty bool `json:"empty"`
	}{}
	decodeData(t, e, &emptyCart)
	assert.True(t, emptyCart.Empty)

	status, e = api.do(http.MethodGet, "/api/order/my-orders", customer, nil)
	require.Equal(t, http.StatusOK, status)
	orders := struct {
		Orders []struct {
			Status string `json:"status"`
		} `json:"orders"`
	}{}
	decodeData(t, e, &orders)
	require.Len(t, orders.Orders, 1)
	assert.Equal(t, "paid", orders.Orders[0].Status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil).WithContext(c)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	metricsBody, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), `storefront_payment_webhook_events_total{outcome="applied"`)
	assert.Contains(t, string(metricsBody), `storefront_payment_webhook_events_total{outcome="duplicate"`)
	assert.Contains(t, string(metricsBody), `storefront_checkouts_total{outcome="created"} 1`)
}
