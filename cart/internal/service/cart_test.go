package service

import (
	"context"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/repository"
)

// fakeCarts mirrors the SQL semantics of the cart queries in memory.
type fakeCarts struct {
	mu    sync.Mutex
	carts map[uuid.UUID]repository.Cart
	items map[uuid.UUID][]repository.CartItem
	seq   int64
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[uuid.UUID]repository.Cart{}, items: map[uuid.UUID][]repository.CartItem{}}
}

func (f *fakeCarts) UpsertCartItem(_ context.Context, arg repository.UpsertCartItemParams) (repository.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[arg.UserID]
	if !ok {
		cart = repository.Cart{ID: arg.CartID, UserID: arg.UserID, UpdatedAt: repository.Timestamptz(time.Now())}
		f.carts[arg.UserID] = cart
	}
	items := f.items[cart.ID]
	for i, item := range items {
		if item.ProductID == arg.ProductID {
			if item.Quantity > math.MaxInt32-arg.Quantity {
				return repository.CartItem{}, pgx.ErrNoRows
			}
			items[i].Quantity += arg.Quantity
			return items[i], nil
		}
	}
	f.seq++
	item := repository.CartItem{CartID: cart.ID, ProductID: arg.ProductID, Quantity: arg.Quantity, Seq: f.seq}
	f.items[cart.ID] = append(items, item)
	return item, nil
}

func (f *fakeCarts) FindCartByUserId(_ context.Context, userID uuid.UUID) (repository.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		return repository.Cart{}, pgx.ErrNoRows
	}
	return cart, nil
}

func (f *fakeCarts) FindCartItemsByCartId(_ context.Context, cartID uuid.UUID) ([]repository.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.CartItem{}, f.items[cartID]...), nil
}

func (f *fakeCarts) UpdateCartItemQuantity(_ context.Context, arg repository.UpdateCartItemQuantityParams) (repository.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[arg.UserID]
	if !ok {
		return repository.CartItem{}, pgx.ErrNoRows
	}
	items := f.items[cart.ID]
	for i, item := range items {
		if item.ProductID == arg.ProductID {
			items[i].Quantity = arg.Quantity
			return items[i], nil
		}
	}
	return repository.CartItem{}, pgx.ErrNoRows
}

func (f *fakeCarts) DeleteCartItem(_ context.Context, arg repository.DeleteCartItemParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[arg.UserID]
	if !ok {
		return 0, nil
	}
	items := f.items[cart.ID]
	for i, item := range items {
		if item.ProductID == arg.ProductID {
			f.items[cart.ID] = append(items[:i:i], items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeCarts) DeleteCartByUserId(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		return 0, nil
	}
	delete(f.items, cart.ID)
	delete(f.carts, userID)
	return 1, nil
}

type fakeCatalog struct {
	products map[uuid.UUID]catalog.Product
}

func (f *fakeCatalog) FindProductById(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, inErrors.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) FindProductsByIds(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	out := map[uuid.UUID]catalog.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newCatalogProduct(title string, price string) catalog.Product {
	return catalog.Product{ID: uuid.New(), Title: title, Price: decimal.RequireFromString(price)}
}

func setupService(products ...catalog.Product) (*CartService, *fakeCarts, *fakeCatalog, context.Context) {
	carts := newFakeCarts()
	cat := &fakeCatalog{products: map[uuid.UUID]catalog.Product{}}
	for _, p := range products {
		cat.products[p.ID] = p
	}
	c := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}).
		WithContext(context.Background())
	return NewCartService(carts, cat), carts, cat, c
}

func intPtr(i int) *int {
	return &i
}

func TestAddItem(t *testing.T) {
	mug := newCatalogProduct("mug", "10.00")

	testCases := []struct {
		name             string
		quantities       []*int
		productID        uuid.UUID
		expectedQuantity int32
		expectedErr      error
	}{
		{name: "omitted quantity defaults to one", quantities: []*int{nil}, productID: mug.ID, expectedQuantity: 1},
		{name: "repeated add merges quantities", quantities: []*int{intPtr(2), intPtr(3)}, productID: mug.ID, expectedQuantity: 5},
		{name: "zero quantity is rejected", quantities: []*int{intPtr(0)}, productID: mug.ID, expectedErr: inErrors.ErrInvalidArgument},
		{name: "negative quantity is rejected", quantities: []*int{intPtr(-2)}, productID: mug.ID, expectedErr: inErrors.ErrInvalidArgument},
		{name: "unknown product", quantities: []*int{intPtr(1)}, productID: uuid.New(), expectedErr: inErrors.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, carts, _, c := setupService(mug)
			userID := uuid.New()

			var err error
			for _, q := range tc.quantities {
				_, err = svc.AddItem(c, userID, request.AddItem{ProductID: tc.productID, Quantity: q})
			}
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				_, ok := carts.carts[userID]
				assert.False(t, ok, "failed add must not create a cart")
				return
			}
			require.NoError(t, err)

			cart, err := svc.snapshot(c, userID)
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)
			assert.EqualValues(t, tc.productID, cart.Items[0].ProductID)
			assert.EqualValues(t, tc.expectedQuantity, cart.Items[0].Quantity)
		})
	}
}

func TestAddItemKeepsInsertionOrder(t *testing.T) {
	mug, cup, plate := newCatalogProduct("mug", "10.00"), newCatalogProduct("cup", "4.50"), newCatalogProduct("plate", "7.25")
	svc, _, _, c := setupService(mug, cup, plate)
	userID := uuid.New()

	for _, p := range []catalog.Product{mug, cup, plate, mug} {
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: p.ID})
		require.NoError(t, err)
	}

	cart, err := svc.snapshot(c, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)
	assert.EqualValues(t, mug.ID, cart.Items[0].ProductID)
	assert.EqualValues(t, 2, cart.Items[0].Quantity)
	assert.EqualValues(t, cup.ID, cart.Items[1].ProductID)
	assert.EqualValues(t, plate.ID, cart.Items[2].ProductID)
}

func TestAddItemRejectsLineOverflow(t *testing.T) {
	mug := newCatalogProduct("mug", "10.00")
	svc, carts, _, c := setupService(mug)
	userID := uuid.New()

	_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID, Quantity: intPtr(math.MaxInt32)})
	require.NoError(t, err)

	_, err = svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID, Quantity: intPtr(1)})
	assert.ErrorIs(t, err, inErrors.ErrInvalidArgument)

	cart, err := svc.snapshot(c, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.EqualValues(t, math.MaxInt32, cart.Items[0].Quantity)
	assert.Len(t, carts.items, 1)
}

func TestGetCart(t *testing.T) {
	mug := newCatalogProduct("mug", "10.00")
	cup := newCatalogProduct("cup", "4.99")

	t.Run("prices resolvable items", func(t *testing.T) {
		svc, _, _, c := setupService(mug, cup)
		userID := uuid.New()
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID, Quantity: intPtr(2)})
		require.NoError(t, err)

		view, err := svc.GetCart(c, userID)
		require.NoError(t, err)
		require.NotNil(t, view)
		assert.True(t, decimal.RequireFromString("20.00").Equal(view.Subtotal))
		assert.True(t, decimal.RequireFromString("1.60").Equal(view.Tax))
		assert.True(t, decimal.Zero.Equal(view.Shipping))
		assert.True(t, decimal.RequireFromString("21.60").Equal(view.Total))
	})

	t.Run("skips deleted products", func(t *testing.T) {
		svc, _, cat, c := setupService(mug, cup)
		userID := uuid.New()
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID})
		require.NoError(t, err)
		_, err = svc.AddItem(c, userID, request.AddItem{ProductID: cup.ID, Quantity: intPtr(3)})
		require.NoError(t, err)
		delete(cat.products, mug.ID)

		view, err := svc.GetCart(c, userID)
		require.NoError(t, err)
		require.NotNil(t, view)
		require.Len(t, view.Items, 1)
		assert.True(t, decimal.RequireFromString("14.97").Equal(view.Subtotal))
		assert.True(t, decimal.RequireFromString("1.20").Equal(view.Tax))
		assert.True(t, decimal.RequireFromString("16.17").Equal(view.Total))
	})

	t.Run("no cart is empty", func(t *testing.T) {
		svc, _, _, c := setupService(mug)
		view, err := svc.GetCart(c, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, view)
	})

	t.Run("all products deleted evicts cart", func(t *testing.T) {
		svc, carts, cat, c := setupService(mug)
		userID := uuid.New()
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID})
		require.NoError(t, err)
		delete(cat.products, mug.ID)

		view, err := svc.GetCart(c, userID)
		require.NoError(t, err)
		assert.Nil(t, view)
		_, ok := carts.carts[userID]
		assert.False(t, ok)
	})

	t.Run("emptied cart is evicted on read", func(t *testing.T) {
		svc, carts, _, c := setupService(mug)
		userID := uuid.New()
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID})
		require.NoError(t, err)
		_, err = svc.RemoveItem(c, userID, mug.ID)
		require.NoError(t, err)
		_, ok := carts.carts[userID]
		assert.True(t, ok, "emptied cart persists until read")

		view, err := svc.GetCart(c, userID)
		require.NoError(t, err)
		assert.Nil(t, view)
		_, ok = carts.carts[userID]
		assert.False(t, ok)
	})
}

func TestUpdateQuantity(t *testing.T) {
	mug := newCatalogProduct("mug", "10.00")
	cup := newCatalogProduct("cup", "4.50")

	testCases := []struct {
		name             string
		seed             bool
		productID        uuid.UUID
		newQuantity      *int
		expectedQuantity int32
		expectedErr      error
	}{
		{name: "updates existing line", seed: true, productID: mug.ID, newQuantity: intPtr(7), expectedQuantity: 7},
		{name: "zero is rejected", seed: true, productID: mug.ID, newQuantity: intPtr(0), expectedQuantity: 2, expectedErr: inErrors.ErrInvalidArgument},
		{name: "missing quantity is rejected", seed: true, productID: mug.ID, expectedQuantity: 2, expectedErr: inErrors.ErrInvalidArgument},
		{name: "product not in cart", seed: true, productID: cup.ID, newQuantity: intPtr(1), expectedQuantity: 2, expectedErr: inErrors.ErrCartItemMissing},
		{name: "no cart", productID: mug.ID, newQuantity: intPtr(1), expectedErr: inErrors.ErrCartNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _, c := setupService(mug, cup)
			userID := uuid.New()
			if tc.seed {
				_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID, Quantity: intPtr(2)})
				require.NoError(t, err)
			}

			cart, err := svc.UpdateQuantity(c, userID, tc.productID, request.UpdateQuantity{NewQuantity: tc.newQuantity})
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				if tc.seed {
					cart, err = svc.snapshot(c, userID)
					require.NoError(t, err)
					require.Len(t, cart.Items, 1, "cart must be unchanged")
					assert.EqualValues(t, tc.expectedQuantity, cart.Items[0].Quantity)
				}
				return
			}
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)
			assert.EqualValues(t, tc.expectedQuantity, cart.Items[0].Quantity)
		})
	}
}

func TestRemoveItem(t *testing.T) {
	mug := newCatalogProduct("mug", "10.00")
	cup := newCatalogProduct("cup", "4.50")

	t.Run("removes the matching line", func(t *testing.T) {
		svc, _, _, c := setupService(mug, cup)
		userID := uuid.New()
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID})
		require.NoError(t, err)
		_, err = svc.AddItem(c, userID, request.AddItem{ProductID: cup.ID})
		require.NoError(t, err)

		cart, err := svc.RemoveItem(c, userID, mug.ID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.EqualValues(t, cup.ID, cart.Items[0].ProductID)
	})

	t.Run("absent item", func(t *testing.T) {
		svc, _, _, c := setupService(mug, cup)
		userID := uuid.New()
		_, err := svc.AddItem(c, userID, request.AddItem{ProductID: mug.ID})
		require.NoError(t, err)

		_, err = svc.RemoveItem(c, userID, cup.ID)
		assert.ErrorIs(t, err, inErrors.ErrCartItemMissing)
	})

	t.Run("no cart", func(t *testing.T) {
		svc, _, _, c := setupService(mug)
		_, err := svc.RemoveItem(c, uuid.New(), mug.ID)
		assert.ErrorIs(t, err, inErrors.ErrCartNotFound)
	})
}
