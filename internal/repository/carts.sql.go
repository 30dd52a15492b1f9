package repository

import (
	"context"

	"github.com/google/uuid"
)

const upsertCartItem = `-- name: UpsertCartItem :one
WITH cart AS (
    INSERT INTO carts (id, user_id)
    VALUES ($1, $2)
    ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
    RETURNING id
)
INSERT INTO cart_items (cart_id, product_id, quantity)
SELECT id, $3, $4 FROM cart
ON CONFLICT (cart_id, product_id)
    DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
    WHERE cart_items.quantity <= 2147483647 - EXCLUDED.quantity
RETURNING cart_id, product_id, quantity, seq
`

type UpsertCartItemParams struct {
	CartID    uuid.UUID `json:"cart_id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

// UpsertCartItem creates the user's cart when missing and adds quantity to
// the product line in one statement. CartID is only used for a new cart. An
// increment that would overflow integer updates nothing and returns
// pgx.ErrNoRows.
func (q *Queries) UpsertCartItem(ctx context.Context, arg UpsertCartItemParams) (CartItem, error) {
	row := q.db.QueryRow(ctx, upsertCartItem,
		arg.CartID,
		arg.UserID,
		arg.ProductID,
		arg.Quantity,
	)
	var i CartItem
	err := row.Scan(&i.CartID, &i.ProductID, &i.Quantity, &i.Seq)
	return i, err
}

const findCartByUserId = `-- name: FindCartByUserId :one
SELECT id, user_id, created_at, updated_at
FROM carts
WHERE user_id = $1
`

func (q *Queries) FindCartByUserId(ctx context.Context, userID uuid.UUID) (Cart, error) {
	row := q.db.QueryRow(ctx, findCartByUserId, userID)
	var i Cart
	err := row.Scan(&i.ID, &i.UserID, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const findCartItemsByCartId = `-- name: FindCartItemsByCartId :many
SELECT cart_id, product_id, quantity, seq
FROM cart_items
WHERE cart_id = $1
ORDER BY seq
`

func (q *Queries) FindCartItemsByCartId(ctx context.Context, cartID uuid.UUID) ([]CartItem, error) {
	rows, err := q.db.Query(ctx, findCartItemsByCartId, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CartItem{}
	for rows.Next() {
		var i CartItem
		if err := rows.Scan(&i.CartID, &i.ProductID, &i.Quantity, &i.Seq); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateCartItemQuantity = `-- name: UpdateCartItemQuantity :one
UPDATE cart_items ci
SET quantity = $3
FROM carts c
WHERE ci.cart_id = c.id
  AND c.user_id = $1
  AND ci.product_id = $2
RETURNING ci.cart_id, ci.product_id, ci.quantity, ci.seq
`

type UpdateCartItemQuantityParams struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

func (q *Queries) UpdateCartItemQuantity(ctx context.Context, arg UpdateCartItemQuantityParams) (CartItem, error) {
	row := q.db.QueryRow(ctx, updateCartItemQuantity, arg.UserID, arg.ProductID, arg.Quantity)
	var i CartItem
	err := row.Scan(&i.CartID, &i.ProductID, &i.Quantity, &i.Seq)
	return i, err
}

const deleteCartItem = `-- name: DeleteCartItem :execrows
DELETE FROM cart_items ci
USING carts c
WHERE ci.cart_id = c.id
  AND c.user_id = $1
  AND ci.product_id = $2
`

type DeleteCartItemParams struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
}

func (q *Queries) DeleteCartItem(ctx context.Context, arg DeleteCartItemParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCartItem, arg.UserID, arg.ProductID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteCartByUserId = `-- name: DeleteCartByUserId :execrows
DELETE FROM carts
WHERE user_id = $1
`

func (q *Queries) DeleteCartByUserId(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCartByUserId, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
