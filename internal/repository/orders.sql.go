package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, total_amount, status, payment_session_id, payment_id, paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.TotalAmount,
		&i.Status,
		&i.PaymentSessionID,
		&i.PaymentID,
		&i.PaidAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertOrder = `-- name: InsertOrder :one
INSERT INTO orders (id, user_id, total_amount, status, payment_session_id)
VALUES ($1, $2, $3, 'pending', $4)
RETURNING ` + orderColumns

type InsertOrderParams struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"user_id"`
	TotalAmount      pgtype.Numeric `json:"total_amount"`
	PaymentSessionID string         `json:"payment_session_id"`
}

func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, insertOrder,
		arg.ID,
		arg.UserID,
		arg.TotalAmount,
		arg.PaymentSessionID,
	)
	return scanOrder(row)
}

type InsertOrderItemsParams struct {
	OrderID   uuid.UUID `json:"order_id"`
	Position  int32     `json:"position"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

type iteratorForInsertOrderItems struct {
	rows                 []InsertOrderItemsParams
	skippedFirstNextCall bool
}

func (r *iteratorForInsertOrderItems) Next() bool {
	if len(r.rows) == 0 {
		return false
	}
	if !r.skippedFirstNextCall {
		r.skippedFirstNextCall = true
		return true
	}
	r.rows = r.rows[1:]
	return len(r.rows) > 0
}

func (r iteratorForInsertOrderItems) Values() ([]interface{}, error) {
	return []interface{}{
		r.rows[0].OrderID,
		r.rows[0].Position,
		r.rows[0].ProductID,
		r.rows[0].Quantity,
	}, nil
}

func (r iteratorForInsertOrderItems) Err() error {
	return nil
}

// InsertOrderItems copies the order lines with the COPY protocol.
func (q *Queries) InsertOrderItems(ctx context.Context, arg []InsertOrderItemsParams) (int64, error) {
	return q.db.CopyFrom(
		ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "position", "product_id", "quantity"},
		&iteratorForInsertOrderItems{rows: arg},
	)
}

const updateOrderPaymentSession = `-- name: UpdateOrderPaymentSession :one
UPDATE orders
SET payment_session_id = $2,
    updated_at         = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderPaymentSessionParams struct {
	ID               uuid.UUID `json:"id"`
	PaymentSessionID string    `json:"payment_session_id"`
}

func (q *Queries) UpdateOrderPaymentSession(ctx context.Context, arg UpdateOrderPaymentSessionParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderPaymentSession, arg.ID, arg.PaymentSessionID))
}

const transitionOrderStatus = `-- name: TransitionOrderStatus :one
UPDATE orders
SET status     = $3,
    payment_id = COALESCE($4, payment_id),
    paid_at    = COALESCE($5, paid_at),
    updated_at = now()
WHERE id = $1
  AND user_id = $2
  AND status = 'pending'
RETURNING ` + orderColumns

type TransitionOrderStatusParams struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	Status    OrderStatus        `json:"status"`
	PaymentID pgtype.Text        `json:"payment_id"`
	PaidAt    pgtype.Timestamptz `json:"paid_at"`
}

// TransitionOrderStatus moves a pending order to a terminal status. It
// returns pgx.ErrNoRows when the order is missing, owned by someone else or
// no longer pending.
func (q *Queries) TransitionOrderStatus(ctx context.Context, arg TransitionOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, transitionOrderStatus,
		arg.ID,
		arg.UserID,
		arg.Status,
		arg.PaymentID,
		arg.PaidAt,
	)
	return scanOrder(row)
}

const findOrderById = `-- name: FindOrderById :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) FindOrderById(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, findOrderById, id))
}

const findOrderBySessionId = `-- name: FindOrderBySessionId :one
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
  AND payment_session_id = $2
`

type FindOrderBySessionIdParams struct {
	UserID           uuid.UUID `json:"user_id"`
	PaymentSessionID string    `json:"payment_session_id"`
}

func (q *Queries) FindOrderBySessionId(ctx context.Context, arg FindOrderBySessionIdParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, findOrderBySessionId, arg.UserID, arg.PaymentSessionID))
}

const findOrdersByUserId = `-- name: FindOrdersByUserId :many
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC, id
`

func (q *Queries) FindOrdersByUserId(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, findOrdersByUserId, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const findOrderItemsByOrderIds = `-- name: FindOrderItemsByOrderIds :many
SELECT order_id, position, product_id, quantity
FROM order_items
WHERE order_id = ANY($1::uuid[])
ORDER BY order_id, position
`

func (q *Queries) FindOrderItemsByOrderIds(ctx context.Context, orderIDs []uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, findOrderItemsByOrderIds, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.OrderID, &i.Position, &i.ProductID, &i.Quantity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
