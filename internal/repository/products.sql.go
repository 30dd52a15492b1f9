package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, title, description, category, price, image, created_by, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.Category,
		&i.Price,
		&i.Image,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanProducts(rows pgx.Rows, err error) ([]Product, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Product{}
	for rows.Next() {
		i, err := scanProduct(rows)
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

const insertProduct = `-- name: InsertProduct :one
INSERT INTO products (id, title, description, category, price, image, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + productColumns

type InsertProductParams struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Price       pgtype.Numeric `json:"price"`
	Image       string         `json:"image"`
	CreatedBy   pgtype.UUID    `json:"created_by"`
}

func (q *Queries) InsertProduct(ctx context.Context, arg InsertProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, insertProduct,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.Category,
		arg.Price,
		arg.Image,
		arg.CreatedBy,
	)
	return scanProduct(row)
}

const findProductById = `-- name: FindProductById :one
SELECT ` + productColumns + `
FROM products
WHERE id = $1
`

func (q *Queries) FindProductById(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, findProductById, id))
}

const findProductsByIds = `-- name: FindProductsByIds :many
SELECT ` + productColumns + `
FROM products
WHERE id = ANY($1::uuid[])
`

func (q *Queries) FindProductsByIds(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	return scanProducts(q.db.Query(ctx, findProductsByIds, ids))
}

const findProducts = `-- name: FindProducts :many
SELECT ` + productColumns + `
FROM products
ORDER BY created_at DESC, id
`

func (q *Queries) FindProducts(ctx context.Context) ([]Product, error) {
	return scanProducts(q.db.Query(ctx, findProducts))
}

const findProductsByCategory = `-- name: FindProductsByCategory :many
SELECT ` + productColumns + `
FROM products
WHERE category ILIKE '%' || $1::text || '%'
ORDER BY created_at DESC, id
`

func (q *Queries) FindProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	return scanProducts(q.db.Query(ctx, findProductsByCategory, category))
}

const findProductsByOwner = `-- name: FindProductsByOwner :many
SELECT ` + productColumns + `
FROM products
WHERE created_by = $1
ORDER BY created_at DESC, id
`

func (q *Queries) FindProductsByOwner(ctx context.Context, createdBy uuid.UUID) ([]Product, error) {
	return scanProducts(q.db.Query(ctx, findProductsByOwner, createdBy))
}

const updateProduct = `-- name: UpdateProduct :one
UPDATE products
SET title       = COALESCE($2, title),
    description = COALESCE($3, description),
    category    = COALESCE($4, category),
    price       = COALESCE($5, price),
    image       = COALESCE($6, image),
    updated_at  = now()
WHERE id = $1
RETURNING ` + productColumns

type UpdateProductParams struct {
	ID          uuid.UUID      `json:"id"`
	Title       pgtype.Text    `json:"title"`
	Description pgtype.Text    `json:"description"`
	Category    pgtype.Text    `json:"category"`
	Price       pgtype.Numeric `json:"price"`
	Image       pgtype.Text    `json:"image"`
}

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, updateProduct,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.Category,
		arg.Price,
		arg.Image,
	)
	return scanProduct(row)
}

const deleteProduct = `-- name: DeleteProduct :execrows
DELETE FROM products
WHERE id = $1
`

func (q *Queries) DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteProduct, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
