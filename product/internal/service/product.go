package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
	"github.com/Alturino/storefront/internal/validate"
	"github.com/Alturino/storefront/product/pkg/request"
)

type ProductQuerier interface {
	InsertProduct(ctx context.Context, arg repository.InsertProductParams) (repository.Product, error)
	FindProducts(ctx context.Context) ([]repository.Product, error)
	FindProductsByCategory(ctx context.Context, category string) ([]repository.Product, error)
	FindProductsByOwner(ctx context.Context, createdBy uuid.UUID) ([]repository.Product, error)
	UpdateProduct(ctx context.Context, arg repository.UpdateProductParams) (repository.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error)
}

// ProductCache is the cache-aside catalog. Writes go to the database and
// evict the cached entry.
type ProductCache interface {
	FindProductById(c context.Context, id uuid.UUID) (catalog.Product, error)
	Invalidate(c context.Context, ids ...uuid.UUID) error
}

type ProductService struct {
	queries ProductQuerier
	catalog ProductCache
}

func NewProductService(queries ProductQuerier, catalog ProductCache) *ProductService {
	return &ProductService{queries: queries, catalog: catalog}
}

func (svc *ProductService) InsertProduct(
	c context.Context,
	ownerID uuid.UUID,
	param request.CreateProduct,
) (catalog.Product, error) {
	c, span := otel.Tracer.Start(c, "ProductService InsertProduct")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductService InsertProduct").
		Str(log.KeyUserID, ownerID.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating product").Logger()
	if err := validate.Struct(c, param); err != nil {
		err = fmt.Errorf("failed validating product with error=%w", err)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return catalog.Product{}, err
	}

	logger = logger.With().Str(log.KeyProcess, "inserting product").Logger()
	logger.Info().Msg("inserting product")
	row, err := svc.queries.InsertProduct(c, repository.InsertProductParams{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(param.Title),
		Description: param.Description,
		Category:    strings.TrimSpace(param.Category),
		Price:       repository.NumericFromDecimal(param.Price.Round(2)),
		Image:       param.Image,
		CreatedBy:   repository.NullableUUID(ownerID),
	})
	if err != nil {
		err = fmt.Errorf("failed inserting product with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return catalog.Product{}, err
	}
	product := catalog.ProductFromRow(row)
	logger.Info().Str(log.KeyProductID, product.ID.String()).Msg("inserted product")

	return product, nil
}

func (svc *ProductService) FindProducts(c context.Context) ([]catalog.Product, error) {
	c, span := otel.Tracer.Start(c, "ProductService FindProducts")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductService FindProducts").
		Str(log.KeyProcess, "finding products").
		Logger()

	logger.Info().Msg("finding products")
	rows, err := svc.queries.FindProducts(c)
	if err != nil {
		err = fmt.Errorf("failed finding products with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int("products", len(rows)).Msg("found products")

	return fromRows(rows), nil
}

// FindProductsByCategory matches category case-insensitively as a substring.
func (svc *ProductService) FindProductsByCategory(c context.Context, category string) ([]catalog.Product, error) {
	c, span := otel.Tracer.Start(c, "ProductService FindProductsByCategory")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductService FindProductsByCategory").
		Str(log.KeyCategory, category).
		Str(log.KeyProcess, "finding products by category").
		Logger()

	category = strings.TrimSpace(category)
	if category == "" {
		err := fmt.Errorf("%w: category is required", inErrors.ErrInvalidArgument)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return nil, err
	}

	logger.Info().Msg("finding products by category")
	rows, err := svc.queries.FindProductsByCategory(c, category)
	if err != nil {
		err = fmt.Errorf("failed finding products by category with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int("products", len(rows)).Msg("found products by category")

	return fromRows(rows), nil
}

func (svc *ProductService) FindProductsByOwner(c context.Context, ownerID uuid.UUID) ([]catalog.Product, error) {
	c, span := otel.Tracer.Start(c, "ProductService FindProductsByOwner")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductService FindProductsByOwner").
		Str(log.KeyUserID, ownerID.String()).
		Str(log.KeyProcess, "finding products by owner").
		Logger()

	logger.Info().Msg("finding products by owner")
	rows, err := svc.queries.FindProductsByOwner(c, ownerID)
	if err != nil {
		err = fmt.Errorf("failed finding products by owner with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int("products", len(rows)).Msg("found products by owner")

	return fromRows(rows), nil
}

func (svc *ProductService) FindProductById(c context.Context, id uuid.UUID) (catalog.Product, error) {
	c, span := otel.Tracer.Start(c, "ProductService FindProductById")
	defer span.End()

	product, err := svc.catalog.FindProductById(c, id)
	if err != nil {
		otel.RecordError(err, span)
		return catalog.Product{}, err
	}
	return product, nil
}

// UpdateProduct applies the non-nil fields of param and evicts the cached
// product.
func (svc *ProductService) UpdateProduct(
	c context.Context,
	id uuid.UUID,
	param request.UpdateProduct,
) (catalog.Product, error) {
	c, span := otel.Tracer.Start(c, "ProductService UpdateProduct")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductService UpdateProduct").
		Str(log.KeyProductID, id.String()).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating patch").Logger()
	if param.Empty() {
		err := fmt.Errorf("%w: patch has no fields", inErrors.ErrInvalidArgument)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return catalog.Product{}, err
	}
	if err := validate.Struct(c, param); err != nil {
		err = fmt.Errorf("failed validating patch with error=%w", err)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return catalog.Product{}, err
	}

	arg := repository.UpdateProductParams{
		ID:          id,
		Title:       repository.NullableText(param.Title),
		Description: repository.NullableText(param.Description),
		Category:    repository.NullableText(param.Category),
		Image:       repository.NullableText(param.Image),
	}
	if param.Price != nil {
		price := param.Price.Round(2)
		arg.Price = repository.NullableNumeric(&price)
	}

	logger = logger.With().Str(log.KeyProcess, "updating product").Logger()
	logger.Info().Msg("updating product")
	row, err := svc.queries.UpdateProduct(c, arg)
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("failed updating product with error=%w", inErrors.ErrProductNotFound)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return catalog.Product{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed updating product with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return catalog.Product{}, err
	}
	logger.Info().Msg("updated product")

	svc.invalidate(logger.WithContext(c), id)
	return catalog.ProductFromRow(row), nil
}

func (svc *ProductService) DeleteProduct(c context.Context, id uuid.UUID) error {
	c, span := otel.Tracer.Start(c, "ProductService DeleteProduct")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductService DeleteProduct").
		Str(log.KeyProductID, id.String()).
		Str(log.KeyProcess, "deleting product").
		Logger()

	logger.Info().Msg("deleting product")
	deleted, err := svc.queries.DeleteProduct(c, id)
	if err != nil {
		err = fmt.Errorf("failed deleting product with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if deleted == 0 {
		err = fmt.Errorf("failed deleting product with error=%w", inErrors.ErrProductNotFound)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("deleted product")

	svc.invalidate(logger.WithContext(c), id)
	return nil
}

// invalidate only logs failures. A stale entry expires with its TTL.
func (svc *ProductService) invalidate(c context.Context, id uuid.UUID) {
	if err := svc.catalog.Invalidate(c, id); err != nil {
		zerolog.Ctx(c).Warn().Err(err).Msg("failed invalidating cached product")
	}
}

func fromRows(rows []repository.Product) []catalog.Product {
	products := make([]catalog.Product, len(rows))
	for i, row := range rows {
		products[i] = catalog.ProductFromRow(row)
	}
	return products
}
