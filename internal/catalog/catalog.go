package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
)

const (
	keyProduct = "products:%s"
	defaultTTL = time.Hour
)

type Product struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	CreatedBy   uuid.UUID       `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func ProductFromRow(p repository.Product) Product {
	return Product{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Price:       repository.DecimalFromNumeric(p.Price),
		Image:       p.Image,
		CreatedBy:   repository.UUIDFromNullable(p.CreatedBy),
		CreatedAt:   p.CreatedAt.Time,
		UpdatedAt:   p.UpdatedAt.Time,
	}
}

type ProductQuerier interface {
	FindProductById(ctx context.Context, id uuid.UUID) (repository.Product, error)
	FindProductsByIds(ctx context.Context, ids []uuid.UUID) ([]repository.Product, error)
}

// Catalog resolves products cache-aside. Redis failures degrade to database
// reads and are only logged.
type Catalog struct {
	queries ProductQuerier
	cache   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
}

func NewCatalog(queries ProductQuerier, cache *redis.Client) *Catalog {
	return &Catalog{queries: queries, cache: cache, ttl: defaultTTL}
}

func cacheKey(id uuid.UUID) string {
	return fmt.Sprintf(keyProduct, id.String())
}

func (cat *Catalog) FindProductById(c context.Context, id uuid.UUID) (Product, error) {
	c, span := otel.Tracer.Start(c, "Catalog FindProductById")
	defer span.End()

	key := cacheKey(id)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Catalog FindProductById").
		Str(log.KeyProductID, id.String()).
		Str(log.KeyCacheKey, key).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "finding product in cache").Logger()
	logger.Trace().Msg("finding product in cache")
	product, err := cat.getCached(c, key)
	if err == nil {
		logger.Trace().Msg("found product in cache")
		return product, nil
	}
	if !errors.Is(err, redis.Nil) {
		logger.Warn().Err(err).Msg("failed reading product from cache")
	}

	logger = logger.With().Str(log.KeyProcess, "finding product in db").Logger()
	logger.Trace().Msg("finding product in db")
	// the flight is shared by every joined caller and outlives any one of them
	shared := context.WithoutCancel(c)
	v, err, _ := cat.group.Do(key, func() (interface{}, error) {
		row, err := cat.queries.FindProductById(shared, id)
		if err != nil {
			return Product{}, err
		}
		product := ProductFromRow(row)
		cat.setCached(shared, product)
		return product, nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("failed finding productId=%s with error=%w", id.String(), inErrors.ErrProductNotFound)
		otel.RecordError(err, span)
		logger.Info().Err(err).Msg(err.Error())
		return Product{}, err
	}
	if err != nil {
		err = fmt.Errorf("failed finding productId=%s with error=%w", id.String(), err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Product{}, err
	}
	logger.Trace().Msg("found product in db")

	return v.(Product), nil
}

// FindProductsByIds returns the products that exist, keyed by id. Missing ids
// are absent from the map.
func (cat *Catalog) FindProductsByIds(c context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	c, span := otel.Tracer.Start(c, "Catalog FindProductsByIds")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Catalog FindProductsByIds").
		Int(log.KeyProductIDs, len(ids)).
		Logger()

	products := make(map[uuid.UUID]Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	logger = logger.With().Str(log.KeyProcess, "finding products in cache").Logger()
	logger.Trace().Msg("finding products in cache")
	misses := cat.getManyCached(c, ids, products)
	logger.Trace().Int("misses", len(misses)).Msg("found products in cache")
	if len(misses) == 0 {
		return products, nil
	}

	logger = logger.With().Str(log.KeyProcess, "finding products in db").Logger()
	logger.Trace().Msg("finding products in db")
	rows, err := cat.queries.FindProductsByIds(c, misses)
	if err != nil {
		err = fmt.Errorf("failed finding products with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	for _, row := range rows {
		product := ProductFromRow(row)
		products[product.ID] = product
		cat.setCached(c, product)
	}
	logger.Trace().Int("found", len(rows)).Msg("found products in db")

	return products, nil
}

// Invalidate drops the cached entries of ids.
func (cat *Catalog) Invalidate(c context.Context, ids ...uuid.UUID) error {
	c, span := otel.Tracer.Start(c, "Catalog Invalidate")
	defer span.End()

	if cat.cache == nil || len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	if err := cat.cache.Del(c, keys...).Err(); err != nil {
		err = fmt.Errorf("failed invalidating product cache with error=%w", err)
		otel.RecordError(err, span)
		zerolog.Ctx(c).Error().Err(err).Str(log.KeyTag, "Catalog Invalidate").Msg(err.Error())
		return err
	}
	return nil
}

func (cat *Catalog) getCached(c context.Context, key string) (Product, error) {
	if cat.cache == nil {
		return Product{}, redis.Nil
	}
	raw, err := cat.cache.Get(c, key).Bytes()
	if err != nil {
		return Product{}, err
	}
	product := Product{}
	if err := json.Unmarshal(raw, &product); err != nil {
		return Product{}, fmt.Errorf("failed unmarshaling cached product with error=%w", err)
	}
	return product, nil
}

func (cat *Catalog) getManyCached(c context.Context, ids []uuid.UUID, into map[uuid.UUID]Product) []uuid.UUID {
	if cat.cache == nil {
		return ids
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}
	values, err := cat.cache.MGet(c, keys...).Result()
	if err != nil {
		zerolog.Ctx(c).Warn().Err(err).Msg("failed reading products from cache")
		return ids
	}
	misses := []uuid.UUID{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		product := Product{}
		if err := json.Unmarshal([]byte(raw), &product); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		into[ids[i]] = product
	}
	return misses
}

func (cat *Catalog) setCached(c context.Context, product Product) {
	if cat.cache == nil {
		return
	}
	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := cat.cache.Set(c, cacheKey(product.ID), data, cat.ttl).Err(); err != nil {
		zerolog.Ctx(c).Warn().Err(err).Str(log.KeyProductID, product.ID.String()).Msg("failed caching product")
	}
}
