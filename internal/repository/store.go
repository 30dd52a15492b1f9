package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/event"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

// Store adds the multi statement transactions on top of Queries.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

func (s *Store) execTx(c context.Context, fn func(*Queries) error) (err error) {
	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "Store execTx").Logger()

	logger = logger.With().Str(log.KeyProcess, "beginning transaction").Logger()
	logger.Trace().Msg("beginning transaction")
	tx, err := s.pool.BeginTx(c, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed beginning transaction with error=%w", err)
	}
	logger.Trace().Msg("began transaction")
	defer func() {
		rbErr := tx.Rollback(c)
		if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			rbErr = fmt.Errorf("failed rolling back transaction with error=%w", rbErr)
			logger.Error().Err(rbErr).Msg(rbErr.Error())
			err = errors.Join(err, rbErr)
		}
	}()

	if err = fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	logger = logger.With().Str(log.KeyProcess, "committing transaction").Logger()
	logger.Trace().Msg("committing transaction")
	if err = tx.Commit(c); err != nil {
		return fmt.Errorf("failed committing transaction with error=%w", err)
	}
	logger.Trace().Msg("committed transaction")

	return nil
}

type CreateOrderTxParams struct {
	Order InsertOrderParams
	Items []InsertOrderItemsParams
}

// CreateOrderTx persists a pending order and its lines atomically.
func (s *Store) CreateOrderTx(c context.Context, arg CreateOrderTxParams) (order Order, err error) {
	c, span := otel.Tracer.Start(c, "Store CreateOrderTx")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Store CreateOrderTx").
		Str(log.KeyOrderID, arg.Order.ID.String()).
		Logger()
	c = logger.WithContext(c)

	err = s.execTx(c, func(q *Queries) error {
		logger = logger.With().Str(log.KeyProcess, "inserting order").Logger()
		logger.Info().Msg("inserting order")
		order, err = q.InsertOrder(c, arg.Order)
		if err != nil {
			return fmt.Errorf("failed inserting order with error=%w", err)
		}
		logger.Info().Msg("inserted order")

		logger = logger.With().Str(log.KeyProcess, "inserting order items").Logger()
		logger.Info().Msg("inserting order items")
		count, err := q.InsertOrderItems(c, arg.Items)
		if err != nil {
			return fmt.Errorf("failed inserting order items with error=%w", err)
		}
		logger.Info().Msgf("inserted %d order items", count)
		return nil
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Order{}, err
	}

	return order, nil
}

type SettleOrderTxParams struct {
	OrderID   uuid.UUID
	UserID    uuid.UUID
	Status    OrderStatus
	PaymentID string
	SettledAt time.Time
	Topic     string
}

type SettleOrderTxResult struct {
	Order       Order
	Applied     bool
	CartCleared bool
}

// SettleOrderTx moves a pending order to a terminal status, clears the
// owner's cart when it is paid and appends the matching outbox event, all in
// one transaction. An order that is no longer pending is left untouched and
// reported with Applied false.
func (s *Store) SettleOrderTx(c context.Context, arg SettleOrderTxParams) (result SettleOrderTxResult, err error) {
	c, span := otel.Tracer.Start(c, "Store SettleOrderTx")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Store SettleOrderTx").
		Str(log.KeyOrderID, arg.OrderID.String()).
		Str(log.KeyUserID, arg.UserID.String()).
		Str(log.KeyOrderStatus, string(arg.Status)).
		Logger()
	c = logger.WithContext(c)

	if !arg.Status.Terminal() {
		err = fmt.Errorf("%w: status=%s is not terminal", inErrors.ErrInvalidArgument, arg.Status)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return SettleOrderTxResult{}, err
	}

	err = s.execTx(c, func(q *Queries) error {
		result = SettleOrderTxResult{}

		params := TransitionOrderStatusParams{
			ID:        arg.OrderID,
			UserID:    arg.UserID,
			Status:    arg.Status,
			PaymentID: Text(arg.PaymentID),
		}
		if arg.Status == OrderStatusPaid {
			params.PaidAt = Timestamptz(arg.SettledAt)
		}

		logger = logger.With().Str(log.KeyProcess, "transitioning order status").Logger()
		logger.Info().Msg("transitioning order status")
		order, err := q.TransitionOrderStatus(c, params)
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Info().Msg("order not transitioned, classifying")
			existing, findErr := q.FindOrderById(c, arg.OrderID)
			if errors.Is(findErr, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %w", inErrors.ErrDataInconsistency, inErrors.ErrOrderNotFound)
			}
			if findErr != nil {
				return fmt.Errorf("failed finding order with error=%w", findErr)
			}
			if existing.UserID != arg.UserID {
				return fmt.Errorf(
					"%w: order owner=%s does not match userId=%s",
					inErrors.ErrDataInconsistency,
					existing.UserID,
					arg.UserID,
				)
			}
			logger.Info().
				Str("currentStatus", string(existing.Status)).
				Msg("order already settled, skipping")
			result.Order = existing
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed transitioning order status with error=%w", err)
		}
		result.Order = order
		result.Applied = true
		logger.Info().Msg("transitioned order status")

		if order.Status == OrderStatusPaid {
			logger = logger.With().Str(log.KeyProcess, "clearing cart").Logger()
			logger.Info().Msg("clearing cart")
			deleted, err := q.DeleteCartByUserId(c, order.UserID)
			if err != nil {
				return fmt.Errorf("failed clearing cart with error=%w", err)
			}
			result.CartCleared = deleted > 0
			logger.Info().Int64("deletedCarts", deleted).Msg("cleared cart")
		}

		logger = logger.With().Str(log.KeyProcess, "appending outbox event").Logger()
		logger.Info().Msg("appending outbox event")
		payload := event.OrderEvent{
			EventID:     uuid.New(),
			Type:        event.TypeForStatus(string(order.Status)),
			OrderID:     order.ID,
			UserID:      order.UserID,
			Status:      string(order.Status),
			TotalAmount: DecimalFromNumeric(order.TotalAmount),
			PaymentID:   order.PaymentID.String,
			OccurredAt:  arg.SettledAt,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed marshaling outbox event with error=%w", err)
		}
		_, err = q.InsertOutboxEvent(c, InsertOutboxEventParams{
			EventID:   payload.EventID,
			EventType: payload.Type,
			Topic:     arg.Topic,
			Key:       order.ID.String(),
			Payload:   data,
		})
		if err != nil {
			return fmt.Errorf("failed inserting outbox event with error=%w", err)
		}
		logger.Info().Str(log.KeyEventType, payload.Type).Msg("appended outbox event")

		return nil
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return SettleOrderTxResult{}, err
	}

	return result, nil
}

// RelayOutboxTx locks up to limit pending events, hands them to publish and
// marks them sent only when publish succeeds. A failed publish rolls back and
// leaves the events pending.
func (s *Store) RelayOutboxTx(
	c context.Context,
	limit int32,
	publish func(context.Context, []OutboxEvent) error,
) (relayed int, err error) {
	c, span := otel.Tracer.Start(c, "Store RelayOutboxTx")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "Store RelayOutboxTx").Logger()
	c = logger.WithContext(c)

	err = s.execTx(c, func(q *Queries) error {
		relayed = 0

		logger = logger.With().Str(log.KeyProcess, "fetching pending outbox events").Logger()
		logger.Trace().Msg("fetching pending outbox events")
		events, err := q.FetchPendingOutboxEvents(c, limit)
		if err != nil {
			return fmt.Errorf("failed fetching pending outbox events with error=%w", err)
		}
		if len(events) == 0 {
			logger.Trace().Msg("no pending outbox events")
			return nil
		}
		logger.Info().Int(log.KeyOutboxCount, len(events)).Msg("fetched pending outbox events")

		logger = logger.With().Str(log.KeyProcess, "publishing outbox events").Logger()
		logger.Info().Msg("publishing outbox events")
		if err := publish(c, events); err != nil {
			return fmt.Errorf("failed publishing outbox events with error=%w", err)
		}
		logger.Info().Msg("published outbox events")

		ids := make([]int64, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		logger = logger.With().Str(log.KeyProcess, "marking outbox events sent").Logger()
		marked, err := q.MarkOutboxEventsSent(c, ids)
		if err != nil {
			return fmt.Errorf("failed marking outbox events sent with error=%w", err)
		}
		relayed = int(marked)
		logger.Info().Int64(log.KeyOutboxCount, marked).Msg("marked outbox events sent")
		return nil
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return 0, err
	}

	return relayed, nil
}
