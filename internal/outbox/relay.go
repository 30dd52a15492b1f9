package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Alturino/storefront/internal/event"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/metrics"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/repository"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Store interface {
	RelayOutboxTx(
		ctx context.Context,
		limit int32,
		publish func(context.Context, []repository.OutboxEvent) error,
	) (int, error)
}

// Relay publishes committed outbox rows to the broker. Delivery is at least
// once; consumers dedupe on the event id.
type Relay struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int32
	metrics   *metrics.Metrics
}

func NewRelay(store Store, publisher Publisher, interval time.Duration, m *metrics.Metrics) *Relay {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: defaultBatchSize,
		metrics:   m,
	}
}

// Run relays on every tick until c is cancelled. A failed round is logged and
// retried on the next tick.
func (r *Relay) Run(c context.Context) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Relay Run").
		Str(log.KeyProcess, "relaying outbox").
		Logger()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", r.interval).Msg("start relaying outbox")
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stop relaying outbox")
			return nil
		case <-ticker.C:
			requestID := uuid.NewString()
			roundLogger := logger.With().Str(log.KeyRequestID, requestID).Logger()
			roundCtx := log.AttachRequestIDToContext(roundLogger.WithContext(c), requestID)

			for {
				count, err := r.RelayOnce(roundCtx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					roundLogger.Error().Err(err).Msg(err.Error())
					break
				}
				if count < int(r.batchSize) {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many events were marked sent.
func (r *Relay) RelayOnce(c context.Context) (int, error) {
	c, span := otel.Tracer.Start(c, "Relay RelayOnce")
	defer span.End()

	logger := zerolog.Ctx(c).With().Str(log.KeyTag, "Relay RelayOnce").Logger()

	count, err := r.store.RelayOutboxTx(c, r.batchSize, r.publish)
	if err != nil {
		err = fmt.Errorf("failed relaying outbox with error=%w", err)
		otel.RecordError(err, span)
		return 0, err
	}
	if count > 0 {
		r.metrics.ObserveOutboxPublished(count)
		logger.Info().Int(log.KeyOutboxCount, count).Msg("relayed outbox events")
	}

	return count, nil
}

func (r *Relay) publish(c context.Context, events []repository.OutboxEvent) error {
	messages := make([]kafka.Message, len(events))
	for i, e := range events {
		messages[i] = Message(e)
	}
	return r.publisher.WriteMessages(c, messages...)
}

func Message(e repository.OutboxEvent) kafka.Message {
	return kafka.Message{
		Topic: e.Topic,
		Key:   []byte(e.Key),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: event.HeaderEventType, Value: []byte(e.EventType)},
			{Key: event.HeaderEventID, Value: []byte(e.EventID.String())},
		},
		Time: e.CreatedAt.Time,
	}
}
