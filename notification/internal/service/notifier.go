package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/Alturino/storefront/internal/event"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
)

const (
	keyNotifiedEvent = "notification:events:%s"
	notifiedEventTTL = 72 * time.Hour
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Notifier turns order events into customer notifications. Relay delivery is
// at least once, so events already notified are skipped by event id.
type Notifier struct {
	reader Reader
	cache  *redis.Client
}

func NewNotifier(reader Reader, cache *redis.Client) *Notifier {
	return &Notifier{reader: reader, cache: cache}
}

// Run consumes until c is cancelled. Every fetched message is committed,
// including the ones that could not be decoded.
func (n *Notifier) Run(c context.Context) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Notifier Run").
		Str(log.KeyProcess, "consuming order events").
		Logger()

	logger.Info().Msg("start consuming order events")
	for {
		msg, err := n.reader.FetchMessage(c)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || c.Err() != nil {
				logger.Info().Msg("stop consuming order events")
				return nil
			}
			err = fmt.Errorf("failed fetching message with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}

		if _, err := n.Handle(logger.WithContext(c), msg); err != nil {
			logger.Error().Err(err).Int64("offset", msg.Offset).Msg(err.Error())
		}

		if err := n.reader.CommitMessages(c, msg); err != nil {
			if c.Err() != nil {
				return nil
			}
			err = fmt.Errorf("failed committing message with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
	}
}

// Handle reports whether msg produced a notification.
func (n *Notifier) Handle(c context.Context, msg kafka.Message) (bool, error) {
	c, span := otel.Tracer.Start(c, "Notifier Handle")
	defer span.End()

	eventType := header(msg, event.HeaderEventType)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Notifier Handle").
		Str(log.KeyTopic, msg.Topic).
		Str(log.KeyEventType, eventType).
		Str(log.KeyEventID, header(msg, event.HeaderEventID)).
		Logger()

	if eventType != event.TypeOrderPaid {
		logger.Debug().Msg("skipping event without notification")
		return false, nil
	}

	logger = logger.With().Str(log.KeyProcess, "decoding event").Logger()
	e := event.OrderEvent{}
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		err = fmt.Errorf("failed decoding order event with error=%w", err)
		otel.RecordError(err, span)
		return false, err
	}

	logger = logger.With().
		Str(log.KeyOrderID, e.OrderID.String()).
		Str(log.KeyUserID, e.UserID.String()).
		Str(log.KeyProcess, "notifying customer").
		Logger()

	first, err := n.claim(c, e)
	if err != nil {
		logger.Warn().Err(err).Msg("failed claiming event, notifying anyway")
	}
	if !first {
		logger.Info().Msg("event already notified")
		return false, nil
	}

	logger.Info().
		Str(log.KeyTotalAmount, e.TotalAmount.StringFixed(2)).
		Str(log.KeyPaymentID, e.PaymentID).
		Time("paidAt", e.OccurredAt).
		Msg("payment received")

	return true, nil
}

// claim marks the event as notified and reports whether this call was the
// first. Without a cache every event is first.
func (n *Notifier) claim(c context.Context, e event.OrderEvent) (bool, error) {
	if n.cache == nil {
		return true, nil
	}
	ok, err := n.cache.SetNX(c, fmt.Sprintf(keyNotifiedEvent, e.EventID.String()), e.OrderID.String(), notifiedEventTTL).Result()
	if err != nil {
		return true, err
	}
	return ok, nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
