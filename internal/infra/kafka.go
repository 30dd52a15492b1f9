package infra

import (
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Alturino/storefront/internal/config"
)

// NewKafkaWriter returns a writer without a fixed topic; each message names
// its own.
func NewKafkaWriter(cfg config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

func NewKafkaReader(cfg config.Kafka) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}
