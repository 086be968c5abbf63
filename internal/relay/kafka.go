package relay

import (
	"context"

	"github.com/segmentio/kafka-go"

	"sensorlog/internal/config"
	"sensorlog/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every record to one topic, keyed by device name so a
// device's records stay ordered within a partition.
type Kafka struct {
	writer messageWriter
}

func NewKafka(cfg config.KafkaRelayConfig) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Send(ctx context.Context, rec model.Record) error {
	value, err := Encode(rec, true)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Ident().DeviceName),
		Value: value,
		Time:  rec.Ident().Time,
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
