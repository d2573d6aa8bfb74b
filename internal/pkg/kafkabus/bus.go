package kafkabus

import (
	"context"
	"encoding/json"

	"github.com/anicoll/sensor-bridge/internal/pkg/config"
	"github.com/anicoll/sensor-bridge/internal/pkg/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus writes one message per accepted row, keyed by device so a partition keeps order.
type Bus struct {
	writer messageWriter
	key    []byte
	logger *zap.Logger
}

func New(cfg *config.KafkaConfig, device string) *Bus {
	return &Bus{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			Async:                  false,
		},
		key:    []byte(device),
		logger: zap.L().With(zap.String("component", "kafka-bus")),
	}
}

// Message is the value written for each row.
type Message struct {
	Device string `json:"device"`
	model.StatePayload
}

func (b *Bus) Write(ctx context.Context, row model.Row) error {
	value, err := json.Marshal(Message{
		Device: string(b.key),
		StatePayload: model.StatePayload{
			Reading:   row.Reading,
			Timestamp: row.Timestamp.Format(model.TimestampLayout),
		},
	})
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   b.key,
		Value: value,
		Time:  row.Timestamp,
	}); err != nil {
		return err
	}
	b.logger.Debug("wrote reading", zap.Int("bytes", len(value)))
	return nil
}

func (b *Bus) Close() error {
	return b.writer.Close()
}
