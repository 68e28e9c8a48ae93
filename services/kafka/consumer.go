package kafka

import (
	"context"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/logger"
)

// Consumer is a consumer-group reader with manual offset commits.
// Offsets are committed by the caller only after the record's unit of
// work completes, so delivery to the next stage is at-least-once.
type Consumer struct {
	reader *segmentio.Reader
	log    logger.Logger
}

func NewConsumer(cfg *config.KafkaConfig, topic, groupID string, log logger.Logger) interfaces.MessageConsumer {
	reader := segmentio.NewReader(segmentio.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: segmentio.FirstOffset,
	})
	return &Consumer{reader: reader, log: log}
}

func (c *Consumer) Fetch(ctx context.Context) (*interfaces.BrokerRecord, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return &interfaces.BrokerRecord{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, nil
}

func (c *Consumer) Commit(ctx context.Context, record *interfaces.BrokerRecord) error {
	return c.reader.CommitMessages(ctx, segmentio.Message{
		Topic:     c.reader.Config().Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
	})
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
