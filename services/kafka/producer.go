package kafka

import (
	"context"
	"encoding/json"
	"time"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
)

// Producer wraps one kafka-go writer per topic. Records are keyed by
// message id so a single message always lands on the same partition,
// acks=all, gzip compression.
type Producer struct {
	rawWriter        *segmentio.Writer
	deadLetterWriter *segmentio.Writer
	log              logger.Logger
}

func newWriter(cfg *config.KafkaConfig, topic string) *segmentio.Writer {
	return &segmentio.Writer{
		Addr:         segmentio.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &segmentio.Hash{},
		RequiredAcks: segmentio.RequireAll,
		Compression:  segmentio.Gzip,
		BatchTimeout: cfg.ProducerBatchTimeout,
		WriteTimeout: 10 * time.Second,
	}
}

func NewProducer(cfg *config.KafkaConfig, log logger.Logger) interfaces.RawMessagePublisher {
	return &Producer{
		rawWriter:        newWriter(cfg, cfg.RawMessagesTopic),
		deadLetterWriter: newWriter(cfg, cfg.DeadLetterTopic),
		log:              log,
	}
}

func (p *Producer) SendRaw(ctx context.Context, message *models.RawMessage) error {
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}
	err = p.rawWriter.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(message.RawMessageID),
		Value: value,
	})
	if err != nil {
		return err
	}
	p.log.Debugf("raw message sent: %s", message.RawMessageID)
	return nil
}

func (p *Producer) SendDeadLetter(ctx context.Context, envelope *models.DeadLetterEnvelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	err = p.deadLetterWriter.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(envelope.OriginalMessage.RawMessageID),
		Value: value,
	})
	if err != nil {
		return err
	}
	p.log.Warnf("dead letter sent: %s error: %s", envelope.OriginalMessage.RawMessageID, envelope.Error)
	return nil
}

func (p *Producer) Close() error {
	if err := p.rawWriter.Close(); err != nil {
		return err
	}
	return p.deadLetterWriter.Close()
}

// TopicPublisher is a single-topic publisher used by the pipeline
// stages that emit parsed and normalized records.
type TopicPublisher struct {
	writer *segmentio.Writer
	log    logger.Logger
}

func NewTopicPublisher(cfg *config.KafkaConfig, topic string, log logger.Logger) interfaces.MessagePublisher {
	return &TopicPublisher{
		writer: newWriter(cfg, topic),
		log:    log,
	}
}

func (p *TopicPublisher) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *TopicPublisher) Close() error {
	return p.writer.Close()
}
