package interfaces

import (
	"context"

	"github.com/commshield/commstack/internal/models"
)

// RawMessagePublisher publishes connector output to the broker.
type RawMessagePublisher interface {
	SendRaw(ctx context.Context, message *models.RawMessage) error
	SendDeadLetter(ctx context.Context, envelope *models.DeadLetterEnvelope) error
	Close() error
}

// MessagePublisher publishes an opaque JSON record keyed by message id.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close() error
}

// BrokerRecord is a single consumed record plus the handle needed to
// commit its offset.
type BrokerRecord struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// MessageConsumer is a consumer-group reader with manual offset commit.
// Fetch blocks until a record arrives or ctx is cancelled; Commit must
// be called only after the record's unit of work (or deliberate skip)
// completes, preserving at-least-once delivery.
type MessageConsumer interface {
	Fetch(ctx context.Context) (*BrokerRecord, error)
	Commit(ctx context.Context, record *BrokerRecord) error
	Close() error
}
