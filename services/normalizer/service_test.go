package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
	"github.com/commshield/commstack/services/storage"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("storage unavailable")
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	return data, nil
}

type published struct {
	key   string
	value []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	fail     bool
}

func (f *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("broker unavailable")
	}
	f.messages = append(f.messages, published{key: key, value: value})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type scriptedConsumer struct {
	mu      sync.Mutex
	records []*interfaces.BrokerRecord
	commits []int64
	cancel  context.CancelFunc
}

func (c *scriptedConsumer) Fetch(ctx context.Context) (*interfaces.BrokerRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		c.cancel()
		return nil, context.Canceled
	}
	record := c.records[0]
	c.records = c.records[1:]
	return record, nil
}

func (c *scriptedConsumer) Commit(_ context.Context, record *interfaces.BrokerRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits = append(c.commits, record.Offset)
	return nil
}

func (c *scriptedConsumer) Close() error { return nil }

func newTestLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	l.InitLogger()
	return l
}

func newTestService(mem *memStorage, publisher *fakePublisher) *Service {
	cfg := &config.StorageConfig{Bucket: "test-bucket", NormalizedPrefix: "normalized"}
	store := storage.NewNormalizedStore(mem, cfg)
	registry := NewRegistry(NewEmailNormalizer([]string{"acme.com"}))
	return NewService(nil, publisher, store, registry, &config.AppConfig{HealthPort: "0"}, newTestLogger())
}

func recordFor(t *testing.T, parsed map[string]interface{}, offset int64) *interfaces.BrokerRecord {
	t.Helper()
	value, err := json.Marshal(parsed)
	require.NoError(t, err)
	return &interfaces.BrokerRecord{Value: value, Offset: offset}
}

func TestHandleRecordDualWrites(t *testing.T) {
	mem := newMemStorage()
	publisher := &fakePublisher{}
	service := newTestService(mem, publisher)

	service.handleRecord(context.Background(), recordFor(t, parsedEmailRecord(), 1))

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "abc-123@acme.com", publisher.messages[0].key)

	var message models.NormalizedMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0].value, &message))
	assert.Equal(t, enum.DirectionOutbound, message.Direction)

	// archive copy landed alongside the topic publish
	assert.Len(t, mem.objects, 1)
	assert.Equal(t, 1, service.counter(&service.processed))
}

func TestHandleRecordSkipsUnknownChannel(t *testing.T) {
	mem := newMemStorage()
	publisher := &fakePublisher{}
	service := newTestService(mem, publisher)

	record := parsedEmailRecord()
	record["channel"] = "voice"
	service.handleRecord(context.Background(), recordFor(t, record, 1))

	assert.Empty(t, publisher.messages)
	assert.Empty(t, mem.objects)
	assert.Equal(t, 1, service.counter(&service.skipped))
	assert.Equal(t, 0, service.counter(&service.processed))
}

func TestHandleRecordCountsInvalidRecords(t *testing.T) {
	service := newTestService(newMemStorage(), &fakePublisher{})

	record := parsedEmailRecord()
	record["message_id"] = ""
	record["raw_message_id"] = ""
	service.handleRecord(context.Background(), recordFor(t, record, 1))

	assert.Equal(t, 1, service.counter(&service.failed))
}

func TestHandleRecordStoreFailureStillPublishes(t *testing.T) {
	mem := newMemStorage()
	mem.fail = true
	publisher := &fakePublisher{}
	service := newTestService(mem, publisher)

	service.handleRecord(context.Background(), recordFor(t, parsedEmailRecord(), 1))

	// the topic write landed even though the archive write did not
	assert.Len(t, publisher.messages, 1)
	assert.Equal(t, 1, service.counter(&service.failed))
}

func TestHandleRecordPublishFailureStillStores(t *testing.T) {
	mem := newMemStorage()
	publisher := &fakePublisher{fail: true}
	service := newTestService(mem, publisher)

	service.handleRecord(context.Background(), recordFor(t, parsedEmailRecord(), 1))

	assert.Len(t, mem.objects, 1)
	assert.Equal(t, 1, service.counter(&service.failed))
}

func TestConsumeLoopCommitsThroughFailures(t *testing.T) {
	service := newTestService(newMemStorage(), &fakePublisher{})

	invalid := parsedEmailRecord()
	invalid["message_id"] = ""
	invalid["raw_message_id"] = ""

	unknown := parsedEmailRecord()
	unknown["channel"] = "voice"

	ctx, cancel := context.WithCancel(context.Background())
	consumer := &scriptedConsumer{
		records: []*interfaces.BrokerRecord{
			recordFor(t, invalid, 20),
			recordFor(t, unknown, 21),
			recordFor(t, parsedEmailRecord(), 22),
		},
		cancel: cancel,
	}
	service.consumer = consumer

	require.NoError(t, service.consumeLoop(ctx))

	assert.Equal(t, []int64{20, 21, 22}, consumer.commits)
	assert.Equal(t, 1, service.counter(&service.failed))
	assert.Equal(t, 1, service.counter(&service.skipped))
	assert.Equal(t, 1, service.counter(&service.processed))
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(NewEmailNormalizer(nil))

	n, ok := registry.Lookup(enum.ChannelEmail)
	assert.True(t, ok)
	assert.Equal(t, enum.ChannelEmail, n.Channel())

	_, ok = registry.Lookup(enum.Channel("voice"))
	assert.False(t, ok)
	assert.Equal(t, []enum.Channel{enum.ChannelEmail}, registry.Channels())
}
