package connector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
)

type fakeProducer struct {
	mu           sync.Mutex
	failSendRaw  int
	rawCalls     int
	deadLetters  []*models.DeadLetterEnvelope
	failDeadSend bool
}

func (f *fakeProducer) SendRaw(_ context.Context, _ *models.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawCalls++
	if f.rawCalls <= f.failSendRaw {
		return errors.New("broker unavailable")
	}
	return nil
}

func (f *fakeProducer) SendDeadLetter(_ context.Context, envelope *models.DeadLetterEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeadSend {
		return errors.New("dead-letter broker unavailable")
	}
	f.deadLetters = append(f.deadLetters, envelope)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeForwarder struct {
	mu      sync.Mutex
	submits int
	err     error
}

func (f *fakeForwarder) Submit(_ context.Context, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	return f.err
}

func newTestLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	l.InitLogger()
	return l
}

func testRetryConfig(maxAttempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts: maxAttempts,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2,
	}
}

func testMessage() *models.RawMessage {
	return &models.RawMessage{
		RawMessageID: "msg-1",
		Channel:      enum.ChannelEmail,
		RawFormat:    models.RawFormatEmailRef,
		RawPayload:   map[string]interface{}{"blob_uri": "s3://bucket/raw/email/1.eml"},
		IngestedAt:   time.Now().UTC(),
	}
}

func TestDeliverFirstAttemptSuccess(t *testing.T) {
	producer := &fakeProducer{}
	forwarder := &fakeForwarder{}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(3), newTestLogger())

	d.Deliver(context.Background(), testMessage())

	assert.Equal(t, 1, producer.rawCalls)
	assert.Empty(t, producer.deadLetters)
	assert.Equal(t, 1, forwarder.submits)
}

func TestDeliverRecoversAfterTransientFailures(t *testing.T) {
	producer := &fakeProducer{failSendRaw: 2}
	forwarder := &fakeForwarder{}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(3), newTestLogger())

	d.Deliver(context.Background(), testMessage())

	assert.Equal(t, 3, producer.rawCalls)
	assert.Empty(t, producer.deadLetters)
	assert.Equal(t, 1, forwarder.submits)
}

func TestDeliverDeadLettersOnExhaustion(t *testing.T) {
	producer := &fakeProducer{failSendRaw: 100}
	forwarder := &fakeForwarder{}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(3), newTestLogger())

	d.Deliver(context.Background(), testMessage())

	assert.Equal(t, 3, producer.rawCalls)
	require.Len(t, producer.deadLetters, 1)
	envelope := producer.deadLetters[0]
	assert.Equal(t, "msg-1", envelope.OriginalMessage.RawMessageID)
	assert.Equal(t, "email-connector", envelope.ConnectorName)
	assert.Equal(t, 3, envelope.Attempts)
	assert.Contains(t, envelope.Error, "broker unavailable")
	assert.False(t, envelope.FailedAt.IsZero())

	// the ingestion API never sees a message that missed the broker
	assert.Equal(t, 0, forwarder.submits)
}

func TestDeliverNonRetryableFailsImmediately(t *testing.T) {
	producer := &fakeProducer{failSendRaw: 100}
	forwarder := &fakeForwarder{}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(5), newTestLogger())
	d.SetRetryClassifier(func(error) bool { return false })

	d.Deliver(context.Background(), testMessage())

	assert.Equal(t, 1, producer.rawCalls)
	require.Len(t, producer.deadLetters, 1)
	assert.Equal(t, 1, producer.deadLetters[0].Attempts)
}

func TestDeliverForwarderFailureNeverDeadLetters(t *testing.T) {
	producer := &fakeProducer{}
	forwarder := &fakeForwarder{err: errors.New("ingestion API down")}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(3), newTestLogger())

	d.Deliver(context.Background(), testMessage())

	assert.Equal(t, 1, producer.rawCalls)
	assert.Empty(t, producer.deadLetters)
	assert.Equal(t, 1, forwarder.submits)
}

func TestDeliverShutdownNeverDeadLetters(t *testing.T) {
	producer := &fakeProducer{failSendRaw: 100}
	forwarder := &fakeForwarder{}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(5), newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Deliver(ctx, testMessage())

	// the message was never refused by the broker: it replays on
	// restart instead of dead-lettering
	assert.Empty(t, producer.deadLetters)
	assert.Equal(t, 0, forwarder.submits)
}

func TestDeliverCancellationMidRetryNeverDeadLetters(t *testing.T) {
	producer := &fakeProducer{failSendRaw: 100}
	forwarder := &fakeForwarder{}
	retry := &config.RetryConfig{
		MaxAttempts: 5,
		InitialWait: 50 * time.Millisecond,
		MaxWait:     time.Second,
		Multiplier:  2,
	}
	d := NewDeliverer(producer, forwarder, "email-connector", retry, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	d.Deliver(ctx, testMessage())

	assert.Empty(t, producer.deadLetters)
	assert.Less(t, producer.rawCalls, 5)
}

func TestDeliverDeadLetterPublishFailureIsSwallowed(t *testing.T) {
	producer := &fakeProducer{failSendRaw: 100, failDeadSend: true}
	forwarder := &fakeForwarder{}
	d := NewDeliverer(producer, forwarder, "email-connector", testRetryConfig(2), newTestLogger())

	// must not panic or block
	d.Deliver(context.Background(), testMessage())

	assert.Equal(t, 2, producer.rawCalls)
	assert.Empty(t, producer.deadLetters)
}
