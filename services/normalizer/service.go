package normalizer

import (
	"context"
	"encoding/json"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/tracing"
	"github.com/commshield/commstack/services/storage"
)

// Service consumes parsed records, routes them through the registry,
// and dual-writes the canonical result: the normalized topic first,
// then the object store. The two writes are independent best-effort
// operations; either may land without the other, and the offset is
// committed regardless so the partition keeps moving.
type Service struct {
	consumer  interfaces.MessageConsumer
	publisher interfaces.MessagePublisher
	store     *storage.NormalizedStore
	registry  *Registry
	cfg       *config.AppConfig
	log       logger.Logger

	mu        sync.RWMutex
	ready     bool
	startTime time.Time
	processed int
	skipped   int
	failed    int
}

func NewService(
	consumer interfaces.MessageConsumer,
	publisher interfaces.MessagePublisher,
	store *storage.NormalizedStore,
	registry *Registry,
	cfg *config.AppConfig,
	log logger.Logger,
) *Service {
	return &Service{
		consumer:  consumer,
		publisher: publisher,
		store:     store,
		registry:  registry,
		cfg:       cfg,
		log:       log,
	}
}

// Run consumes until SIGTERM/SIGINT or a broker-level failure.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	s.mu.Lock()
	s.ready = true
	s.startTime = time.Now().UTC()
	s.mu.Unlock()

	s.log.Infof("normalizer started, channels: %v", s.registry.Channels())

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.consumeLoop(gctx) })
	group.Go(func() error { return s.runHealthServer(gctx) })

	err := group.Wait()

	if closeErr := s.consumer.Close(); closeErr != nil {
		s.log.Warnf("consumer close failed: %v", closeErr)
	}
	if closeErr := s.publisher.Close(); closeErr != nil {
		s.log.Warnf("publisher close failed: %v", closeErr)
	}
	s.log.Infof("normalizer stopped, processed=%d skipped=%d failed=%d",
		s.counter(&s.processed), s.counter(&s.skipped), s.counter(&s.failed))
	return err
}

func (s *Service) consumeLoop(ctx context.Context) error {
	for {
		record, err := s.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch failed")
		}

		s.handleRecord(ctx, record)

		if err := s.consumer.Commit(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "offset commit failed")
		}
	}
}

func (s *Service) handleRecord(ctx context.Context, record *interfaces.BrokerRecord) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(record.Value, &parsed); err != nil {
		s.log.Warnf("dropping malformed record at partition %d offset %d: %v",
			record.Partition, record.Offset, err)
		s.increment(&s.failed)
		return
	}

	channel := enum.Channel(stringField(parsed, "channel"))
	n, ok := s.registry.Lookup(channel)
	if !ok {
		s.log.Debugf("no normalizer registered for channel %q, skipping", channel)
		s.increment(&s.skipped)
		return
	}

	if err := s.normalizeRecord(ctx, n, parsed); err != nil {
		s.log.Errorf("normalization failed for channel %s: %v", channel, err)
		s.increment(&s.failed)
		return
	}
	s.increment(&s.processed)
}

func (s *Service) normalizeRecord(ctx context.Context, n interfaces.Normalizer, parsed map[string]interface{}) error {
	span, ctx := tracing.StartTracerSpan(ctx, "Normalizer.normalizeRecord")
	defer span.Finish()

	message, err := n.Normalize(parsed)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := message.Validate(); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "canonical schema validation failed")
	}
	span.SetTag("message_id", message.MessageID)

	value, err := json.Marshal(message)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal normalized message")
	}

	// Dual write, each leg on its own. A topic publish that lands
	// without its archive copy (or the reverse) is visible in the logs
	// but never blocks the stream.
	var publishErr, storeErr error
	if publishErr = s.publisher.Publish(ctx, message.MessageID, value); publishErr != nil {
		tracing.TraceErr(span, publishErr)
		s.log.Errorf("normalized publish failed for %s: %v", message.MessageID, publishErr)
	}
	if _, storeErr = s.store.Store(ctx, message); storeErr != nil {
		tracing.TraceErr(span, storeErr)
		s.log.Errorf("normalized store failed for %s: %v", message.MessageID, storeErr)
	}
	if publishErr != nil || storeErr != nil {
		return errors.New("dual write incomplete")
	}

	s.log.Infof("normalized %s: channel=%s direction=%s participants=%d",
		message.MessageID, message.Channel, message.Direction, len(message.Participants))
	return nil
}

func (s *Service) increment(field *int) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

func (s *Service) counter(field *int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *field
}
