package email_processor

import (
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/commshield/commstack/internal/models"
	"github.com/commshield/commstack/internal/tracing"
	"github.com/commshield/commstack/services/storage"
)

// Processor is the Stage-2 consumer: it redeems claim-check references
// from the raw topic, performs the full MIME parse, uploads attachment
// blobs, and publishes structured parsed records. A record that cannot
// be processed is logged and its offset committed anyway so one bad
// message never stalls the partition.
type Processor struct {
	consumer  interfaces.MessageConsumer
	publisher interfaces.MessagePublisher
	store     *storage.EmailStore
	parser    *MimeParser
	cfg       *config.AppConfig
	log       logger.Logger

	mu        sync.RWMutex
	ready     bool
	startTime time.Time
	processed int
	skipped   int
	failed    int
	malformed int
}

func NewProcessor(
	consumer interfaces.MessageConsumer,
	publisher interfaces.MessagePublisher,
	store *storage.EmailStore,
	cfg *config.AppConfig,
	log logger.Logger,
) *Processor {
	return &Processor{
		consumer:  consumer,
		publisher: publisher,
		store:     store,
		parser:    NewMimeParser(),
		cfg:       cfg,
		log:       log,
	}
}

// Run consumes until SIGTERM/SIGINT or a broker-level failure.
func (p *Processor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	p.mu.Lock()
	p.ready = true
	p.startTime = time.Now().UTC()
	p.mu.Unlock()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.consumeLoop(gctx) })
	group.Go(func() error { return p.runHealthServer(gctx) })

	err := group.Wait()

	if closeErr := p.consumer.Close(); closeErr != nil {
		p.log.Warnf("consumer close failed: %v", closeErr)
	}
	if closeErr := p.publisher.Close(); closeErr != nil {
		p.log.Warnf("publisher close failed: %v", closeErr)
	}
	p.log.Infof("email processor stopped, processed=%d skipped=%d failed=%d malformed=%d",
		p.counter(&p.processed), p.counter(&p.skipped), p.counter(&p.failed), p.counter(&p.malformed))
	return err
}

func (p *Processor) consumeLoop(ctx context.Context) error {
	for {
		record, err := p.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch failed")
		}

		p.handleRecord(ctx, record)

		// Offsets advance even when handling failed: at-least-once for
		// the happy path, skip-and-log for the poison pill.
		if err := p.consumer.Commit(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "offset commit failed")
		}
	}
}

func (p *Processor) handleRecord(ctx context.Context, record *interfaces.BrokerRecord) {
	var raw models.RawMessage
	if err := json.Unmarshal(record.Value, &raw); err != nil {
		p.log.Warnf("dropping malformed record at partition %d offset %d: %v",
			record.Partition, record.Offset, err)
		p.increment(&p.malformed)
		return
	}

	if raw.Channel != enum.ChannelEmail || raw.RawFormat != models.RawFormatEmailRef {
		p.log.Debugf("skipping record %s: channel=%s format=%s",
			raw.RawMessageID, raw.Channel, raw.RawFormat)
		p.increment(&p.skipped)
		return
	}

	if err := p.processRecord(ctx, &raw); err != nil {
		p.log.Errorf("processing failed for %s: %v", raw.RawMessageID, err)
		p.increment(&p.failed)
		return
	}
	p.increment(&p.processed)
}

func (p *Processor) processRecord(ctx context.Context, raw *models.RawMessage) error {
	span, ctx := tracing.StartTracerSpan(ctx, "Processor.processRecord")
	defer span.Finish()
	span.SetTag("raw_message_id", raw.RawMessageID)

	blobURI, ok := raw.RawPayload["blob_uri"].(string)
	if !ok || blobURI == "" {
		err := errors.New("record has no blob_uri")
		tracing.TraceErr(span, err)
		return err
	}

	rawBytes, err := p.store.DownloadRawEmail(ctx, blobURI)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "raw email download failed")
	}

	parsed, err := p.parser.Parse(rawBytes)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	owner := attachmentOwner(raw)
	attachmentRefs := make([]string, 0, len(parsed.Attachments))
	for _, attachment := range parsed.Attachments {
		ref, err := p.store.UploadAttachment(ctx, owner, attachment.Filename, attachment.ContentType, attachment.Payload)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		attachmentRefs = append(attachmentRefs, ref)
	}

	message := &models.ParsedEmailMessage{
		RawMessageID:   raw.RawMessageID,
		Channel:        enum.ChannelEmail,
		MessageID:      parsed.MessageID,
		Subject:        parsed.Subject,
		From:           parsed.From,
		To:             parsed.To,
		Cc:             parsed.Cc,
		Bcc:            parsed.Bcc,
		Date:           parsed.Date,
		BodyText:       parsed.BodyText,
		BodyHTML:       parsed.BodyHTML,
		Headers:        parsed.Headers,
		AttachmentRefs: attachmentRefs,
		RawEmlBlobURI:  blobURI,
	}

	value, err := json.Marshal(message)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal parsed message")
	}
	if err := p.publisher.Publish(ctx, raw.RawMessageID, value); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to publish parsed message")
	}

	p.log.Infof("processed %s: %d attachments", raw.RawMessageID, len(attachmentRefs))
	return nil
}

// attachmentOwner picks the storage-key segment for attachment blobs:
// the mailbox uid when present, otherwise the record id itself.
func attachmentOwner(raw *models.RawMessage) string {
	switch uid := raw.Metadata["imap_uid"].(type) {
	case float64:
		return fmt.Sprintf("%.0f", uid)
	case string:
		if uid != "" {
			return uid
		}
	}
	return storage.SanitizeFilename(raw.RawMessageID)
}

func (p *Processor) increment(field *int) {
	p.mu.Lock()
	*field++
	p.mu.Unlock()
}

func (p *Processor) counter(field *int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *field
}
