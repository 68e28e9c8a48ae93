package email_connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
	"github.com/commshield/commstack/services/storage"
)

// EmailConnector is the Stage-1 claim-check producer: it polls a
// mailbox by UID cursor, uploads raw bytes to the object store before
// anything else happens, and emits a lightweight reference record.
type EmailConnector struct {
	cfg        *config.IMAPConfig
	name       string
	mailbox    MailboxClient
	store      *storage.EmailStore
	cursorRepo interfaces.CursorRepository
	log        logger.Logger

	mu               sync.RWMutex
	lastUID          uint32
	lastPollTime     time.Time
	messagesIngested int
}

func NewEmailConnector(
	name string,
	cfg *config.IMAPConfig,
	mailbox MailboxClient,
	store *storage.EmailStore,
	cursorRepo interfaces.CursorRepository,
	log logger.Logger,
) *EmailConnector {
	return &EmailConnector{
		cfg:        cfg,
		name:       name,
		mailbox:    mailbox,
		store:      store,
		cursorRepo: cursorRepo,
		log:        log,
	}
}

func (c *EmailConnector) Name() string {
	return c.name
}

// Ingest polls the mailbox until ctx is cancelled. Protocol-level
// connection loss triggers a reconnect and the same cursor is retried
// on the next iteration; the cursor only ever moves forward after a
// successful fetch.
func (c *EmailConnector) Ingest(ctx context.Context, out chan<- *models.RawMessage) error {
	if err := c.mailbox.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.mailbox.Disconnect(); err != nil {
			c.log.Warnf("mailbox disconnect failed: %v", err)
		}
	}()

	if err := c.loadCursor(ctx); err != nil {
		return err
	}

	for {
		fetched, err := c.mailbox.FetchSince(ctx, c.LastUID())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !isConnectionError(err) {
				return errors.Wrap(err, "mailbox poll failed")
			}
			c.log.Warnf("mailbox connection lost, reconnecting: %v", err)
			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.mu.Lock()
		c.lastPollTime = time.Now().UTC()
		c.mu.Unlock()

		for _, email := range fetched {
			rawMessage, err := c.processEmail(ctx, email)
			if err != nil {
				return err
			}
			c.advanceCursor(email.UID)

			select {
			case out <- rawMessage:
				c.mu.Lock()
				c.messagesIngested++
				c.mu.Unlock()
				c.persistCursor(ctx)
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-time.After(c.cfg.PollInterval):
		case <-ctx.Done():
			return nil
		}
	}
}

// Backfill fetches a historical date window. The underlying protocol
// searches at day granularity only.
func (c *EmailConnector) Backfill(ctx context.Context, req models.BackfillRequest, out chan<- *models.RawMessage) error {
	if err := c.mailbox.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.mailbox.Disconnect(); err != nil {
			c.log.Warnf("mailbox disconnect failed: %v", err)
		}
	}()

	fetched, err := c.mailbox.FetchDateRange(ctx, req.Start, req.End)
	if err != nil {
		return errors.Wrap(err, "backfill fetch failed")
	}
	c.log.Infof("backfill fetched %d messages between %s and %s",
		len(fetched), req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))

	for _, email := range fetched {
		rawMessage, err := c.processEmail(ctx, email)
		if err != nil {
			return err
		}
		select {
		case out <- rawMessage:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// processEmail uploads the raw bytes first (the claim-check guarantee:
// nothing references bytes that are not durably stored), then builds
// the reference record from a header-only parse.
func (c *EmailConnector) processEmail(ctx context.Context, email FetchedEmail) (*models.RawMessage, error) {
	blobURI, err := c.store.UploadRawEmail(ctx, email.UID, email.RawBytes)
	if err != nil {
		return nil, err
	}

	envelope := ExtractEnvelope(email.RawBytes)

	rawMessageID := envelope.MessageID
	if rawMessageID == "" {
		rawMessageID = fmt.Sprintf("imap-uid-%d", email.UID)
	}

	return &models.RawMessage{
		RawMessageID: rawMessageID,
		Channel:      enum.ChannelEmail,
		RawPayload: map[string]interface{}{
			"envelope":   envelope.ToMap(),
			"blob_uri":   blobURI,
			"size_bytes": len(email.RawBytes),
		},
		RawFormat: models.RawFormatEmailRef,
		Metadata: map[string]interface{}{
			"imap_uid":  email.UID,
			"mailbox":   c.cfg.Mailbox,
			"imap_host": c.cfg.Host,
		},
		IngestedAt: time.Now().UTC(),
	}, nil
}

func (c *EmailConnector) HealthCheck(ctx context.Context) map[string]interface{} {
	// read connectivity before taking the lock so a slow probe never
	// stalls the ingest path
	connected := c.mailbox.IsConnected()

	c.mu.RLock()
	defer c.mu.RUnlock()

	var lastPoll interface{}
	if !c.lastPollTime.IsZero() {
		lastPoll = c.lastPollTime.Format(time.RFC3339)
	}
	return map[string]interface{}{
		"imap_connected":    connected,
		"imap_host":         c.cfg.Host,
		"imap_mailbox":      c.cfg.Mailbox,
		"last_poll_time":    lastPoll,
		"last_uid":          c.lastUID,
		"messages_ingested": c.messagesIngested,
	}
}

// LastUID returns the current cursor position.
func (c *EmailConnector) LastUID() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUID
}

func (c *EmailConnector) loadCursor(ctx context.Context) error {
	cursor, err := c.cursorRepo.GetCursor(ctx, c.cfg.Mailbox)
	if err != nil {
		return errors.Wrap(err, "failed to load cursor")
	}
	c.mu.Lock()
	c.lastUID = cursor
	c.mu.Unlock()
	if cursor > 0 {
		c.log.Infof("resuming mailbox %s from uid %d", c.cfg.Mailbox, cursor)
	}
	return nil
}

// advanceCursor moves the in-memory cursor forward monotonically so
// the running process never re-fetches a message it already emitted.
func (c *EmailConnector) advanceCursor(uid uint32) {
	c.mu.Lock()
	if uid > c.lastUID {
		c.lastUID = uid
	}
	c.mu.Unlock()
}

// persistCursor saves the cursor, and is called only after the message
// has been handed to the delivery loop: a crash before the save replays
// the unsaved tail on restart (at-least-once), never skips it. Save
// failures are logged only; the in-memory cursor keeps the process
// moving.
func (c *EmailConnector) persistCursor(ctx context.Context) {
	cursor := c.LastUID()
	if err := c.cursorRepo.SaveCursor(ctx, c.cfg.Mailbox, cursor); err != nil {
		c.log.Warnf("cursor save failed for %s: %v", c.cfg.Mailbox, err)
	}
}

func (c *EmailConnector) reconnect(ctx context.Context) error {
	if err := c.mailbox.Disconnect(); err != nil {
		c.log.Debugf("disconnect before reconnect failed: %v", err)
	}
	if err := c.mailbox.Connect(ctx); err != nil {
		return errors.Wrap(err, "mailbox reconnect failed")
	}
	return nil
}
