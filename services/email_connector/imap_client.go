package email_connector

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/internal/logger"
)

// FetchedEmail is one raw message pulled from the mailbox, tagged with
// its mailbox-assigned cursor.
type FetchedEmail struct {
	UID      uint32
	RawBytes []byte
}

// MailboxClient abstracts the source mailbox protocol so the connector
// can be exercised without a live IMAP server.
type MailboxClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	// FetchSince returns messages with UID strictly greater than
	// lastUID, in ascending UID order.
	FetchSince(ctx context.Context, lastUID uint32) ([]FetchedEmail, error)
	// FetchDateRange returns messages within [since, before). IMAP
	// date search is day-granular.
	FetchDateRange(ctx context.Context, since, before time.Time) ([]FetchedEmail, error)
}

// imapClient wraps emersion's client. The connection handle is guarded
// by a mutex: the health probe reads it from its own goroutine while
// the ingest loop reconnects. Fetch operations are only ever issued
// from the ingest goroutine.
type imapClient struct {
	cfg *config.IMAPConfig
	log logger.Logger

	mu     sync.Mutex
	client *client.Client
}

func NewIMAPClient(cfg *config.IMAPConfig, log logger.Logger) MailboxClient {
	return &imapClient{cfg: cfg, log: log}
}

func (c *imapClient) conn() *client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

func (c *imapClient) Connect(_ context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var conn *client.Client
	var err error
	if c.cfg.UseSSL {
		tlsConfig := &tls.Config{ServerName: c.cfg.Host}
		conn, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		conn, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return errors.Wrap(err, "imap connection failed")
	}

	conn.Timeout = 30 * time.Second
	if err = conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Logout()
		return errors.Wrap(err, "imap login failed")
	}

	if _, err = conn.Select(c.cfg.Mailbox, false); err != nil {
		_ = conn.Logout()
		return errors.Wrapf(err, "imap select failed: %s", c.cfg.Mailbox)
	}
	conn.Timeout = 0

	c.mu.Lock()
	c.client = conn
	c.mu.Unlock()
	c.log.Infof("connected to %s mailbox %s", serverAddr, c.cfg.Mailbox)
	return nil
}

func (c *imapClient) Disconnect() error {
	c.mu.Lock()
	conn := c.client
	c.client = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.Timeout = 5 * time.Second
	return conn.Logout()
}

// IsConnected reports cached connectivity. Actual liveness surfaces
// through the ingest loop, which reconnects on the next failed poll.
func (c *imapClient) IsConnected() bool {
	return c.conn() != nil
}

func (c *imapClient) FetchSince(ctx context.Context, lastUID uint32) ([]FetchedEmail, error) {
	conn := c.conn()
	if conn == nil {
		return nil, errors.New("not connected")
	}

	criteria := imap.NewSearchCriteria()
	uidRange := new(imap.SeqSet)
	uidRange.AddRange(lastUID+1, 0)
	criteria.Uid = uidRange

	conn.Timeout = 30 * time.Second
	uids, err := conn.UidSearch(criteria)
	conn.Timeout = 0
	if err != nil {
		return nil, errors.Wrap(err, "uid search failed")
	}

	// The UID range boundary is inclusive on some servers and may echo
	// back lastUID itself; drop anything already seen.
	fresh := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			fresh = append(fresh, uid)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	return c.fetchByUID(ctx, conn, fresh)
}

func (c *imapClient) FetchDateRange(ctx context.Context, since, before time.Time) ([]FetchedEmail, error) {
	conn := c.conn()
	if conn == nil {
		return nil, errors.New("not connected")
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	criteria.Before = before

	conn.Timeout = 30 * time.Second
	uids, err := conn.UidSearch(criteria)
	conn.Timeout = 0
	if err != nil {
		return nil, errors.Wrap(err, "uid search failed")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	return c.fetchByUID(ctx, conn, uids)
}

func (c *imapClient) fetchByUID(ctx context.Context, conn *client.Client, uids []uint32) ([]FetchedEmail, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	conn.Timeout = 60 * time.Second
	go func() {
		done <- conn.UidFetch(seqSet, items, messages)
	}()

	var results []FetchedEmail
	for msg := range messages {
		if ctx.Err() != nil {
			continue // drain the channel, the fetch result still arrives on done
		}
		body := msg.GetBody(section)
		if body == nil {
			c.log.Warnf("fetch returned no body for uid %d", msg.Uid)
			continue
		}
		rawBytes, err := io.ReadAll(body)
		if err != nil {
			c.log.Warnf("failed to read body for uid %d: %v", msg.Uid, err)
			continue
		}
		results = append(results, FetchedEmail{UID: msg.Uid, RawBytes: rawBytes})
	}

	conn.Timeout = 0
	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "uid fetch failed")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, nil
}

// isConnectionError matches protocol-level connection loss, which is
// recoverable by reconnecting and retrying the same cursor.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "not connected")
}
