package ingestion

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/logger"
)

// Client forwards raw messages to the external ingestion API over
// HTTP. Delivery is best-effort: callers log and swallow failures, so
// this client never dead-letters and never blocks broker delivery.
// An empty base URL disables the client entirely.
type Client struct {
	cfg        *config.IngestionAPIConfig
	httpClient *http.Client
	log        logger.Logger
}

func NewClient(cfg *config.IngestionAPIConfig, log logger.Logger) interfaces.IngestionForwarder {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

func (c *Client) Submit(ctx context.Context, payload []byte) error {
	if c.cfg.BaseURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/ingest", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build ingestion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "ingestion API request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("ingestion API returned status %d", resp.StatusCode)
	}
	return nil
}
