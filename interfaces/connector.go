package interfaces

import (
	"context"

	"github.com/pkg/errors"

	"github.com/commshield/commstack/internal/models"
)

// ErrBackfillUnsupported is returned by connectors that do not
// implement historical backfill.
var ErrBackfillUnsupported = errors.New("connector does not support backfill")

// Connector is the capability set every channel connector implements.
//
// Ingest sends captured messages to out until ctx is cancelled; it owns
// reconnect handling for recoverable source errors and returns only on
// cancellation or an unrecoverable failure. Backfill sends a finite
// sequence for a historical window and then returns. Neither closes out.
type Connector interface {
	Name() string
	Ingest(ctx context.Context, out chan<- *models.RawMessage) error
	Backfill(ctx context.Context, req models.BackfillRequest, out chan<- *models.RawMessage) error
	HealthCheck(ctx context.Context) map[string]interface{}
}
