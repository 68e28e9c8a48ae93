package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
	"github.com/commshield/commstack/internal/tracing"
)

// RetryClassifier reports whether an error is worth retrying. The
// default treats every error as transient.
type RetryClassifier func(err error) bool

func retryAll(error) bool { return true }

// Deliverer is the delivery engine shared by every connector. Deliver
// never returns an error: a message either reaches the raw topic or is
// dead-lettered, and HTTP forwarding failures are swallowed.
type Deliverer struct {
	producer      interfaces.RawMessagePublisher
	forwarder     interfaces.IngestionForwarder
	connectorName string
	retry         *config.RetryConfig
	retryable     RetryClassifier
	log           logger.Logger
}

func NewDeliverer(
	producer interfaces.RawMessagePublisher,
	forwarder interfaces.IngestionForwarder,
	connectorName string,
	retryCfg *config.RetryConfig,
	log logger.Logger,
) *Deliverer {
	return &Deliverer{
		producer:      producer,
		forwarder:     forwarder,
		connectorName: connectorName,
		retry:         retryCfg,
		retryable:     retryAll,
		log:           log,
	}
}

// SetRetryClassifier narrows the set of retryable errors. Errors the
// classifier rejects dead-letter immediately without consuming the
// remaining retry budget.
func (d *Deliverer) SetRetryClassifier(classifier RetryClassifier) {
	if classifier != nil {
		d.retryable = classifier
	}
}

// Deliver publishes one message to the broker with bounded
// exponential-backoff retry, dead-letters it on exhaustion, and
// best-effort forwards it to the ingestion API on success.
func (d *Deliverer) Deliver(ctx context.Context, message *models.RawMessage) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Deliverer.Deliver")
	defer span.Finish()

	attempts, err := d.publishWithRetry(ctx, message)
	if err != nil {
		// shutdown is not a delivery failure: the broker never refused
		// the message, so it replays on restart instead of
		// dead-lettering
		if ctx.Err() != nil {
			d.log.Warnf("delivery of %s interrupted by shutdown after %d attempts",
				message.RawMessageID, attempts)
			return
		}
		tracing.TraceErr(span, err)
		d.log.Errorf("broker delivery failed permanently for %s after %d attempts: %v",
			message.RawMessageID, attempts, err)
		d.sendDeadLetter(ctx, message, err, attempts)
		return
	}

	d.forward(ctx, message)
}

func (d *Deliverer) publishWithRetry(ctx context.Context, message *models.RawMessage) (int, error) {
	wait := &backoff.Backoff{
		Min:    d.retry.InitialWait,
		Max:    d.retry.MaxWait,
		Factor: d.retry.Multiplier,
	}

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		lastErr = d.producer.SendRaw(ctx, message)
		if lastErr == nil {
			return attempt, nil
		}
		if !d.retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == d.retry.MaxAttempts {
			break
		}

		d.log.Warnf("broker delivery attempt %d/%d failed for %s: %v",
			attempt, d.retry.MaxAttempts, message.RawMessageID, lastErr)
		select {
		case <-time.After(wait.Duration()):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
	return d.retry.MaxAttempts, lastErr
}

// sendDeadLetter is fire-and-forget: a dead-letter publish failure is
// logged, never retried, trading dead-letter loss for liveness.
func (d *Deliverer) sendDeadLetter(ctx context.Context, message *models.RawMessage, cause error, attempts int) {
	envelope := &models.DeadLetterEnvelope{
		OriginalMessage: *message,
		ConnectorName:   d.connectorName,
		Error:           cause.Error(),
		Attempts:        attempts,
		FailedAt:        time.Now().UTC(),
	}
	if err := d.producer.SendDeadLetter(ctx, envelope); err != nil {
		d.log.Errorf("dead-letter publish failed for %s: %v", message.RawMessageID, err)
	}
}

func (d *Deliverer) forward(ctx context.Context, message *models.RawMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		d.log.Warnf("ingestion API marshal failed for %s: %v", message.RawMessageID, err)
		return
	}
	if err := d.forwarder.Submit(ctx, payload); err != nil {
		d.log.Warnf("ingestion API submit failed for %s: %v", message.RawMessageID, err)
	}
}
