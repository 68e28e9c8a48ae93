package connector

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/commshield/commstack/config"
	"github.com/commshield/commstack/interfaces"
	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/models"
)

// Runner hosts a connector: it pumps the ingest stream through the
// delivery engine, serves the health probes, and tears everything down
// in reverse order on shutdown or on the first task failure.
type Runner struct {
	connector interfaces.Connector
	deliverer *Deliverer
	producer  interfaces.RawMessagePublisher
	cfg       *config.AppConfig
	log       logger.Logger

	statusMutex sync.RWMutex
	status      enum.ConnectorStatus
	startTime   time.Time
	ready       bool
}

func NewRunner(
	conn interfaces.Connector,
	deliverer *Deliverer,
	producer interfaces.RawMessagePublisher,
	cfg *config.AppConfig,
	log logger.Logger,
) *Runner {
	return &Runner{
		connector: conn,
		deliverer: deliverer,
		producer:  producer,
		cfg:       cfg,
		log:       log,
		status:    enum.ConnectorStarting,
	}
}

// Status returns the current lifecycle phase.
func (r *Runner) Status() enum.ConnectorStatus {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.status
}

func (r *Runner) setStatus(status enum.ConnectorStatus) {
	r.statusMutex.Lock()
	r.status = status
	r.statusMutex.Unlock()
	r.log.Infof("connector %s status: %s", r.connector.Name(), status)
}

// Ready reports whether the broker producer is attached.
func (r *Runner) Ready() bool {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.ready
}

// Run blocks until SIGTERM/SIGINT or an unrecoverable task failure.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	r.startTime = time.Now()
	r.log.Infof("connector %s starting", r.connector.Name())

	r.statusMutex.Lock()
	r.ready = true
	r.statusMutex.Unlock()

	group, gctx := errgroup.WithContext(ctx)

	out := make(chan *models.RawMessage)

	// Ingest pump: the connector owns reconnects; a returned error is
	// unrecoverable and cancels the sibling tasks.
	group.Go(func() error {
		defer close(out)
		r.setStatus(enum.ConnectorRunning)
		err := r.connector.Ingest(gctx, out)
		if err != nil && gctx.Err() == nil {
			r.setStatus(enum.ConnectorDegraded)
			r.log.Errorf("ingest loop error: %v", err)
			return err
		}
		return nil
	})

	// Delivery loop: drains the ingest stream through the delivery
	// engine. Deliver never fails, so this exits only when the stream
	// closes.
	group.Go(func() error {
		for message := range out {
			r.deliverer.Deliver(gctx, message)
		}
		return nil
	})

	group.Go(func() error {
		return r.runHealthServer(gctx)
	})

	err := group.Wait()

	r.setStatus(enum.ConnectorStopping)
	if closeErr := r.producer.Close(); closeErr != nil {
		r.log.Warnf("producer close failed: %v", closeErr)
	}
	r.setStatus(enum.ConnectorStopped)

	return err
}

// RunBackfill drains a finite historical window through the delivery
// engine and returns the number of messages delivered.
func (r *Runner) RunBackfill(ctx context.Context, req models.BackfillRequest) (int, error) {
	out := make(chan *models.RawMessage)
	var backfillErr error

	go func() {
		defer close(out)
		backfillErr = r.connector.Backfill(ctx, req, out)
	}()

	delivered := 0
	for message := range out {
		r.deliverer.Deliver(ctx, message)
		delivered++
	}

	if closeErr := r.producer.Close(); closeErr != nil {
		r.log.Warnf("producer close failed: %v", closeErr)
	}
	return delivered, backfillErr
}
