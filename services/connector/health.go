package connector

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/commshield/commstack/internal/enum"
	"github.com/commshield/commstack/internal/models"
)

// runHealthServer serves the /health and /ready probe endpoints until
// ctx is cancelled.
func (r *Runner) runHealthServer(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", r.handleHealth)
	router.GET("/ready", r.handleReady)

	srv := &http.Server{
		Addr:    ":" + r.cfg.HealthPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (r *Runner) handleHealth(c *gin.Context) {
	status := r.Status()
	body := models.HealthStatus{
		ConnectorName: r.connector.Name(),
		Status:        status,
		UptimeSeconds: time.Since(r.startTime).Seconds(),
		Details:       r.connector.HealthCheck(c.Request.Context()),
	}

	code := http.StatusOK
	if status != enum.ConnectorRunning && status != enum.ConnectorStarting {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

func (r *Runner) handleReady(c *gin.Context) {
	ready := r.Ready() && r.Status() == enum.ConnectorRunning
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready})
}
