package email_processor

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (p *Processor) runHealthServer(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", p.handleHealth)
	router.GET("/ready", p.handleReady)

	srv := &http.Server{
		Addr:    ":" + p.cfg.HealthPort,
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

func (p *Processor) handleHealth(c *gin.Context) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": time.Since(p.startTime).Seconds(),
		"processed":      p.processed,
		"skipped":        p.skipped,
		"failed":         p.failed,
		"malformed":      p.malformed,
	})
}

func (p *Processor) handleReady(c *gin.Context) {
	p.mu.RLock()
	ready := p.ready
	p.mu.RUnlock()

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready})
}
