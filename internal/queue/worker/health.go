package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/eventreg/internal/observability"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness, readiness, counters and Prometheus metrics
// for the worker process.
func (w *Worker) HealthHandler(db Pinger, gatherer prometheus.Gatherer) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if !w.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unavailable"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"workerId": w.cfg.WorkerID,
			"jobs":     w.metrics.Snapshot(),
		})
	})

	if gatherer != nil {
		r.GET("/metrics", observability.Handler(gatherer))
	}

	return r
}
