package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/scraper"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of workers are busy.
func Health(stats func() scraper.PoolStats, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := stats()

		status := "healthy"
		if s.MaxWorkers > 0 && s.ActiveWorkers > int(float64(s.MaxWorkers)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:        status,
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			MaxWorkers:    s.MaxWorkers,
			ActiveWorkers: s.ActiveWorkers,
			Version:       "0.1.0",
		})
	}
}
