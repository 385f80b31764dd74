package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/models"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns token-bucket rate limiting for the session trigger
// endpoints. The agent's command poll loop is mounted without it: the agent
// polls continuously and throttling it would stall tab discovery.
//
// Each caller gets its own bucket, keyed by the API key the auth middleware
// stored on the context. A chat front-end deployment authenticates with one
// key, so the key is the natural identity; with auth disabled the client IP
// stands in. Buckets idle for an hour are swept every five minutes so the
// map cannot grow without bound.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)

	getLimiter := func(identity string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		entry, ok := limiters[identity]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			limiters[identity] = entry
		}
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour)
			mu.Lock()
			for id, entry := range limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(limiters, id)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		limiter := getLimiter(callerIdentity(c))
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.APIResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, slow down the trigger rate",
				},
			})
			return
		}

		c.Next()
	}
}

// callerIdentity resolves who to bill this request to: the authenticated
// API key when auth ran, otherwise the client IP.
func callerIdentity(c *gin.Context) string {
	if key, exists := c.Get("api_key"); exists {
		return key.(string)
	}
	return c.ClientIP()
}
