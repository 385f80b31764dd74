package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/quizflow/api/handler"
	"github.com/use-agent/quizflow/api/middleware"
	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/relay"
	"github.com/use-agent/quizflow/scraper"
	"github.com/use-agent/quizflow/store"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:   Recovery → Logger
//	Session:  Auth (if enabled) → RateLimit
//	Agent:    Auth (if enabled)
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
// The agent group skips rate limiting: the agent polls continuously by design.
func NewRouter(wf handler.Workflow, st *store.Store, rl *relay.Relay, stats func() scraper.PoolStats, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(stats, startTime))

	// Chat-trigger group — auth + rate limit.
	session := v1.Group("/session")
	if cfg.Auth.Enabled {
		session.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	session.Use(middleware.RateLimit(cfg.RateLimit))

	session.POST("/:id/start", handler.Start(wf))
	session.POST("/:id/discover", handler.Discover(wf))
	session.POST("/:id/select", handler.SelectTab(wf))
	session.POST("/:id/regenerate", handler.Regenerate(wf))
	session.GET("/:id", handler.GetSession(st))

	// Agent group — auth only.
	agent := v1.Group("/agent")
	if cfg.Auth.Enabled {
		agent.Use(middleware.Auth(cfg.Auth.APIKeys))
	}

	agent.GET("/command", handler.Command(rl))
	agent.POST("/tabs", handler.Tabs(rl))

	return r
}
