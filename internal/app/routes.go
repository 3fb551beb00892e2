package app

import (
	"net/http"
	"time"

	"github.com/dialect-so/core/internal/middleware"
	"github.com/dialect-so/core/internal/modules/content/shared"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"github.com/dialect-so/core/internal/modules/ingest/chunk"
	"github.com/dialect-so/core/internal/modules/ingest/deepscrape"
	"github.com/dialect-so/core/internal/modules/ingest/metadata"
	"github.com/dialect-so/core/internal/modules/processing/summary"
	"github.com/dialect-so/core/internal/modules/tasks/crontask"
	pkgredis "github.com/dialect-so/core/internal/pkg/redis"
	"github.com/dialect-so/core/internal/pkg/response"
	"github.com/dialect-so/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "dialect-core",
		"version":  "1.0.0",
		"homepage": "https://dialect.so",
	}

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	api := r.Group("/api/v1")
	api.Use(middleware.OptionalAuth())

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(a.startTime()).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	// Shared services
	taskSvc := taskqueue.NewService(rc)
	chunkSvc := chunk.NewService(db)
	summarySvc := summary.NewService(db, a.logger, a.cfg.AI, chunkSvc, taskSvc, a.hub)
	scrapeClient := deepscrape.NewClient(a.cfg.Scraper)
	deepSvc := deepscrape.NewService(db, a.logger, chunkSvc, scrapeClient, taskSvc, a.hub, summarySvc)
	metaSvc := metadata.NewService(db, a.logger, a.hub)
	sharedSvc := shared.NewService(db, a.hub)

	// WebSocket gateway
	gateway.RegisterRoutes(api, a.hub)

	// Shared content
	shared.NewHandler(sharedSvc, chunkSvc).RegisterRoutes(api, authMW)

	// Ingestion
	metadata.NewHandler(metaSvc).RegisterRoutes(api)
	deepscrape.NewHandler(deepSvc).RegisterRoutes(api)

	// Summarization
	summary.NewHandler(summarySvc).RegisterRoutes(api, authMW)

	// Cron and task queue administration
	crontask.NewHandler(a.sched, taskSvc).RegisterRoutes(api, authMW)
}
