// Package api exposes the HTTP surface consumed by the management
// dashboard: job configuration and control, rule testing, content
// review, and dashboard counts.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/identity"
	"github.com/sitewatch/sitewatch/internal/logger"
)

const corsMaxAge = 12 * time.Hour

// Deps bundles everything the router needs.
type Deps struct {
	Jobs     database.JobStore
	Runs     database.RunStore
	Content  database.ContentStore
	Fetcher  Fetcher
	Sched    SchedulerControl
	Verifier identity.Verifier
	Registry *prometheus.Registry
	Log      logger.Interface

	// AttentionThreshold is the consecutive-failure count at which a job
	// is surfaced as needing an operator.
	AttentionThreshold int
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	corsCfg.MaxAge = corsMaxAge
	router.Use(cors.New(corsCfg))

	router.Use(ginLogger(deps.Log))
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			deps.Registry, promhttp.HandlerOpts{})))
	}

	jobsHandler := NewJobsHandler(deps.Jobs, deps.Runs, deps.Sched, deps.AttentionThreshold)
	contentHandler := NewContentHandler(deps.Content)
	testHandler := NewTestHandler(deps.Fetcher)
	statsHandler := NewStatsHandler(deps.Jobs, deps.Content)
	identityHandler := NewIdentityHandler(deps.Verifier)

	v1 := router.Group("/api/v1")

	jobs := v1.Group("/jobs")
	jobs.POST("", jobsHandler.CreateJob)
	jobs.GET("", jobsHandler.ListJobs)
	jobs.POST("/import", jobsHandler.ImportJobs)
	jobs.GET("/:id", jobsHandler.GetJob)
	jobs.PUT("/:id", jobsHandler.UpdateJob)
	jobs.DELETE("/:id", jobsHandler.DisableJob)
	jobs.POST("/:id/run", jobsHandler.RunNow)
	jobs.GET("/:id/runs", jobsHandler.ListRuns)

	v1.POST("/test/connection", testHandler.TestConnection)
	v1.POST("/test/rules", testHandler.TestRules)

	content := v1.Group("/content")
	content.GET("", contentHandler.ListContent)
	content.GET("/:id", contentHandler.GetContent)
	content.PUT("/:id", contentHandler.UpdateContent)

	v1.GET("/stats", statsHandler.GetStats)
	v1.POST("/identity/verify", identityHandler.Verify)

	return router
}

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	srv *http.Server
	log logger.Interface
}

// NewServer creates an HTTP server serving the API router.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Address,
			Handler:      NewRouter(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		log: deps.Log.WithComponent("api"),
	}
}

// Start begins serving requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "address", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}

func ginLogger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Debug("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}
