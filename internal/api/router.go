// Package api serves the project, file, tool-call and preview endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/opensandbox/canvas/internal/auth"
	"github.com/opensandbox/canvas/internal/events"
	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/internal/metrics"
	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/internal/template"
)

// Config holds the API server dependencies.
type Config struct {
	Manager     *project.Manager   // required
	Templates   *template.Registry // nil serves an empty template list
	Blobs       *preview.BlobStore // required
	Tokens      *auth.TokenIssuer  // required
	Broadcaster *events.Broadcaster
	EventLog    project.EventLister // nil disables GET /projects/:id/events
	APIKey      string
	PublicURL   string
	CDN         preview.CDNPolicy
	TokenTTL    time.Duration
}

// Server holds the API server dependencies.
type Server struct {
	echo        *echo.Echo
	manager     *project.Manager
	templates   *template.Registry
	blobs       *preview.BlobStore
	tokens      *auth.TokenIssuer
	broadcaster *events.Broadcaster
	eventLog    project.EventLister
	publicURL   string
	cdn         preview.CDNPolicy
	tokenTTL    time.Duration
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &Server{
		echo:        e,
		manager:     cfg.Manager,
		templates:   cfg.Templates,
		blobs:       cfg.Blobs,
		tokens:      cfg.Tokens,
		broadcaster: cfg.Broadcaster,
		eventLog:    cfg.EventLog,
		publicURL:   cfg.PublicURL,
		cdn:         cfg.CDN,
		tokenTTL:    ttl,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(logging.EchoMiddleware())
	e.Use(metrics.EchoMiddleware())
	e.Use(middleware.CORS())

	// No auth: health, metrics and content-addressed module blobs, which the
	// preview frame loads through its import map.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/blobs/:handle", s.getBlob)

	// Preview frame and live updates (preview token)
	pv := e.Group("/preview/:id", auth.PreviewTokenMiddleware(s.tokens))
	pv.GET("", s.previewDocument)
	pv.GET("/ws", s.previewSocket)

	// API routes (with auth)
	api := e.Group("")
	api.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// Projects
	api.POST("/projects", s.createProject)
	api.GET("/projects", s.listProjects)
	api.GET("/projects/:id", s.getProject)
	api.DELETE("/projects/:id", s.deleteProject)
	api.POST("/projects/:id/save", s.saveProject)
	api.POST("/projects/:id/hibernate", s.hibernateProject)
	api.GET("/projects/:id/events", s.listEvents)

	// Filesystem
	api.GET("/projects/:id/files", s.readFile)
	api.PUT("/projects/:id/files", s.writeFile)
	api.DELETE("/projects/:id/files", s.removeFile)
	api.GET("/projects/:id/files/list", s.listDir)
	api.POST("/projects/:id/files/mkdir", s.makeDir)
	api.POST("/projects/:id/files/move", s.moveFile)

	// Agent tool calls
	api.POST("/projects/:id/tool-calls", s.applyToolCalls)

	// Snapshots and archives
	api.GET("/projects/:id/snapshot", s.getSnapshot)
	api.PUT("/projects/:id/snapshot", s.putSnapshot)
	api.POST("/projects/:id/archive", s.archiveProject)
	api.POST("/projects/:id/restore", s.restoreProject)

	// Preview
	api.GET("/projects/:id/artifact", s.getArtifact)
	api.POST("/projects/:id/preview-token", s.createPreviewToken)

	// Templates
	api.GET("/templates", s.listTemplates)
	api.GET("/templates/:name", s.getTemplate)

	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
