// Package server exposes the HTTP surface: the SSE event stream,
// market-control endpoints, agent state and hot-reload endpoints, and
// the static dashboard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autarch-dev/autarch/internal/runtime"
	"github.com/autarch-dev/autarch/internal/sse"
)

// Server is the REST + SSE server.
type Server struct {
	router  *gin.Engine
	runtime *runtime.Runtime
	hub     *sse.Hub
	rpcMode func() string
	addr    string
	server  *http.Server
}

// Config contains server configuration. RPCMode, when set, reports the
// current RPC connection mode on the health endpoint.
type Config struct {
	Host      string
	Port      int
	Runtime   *runtime.Runtime
	Hub       *sse.Hub
	RPCMode   func() string
	StaticDir string
}

// NewServer creates the API server and wires the runtime's events into
// the SSE hub.
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router:  router,
		runtime: config.Runtime,
		hub:     config.Hub,
		rpcMode: config.RPCMode,
		addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
	}
	s.setupRoutes(config.StaticDir)
	ForwardRuntimeEvents(config.Runtime, config.Hub)
	return s
}

// Start starts the HTTP server and blocks until it closes.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

// LoggerMiddleware logs each request through zerolog.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}
		logEvent.Msg("API request")
	}
}
