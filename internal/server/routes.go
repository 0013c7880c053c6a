package server

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes(staticDir string) {
	s.router.GET("/events", gin.WrapH(s.hub))

	api := s.router.Group("/api")
	{
		market := api.Group("/market")
		{
			market.POST("/dip", s.handleMarketDip)
			market.POST("/rally", s.handleMarketRally)
			market.POST("/reset", s.handleMarketReset)
		}

		agents := api.Group("/agents")
		{
			agents.GET("", s.handleGetAgents)
			agents.POST("/:id/rules", s.handleReloadRules)
		}
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if staticDir != "" {
		s.router.StaticFile("/", filepath.Join(staticDir, "index.html"))
		s.router.Static("/static", staticDir)
	} else {
		s.router.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"service": "autarch", "events": "/events"})
		})
	}
}
