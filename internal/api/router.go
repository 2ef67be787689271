package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rmarins/sitesentry/internal/api/middleware"
	"github.com/rmarins/sitesentry/internal/storage"
)

type Server struct {
	Router *gin.Engine
}

// NewServer wires the operations surface: target management, forced
// status passes, health and metrics.
func NewServer(mode string, store storage.TargetStore, forcer StatusForcer, logger *zap.Logger) *Server {
	gin.SetMode(mode)
	router := gin.New()
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())

	h := NewHandler(store, forcer, logger)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/users/:owner/targets", h.ListTargets)
		v1.POST("/users/:owner/targets", h.AddTarget)
		v1.DELETE("/users/:owner/targets", h.RemoveTarget)
		v1.POST("/users/:owner/status", h.Status)
	}

	return &Server{Router: router}
}
