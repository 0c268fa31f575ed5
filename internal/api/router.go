package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gotrs-io/dedup-ce/internal/config"
	"github.com/gotrs-io/dedup-ce/internal/middleware"
)

// NewRouter assembles the gin engine: health probe, metrics, and the
// versioned API behind request-id, CORS and API-key middleware.
func NewRouter(cfg *config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(cfg.Server.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": cfg.App.Name})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.APIKey(cfg.Server.APIKey))
	h.Register(v1)
	return r
}
