package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/bookmarket-service/internal/auth"
	"github.com/richardliu001/bookmarket-service/internal/config"
	"go.uber.org/zap"
)

// RouterDeps carries what the router needs beyond the handlers.
type RouterDeps struct {
	RateLimit config.RateLimitConfig
	Verifier  *auth.Verifier
	Users     UserLoader
	Gatherer  prometheus.Gatherer
	Log       *zap.SugaredLogger
}

func NewRouter(h *Handler, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(deps.Log))

	// processor deliveries are signed and redelivered on failure, never throttled
	r.POST("/purchase/webhook", h.webhook)

	api := r.Group("", RateLimitMiddleware(deps.RateLimit.RPS, deps.RateLimit.Burst))
	api.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if deps.Gatherer != nil {
		api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	RegisterHandlers(api, h, AuthMiddleware(deps.Verifier, deps.Users))
	return r
}
