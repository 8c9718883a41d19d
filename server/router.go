package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the handlers and middleware into a gin engine.
func NewRouter(h *Handler, token string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.Use(Logger(log))
	r.Use(Recovery(log))

	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/rate", Auth(token), h.Rate)

	return r
}
