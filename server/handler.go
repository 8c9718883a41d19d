package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drawduel/clipscore/service"
)

const indexMessage = "Drawing scorer is online"

// Rater is the scoring core the handlers delegate to.
type Rater interface {
	Rate(ctx context.Context, topic, image string) (*service.Result, error)
	Ready(ctx context.Context) error
}

// RateRequest is the body of POST /rate. Missing fields are empty strings.
type RateRequest struct {
	Topic string `json:"topic"`
	Image string `json:"image"`
}

type Handler struct {
	rater   Rater
	backend string
	maxBody int64
	log     *zap.Logger
}

func NewHandler(rater Rater, backend string, maxBody int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{rater: rater, backend: backend, maxBody: maxBody, log: log}
}

// Index handles GET /
func (h *Handler) Index(c *gin.Context) {
	c.String(http.StatusOK, indexMessage)
}

// Rate handles POST /rate
func (h *Handler) Rate(c *gin.Context) {
	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}

	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.rater.Rate(c.Request.Context(), req.Topic, req.Image)
	if err != nil {
		status, msg := mapError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Rating failed",
				zap.String("request_id", c.GetString(requestIDKey)),
				zap.String("topic", req.Topic),
				zap.Error(err),
			)
		}
		respondError(c, status, msg)
		return
	}

	c.JSON(http.StatusOK, res)
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthStatus{Status: "healthy", Backend: h.backend})
}

// Ready handles GET /ready
func (h *Handler) Ready(c *gin.Context) {
	if err := h.rater.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
