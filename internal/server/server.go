package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/veracity/internal/broadcast"
	"github.com/ppiankov/veracity/internal/dispatch"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

// Server exposes the audit engine over HTTP: job submission, result query,
// health, and the websocket stream
type Server struct {
	pool     *dispatch.Pool
	hub      *broadcast.Hub
	provider llm.Provider
	logger   *slog.Logger
}

// New creates a server over the given pool and hub
func New(pool *dispatch.Pool, hub *broadcast.Hub, provider llm.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pool:     pool,
		hub:      hub,
		provider: provider,
		logger:   logger.With("component", "server"),
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/v1")
	{
		v1.POST("/audits", s.handleSubmit)
		v1.GET("/audits/:id", s.handleStatus)
		v1.DELETE("/audits/:id", s.handleCancel)
		v1.GET("/stream", s.handleStream)
		v1.GET("/metrics", s.handleMetrics)
	}

	return r
}

// submitRequest is the submission payload. JobID is the idempotency key;
// when omitted the pool assigns one.
type submitRequest struct {
	JobID       string   `json:"job_id"`
	Query       string   `json:"query"`
	Response    string   `json:"response"`
	ContextDocs []string `json:"context_docs"`
}

// handleSubmit handles POST /v1/audits.
//
// Returns 202 with the job_id on acceptance, 400 on malformed input,
// 409 when the job_id is already in progress, and 429 when the queue is
// at capacity (the backpressure contract).
func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	job := &model.AuditJob{
		JobID:       req.JobID,
		Query:       req.Query,
		Response:    req.Response,
		ContextDocs: req.ContextDocs,
		SubmittedAt: time.Now().UTC(),
	}

	jobID, err := s.pool.Submit(job)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "state": model.StatePending})
	case errors.Is(err, model.ErrInvalidJob):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrAlreadyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, dispatch.ErrBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		s.logger.Error("submit failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}

// handleStatus handles GET /v1/audits/:id, returning the current state and,
// once terminal, the full record
func (s *Server) handleStatus(c *gin.Context) {
	status, ok := s.pool.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job id"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleCancel handles DELETE /v1/audits/:id. A queued job is removed; an
// executing job stops cooperatively at its next stage boundary.
func (s *Server) handleCancel(c *gin.Context) {
	if s.pool.Cancel(c.Param("id")) {
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"cancelled": false, "error": "unknown or already cancelled job"})
}

// handleStream handles GET /v1/stream, upgrading to the websocket
// subscription
func (s *Server) handleStream(c *gin.Context) {
	broadcast.ServeWS(s.hub, c.Writer, c.Request)
}

// handleMetrics handles GET /v1/metrics with the current aggregate snapshot
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Metrics())
}

// handleHealth handles GET /healthz, including provider reachability
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	providerOK := s.provider != nil && s.provider.IsAvailable(ctx)
	status := http.StatusOK
	if !providerOK {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":       map[bool]string{true: "ok", false: "degraded"}[providerOK],
		"provider_ok":  providerOK,
		"queue_length": s.pool.QueueLength(),
		"subscribers":  s.hub.SubscriberCount(),
	})
}
