package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/api"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/respond"
	"github.com/thep200/content-radar/internal/session"
	"github.com/thep200/content-radar/pkg/log"
)

// Crawler is implemented by *api.CrawlerAPI.
type Crawler interface {
	StartLive(ctx context.Context, userID, roomID string) (session.Snapshot, error)
	Stop(ctx context.Context, userID string) error
	Sessions() []session.Snapshot
	Stats(userID string) (session.Snapshot, error)
	SubmitApifyJob(ctx context.Context, job model.ApifyJob) (model.ApifyJob, error)
}

type startRequest struct {
	UserID string `json:"user_id" binding:"required"`
	RoomID string `json:"room_id" binding:"required"`
}

type stopRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type crawlerHandler struct {
	api    Crawler
	logger log.Logger
}

func (h *crawlerHandler) register(g *gin.RouterGroup) {
	g.POST("/live/start", h.start)
	g.POST("/live/stop", h.stop)
	g.GET("/sessions", h.sessions)
	g.GET("/sessions/:userId", h.stats)
	g.POST("/apify/jobs", h.submitJob)
}

func (h *crawlerHandler) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Detail(c, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	snap, err := h.api.StartLive(c.Request.Context(), req.UserID, req.RoomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "session": snap})
}

func (h *crawlerHandler) stop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Detail(c, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if err := h.api.Stop(c.Request.Context(), req.UserID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping", "user_id": req.UserID})
}

func (h *crawlerHandler) sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.api.Sessions()})
}

func (h *crawlerHandler) stats(c *gin.Context) {
	snap, err := h.api.Stats(c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *crawlerHandler) submitJob(c *gin.Context) {
	var job model.ApifyJob
	if err := c.ShouldBindJSON(&job); err != nil {
		respond.Detail(c, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	queued, err := h.api.SubmitApifyJob(c.Request.Context(), job)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, queued)
}

func (h *crawlerHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, api.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, api.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, api.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, api.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		h.logger.Error(c.Request.Context(), "Crawler request %s failed: %v", c.Request.URL.Path, err)
	}
	respond.Detail(c, status, "%v", err)
}
