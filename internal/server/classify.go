package server

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/respond"
	"github.com/thep200/content-radar/pkg/log"
)

type classifyRequest struct {
	Text       string `json:"text" binding:"required"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

type classifyHandler struct {
	svc    Classifier
	logger log.Logger
}

func (h *classifyHandler) classify(c *gin.Context) {
	kind := c.Param("kind")
	if !slices.Contains(classifier.Kinds, kind) {
		respond.Detail(c, http.StatusNotFound, "unknown classification kind %q", kind)
		return
	}

	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Detail(c, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.TargetType != "" && req.TargetType != model.TargetVideo && req.TargetType != model.TargetComment {
		respond.Detail(c, http.StatusBadRequest, "target_type must be %q or %q", model.TargetVideo, model.TargetComment)
		return
	}
	if (req.TargetType == "") != (req.TargetID == "") {
		respond.Detail(c, http.StatusBadRequest, "target_type and target_id go together")
		return
	}

	target := classifier.Target{Type: req.TargetType, ID: req.TargetID}
	result, err := h.svc.Classify(c.Request.Context(), kind, target, req.Text)
	if err != nil {
		status := classifyStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(c.Request.Context(), "Failed to classify %s: %v", kind, err)
		}
		respond.Detail(c, status, "%v", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func classifyStatus(err error) int {
	switch {
	case errors.Is(err, classifier.ErrEmptyText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, classifier.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, classifier.ErrPersist):
		return http.StatusInternalServerError
	default:
		// the model call or its answer failed
		return http.StatusBadGateway
	}
}
