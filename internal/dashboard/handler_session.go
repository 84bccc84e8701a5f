package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/respond"
	"gorm.io/gorm"
)

type SessionRecord struct {
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	Status     string `json:"status"`
	Items      int64  `json:"items"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

const sessionTimeLayout = "2006-01-02 15:04:05"

func (h *Handler) listSessions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := pageParams(c)
	userID := c.Query("userId")
	status := c.Query("status")

	scope := func(q *gorm.DB) *gorm.DB {
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var rows []model.CrawlSession
	if err := scope(h.db.WithContext(ctx)).
		Order("started_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error; err != nil {
		h.Logger.Error(ctx, "Failed to fetch crawl sessions: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}

	var total int64
	if err := scope(h.db.WithContext(ctx).Model(&model.CrawlSession{})).Count(&total).Error; err != nil {
		h.Logger.Error(ctx, "Failed to count crawl sessions: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to count sessions")
		return
	}

	out := make([]SessionRecord, 0, len(rows))
	for _, s := range rows {
		rec := SessionRecord{
			SessionID: s.SessionID,
			UserID:    s.UserID,
			Kind:      s.Kind,
			Target:    s.Target,
			Status:    s.Status,
			Items:     s.Items,
			Error:     s.Error,
			StartedAt: s.StartedAt.Format(sessionTimeLayout),
		}
		if s.FinishedAt != nil {
			rec.FinishedAt = s.FinishedAt.Format(sessionTimeLayout)
		}
		out = append(out, rec)
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions":   out,
		"pagination": newPagination(page, pageSize, total),
	})
}
