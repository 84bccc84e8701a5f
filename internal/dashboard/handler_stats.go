package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/respond"
)

const defaultRiskLimit = 20

type LabelCount struct {
	Label    string  `json:"label"`
	Count    int64   `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

type RiskItem struct {
	TargetType string  `json:"targetType"`
	TargetID   string  `json:"targetId"`
	Level      string  `json:"level"`
	Score      float64 `json:"score"`
	Detail     string  `json:"detail,omitempty"`
	Text       string  `json:"text"`
	UpdatedAt  string  `json:"updatedAt"`
}

func (h *Handler) sentimentStats(c *gin.Context) {
	h.labelStats(c, model.KindSentiment)
}

func (h *Handler) categoryStats(c *gin.Context) {
	h.labelStats(c, model.KindCategory)
}

// labelStats counts the classifications of one kind per label.
func (h *Handler) labelStats(c *gin.Context, kind string) {
	ctx := c.Request.Context()
	targetType := c.Query("targetType")
	if targetType != "" && targetType != model.TargetVideo && targetType != model.TargetComment {
		respond.Detail(c, http.StatusBadRequest, "unknown targetType %q", targetType)
		return
	}

	query := h.db.WithContext(ctx).Model(&model.Classification{}).
		Select("label, COUNT(*) AS count, AVG(score) AS avg_score").
		Where("kind = ?", kind)
	if targetType != "" {
		query = query.Where("target_type = ?", targetType)
	}

	var counts []LabelCount
	if err := query.Group("label").Order("count DESC").Order("label").Scan(&counts).Error; err != nil {
		h.Logger.Error(ctx, "Failed to aggregate %s stats: %v", kind, err)
		respond.Detail(c, http.StatusInternalServerError, "failed to aggregate %s stats", kind)
		return
	}

	var total int64
	for _, lc := range counts {
		total += lc.Count
	}
	if counts == nil {
		counts = []LabelCount{}
	}
	c.JSON(http.StatusOK, gin.H{
		"kind":   kind,
		"total":  total,
		"labels": counts,
	})
}

func (h *Handler) riskStats(c *gin.Context) {
	ctx := c.Request.Context()
	levels := classifier.RiskLevelsAtLeast(c.DefaultQuery("minLevel", classifier.RiskHigh))
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultRiskLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var rows []model.Classification
	if err := h.db.WithContext(ctx).
		Where("kind = ? AND label IN ?", model.KindRisk, levels).
		Order("score DESC").Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		h.Logger.Error(ctx, "Failed to fetch risk items: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch risk items")
		return
	}

	var commentIDs, videoIDs []string
	for _, r := range rows {
		switch r.TargetType {
		case model.TargetComment:
			commentIDs = append(commentIDs, r.TargetID)
		case model.TargetVideo:
			videoIDs = append(videoIDs, r.TargetID)
		}
	}

	texts := make(map[string]string, len(rows))
	if len(commentIDs) > 0 {
		var comments []model.Comment
		if err := h.db.WithContext(ctx).Where("id IN ?", commentIDs).Find(&comments).Error; err != nil {
			h.Logger.Error(ctx, "Failed to fetch risky comments: %v", err)
			respond.Detail(c, http.StatusInternalServerError, "failed to fetch risk items")
			return
		}
		for _, cm := range comments {
			texts[model.TargetComment+"/"+strconv.FormatUint(uint64(cm.ID), 10)] = cm.Text
		}
	}
	if len(videoIDs) > 0 {
		var videos []model.Video
		if err := h.db.WithContext(ctx).Where("id IN ?", videoIDs).Find(&videos).Error; err != nil {
			h.Logger.Error(ctx, "Failed to fetch risky videos: %v", err)
			respond.Detail(c, http.StatusInternalServerError, "failed to fetch risk items")
			return
		}
		for _, v := range videos {
			text := v.Summary
			if text == "" {
				text = v.Description
			}
			texts[model.TargetVideo+"/"+strconv.FormatUint(uint64(v.ID), 10)] = text
		}
	}

	items := make([]RiskItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, RiskItem{
			TargetType: r.TargetType,
			TargetID:   r.TargetID,
			Level:      r.Label,
			Score:      r.Score,
			Detail:     r.Detail,
			Text:       texts[r.TargetType+"/"+r.TargetID],
			UpdatedAt:  r.UpdatedAt.Format(dateLayout),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"levels": levels,
		"items":  items,
	})
}
