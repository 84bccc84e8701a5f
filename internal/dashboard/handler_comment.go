package dashboard

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/respond"
)

type Comment struct {
	ID              uint   `json:"id"`
	ExternalID      string `json:"externalId"`
	VideoExternalID string `json:"videoId"`
	Author          string `json:"author"`
	Text            string `json:"text"`
	LikeCount       int64  `json:"likeCount"`
	IsLive          bool   `json:"isLive"`
	Sentiment       string `json:"sentiment,omitempty"`
	RiskLevel       string `json:"riskLevel,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

func (h *Handler) listComments(c *gin.Context) {
	ctx := c.Request.Context()
	videoID := c.Query("videoId")
	if videoID == "" {
		respond.Detail(c, http.StatusBadRequest, "videoId is required")
		return
	}
	page, pageSize := pageParams(c)

	query := h.db.WithContext(ctx).Model(&model.Comment{}).Where("video_external_id = ?", videoID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		h.Logger.Error(ctx, "Failed to count comments: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to count comments")
		return
	}

	var comments []model.Comment
	if err := h.db.WithContext(ctx).
		Where("video_external_id = ?", videoID).
		Order("id").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&comments).Error; err != nil {
		h.Logger.Error(ctx, "Failed to fetch comments: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch comments")
		return
	}

	views, err := h.withLabels(ctx, comments)
	if err != nil {
		h.Logger.Error(ctx, "Failed to fetch comment labels: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch comments")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"comments":   views,
		"pagination": newPagination(page, pageSize, total),
	})
}

// withLabels attaches the sentiment and risk labels of each comment.
func (h *Handler) withLabels(ctx context.Context, comments []model.Comment) ([]Comment, error) {
	out := make([]Comment, 0, len(comments))
	if len(comments) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(comments))
	for _, cm := range comments {
		ids = append(ids, strconv.FormatUint(uint64(cm.ID), 10))
	}
	var rows []model.Classification
	if err := h.db.WithContext(ctx).
		Where("target_type = ? AND target_id IN ? AND kind IN ?", model.TargetComment, ids,
			[]string{model.KindSentiment, model.KindRisk}).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	labels := make(map[string]map[string]string, len(rows))
	for _, r := range rows {
		if labels[r.TargetID] == nil {
			labels[r.TargetID] = make(map[string]string, 2)
		}
		labels[r.TargetID][r.Kind] = r.Label
	}

	for i, cm := range comments {
		l := labels[ids[i]]
		out = append(out, Comment{
			ID:              cm.ID,
			ExternalID:      cm.ExternalID,
			VideoExternalID: cm.VideoExternalID,
			Author:          cm.Author,
			Text:            cm.Text,
			LikeCount:       cm.LikeCount,
			IsLive:          cm.IsLive,
			Sentiment:       l[model.KindSentiment],
			RiskLevel:       l[model.KindRisk],
			CreatedAt:       cm.CreatedAt.Format(dateLayout),
		})
	}
	return out, nil
}
