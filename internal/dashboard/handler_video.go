package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/respond"
	"gorm.io/gorm"
)

// Video is the list view of a video.
type Video struct {
	ID           uint   `json:"id"`
	Platform     string `json:"platform"`
	ExternalID   string `json:"externalId"`
	Author       string `json:"author"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	PlayCount    int64  `json:"playCount"`
	LikeCount    int64  `json:"likeCount"`
	ShareCount   int64  `json:"shareCount"`
	CommentCount int64  `json:"commentCount"`
	Summary      string `json:"summary"`
	PublishedAt  string `json:"publishedAt,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

func toVideo(v model.Video) Video {
	out := Video{
		ID:           v.ID,
		Platform:     v.Platform,
		ExternalID:   v.ExternalID,
		Author:       v.Author,
		Description:  v.Description,
		URL:          v.URL,
		PlayCount:    v.PlayCount,
		LikeCount:    v.LikeCount,
		ShareCount:   v.ShareCount,
		CommentCount: v.CommentCount,
		Summary:      v.Summary,
		CreatedAt:    v.CreatedAt.Format(dateLayout),
	}
	if v.PublishedAt != nil {
		out.PublishedAt = v.PublishedAt.Format(dateLayout)
	}
	return out
}

type Label struct {
	Kind   string  `json:"kind"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
	Model  string  `json:"model"`
}

type VideoDetail struct {
	Video
	Comments        []Comment `json:"comments"`
	Classifications []Label   `json:"classifications"`
}

const detailCommentLimit = 50

func (h *Handler) listVideos(c *gin.Context) {
	page, pageSize := pageParams(c)
	search := c.Query("search")
	platform := c.Query("platform")

	scope := func(q *gorm.DB) *gorm.DB {
		if search != "" {
			like := "%" + search + "%"
			q = q.Where("description LIKE ? OR author LIKE ? OR summary LIKE ?", like, like, like)
		}
		if platform != "" {
			q = q.Where("platform = ?", platform)
		}
		return q
	}

	var videos []model.Video
	if err := scope(h.db.WithContext(c.Request.Context())).
		Order("play_count DESC").Order("id").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&videos).Error; err != nil {
		h.Logger.Error(c.Request.Context(), "Failed to fetch videos: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch videos")
		return
	}

	var total int64
	if err := scope(h.db.WithContext(c.Request.Context()).Model(&model.Video{})).Count(&total).Error; err != nil {
		h.Logger.Error(c.Request.Context(), "Failed to count videos: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to count videos")
		return
	}

	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		out = append(out, toVideo(v))
	}
	c.JSON(http.StatusOK, gin.H{
		"videos":     out,
		"pagination": newPagination(page, pageSize, total),
	})
}

func (h *Handler) getVideo(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respond.Detail(c, http.StatusBadRequest, "invalid video id")
		return
	}

	var video model.Video
	if err := h.db.WithContext(ctx).First(&video, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Detail(c, http.StatusNotFound, "video %d not found", id)
			return
		}
		h.Logger.Error(ctx, "Failed to fetch video %d: %v", id, err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch video")
		return
	}

	var comments []model.Comment
	if err := h.db.WithContext(ctx).
		Where("platform = ? AND video_external_id = ?", video.Platform, video.ExternalID).
		Order("like_count DESC").Order("id").
		Limit(detailCommentLimit).
		Find(&comments).Error; err != nil {
		h.Logger.Error(ctx, "Failed to fetch comments of video %d: %v", id, err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch comments")
		return
	}
	commentViews, err := h.withLabels(ctx, comments)
	if err != nil {
		h.Logger.Error(ctx, "Failed to fetch comment labels: %v", err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch comments")
		return
	}

	var rows []model.Classification
	if err := h.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", model.TargetVideo, strconv.FormatUint(id, 10)).
		Order("kind").
		Find(&rows).Error; err != nil {
		h.Logger.Error(ctx, "Failed to fetch classifications of video %d: %v", id, err)
		respond.Detail(c, http.StatusInternalServerError, "failed to fetch classifications")
		return
	}
	labels := make([]Label, 0, len(rows))
	for _, r := range rows {
		labels = append(labels, Label{Kind: r.Kind, Label: r.Label, Score: r.Score, Detail: r.Detail, Model: r.ModelName})
	}

	c.JSON(http.StatusOK, VideoDetail{
		Video:           toVideo(video),
		Comments:        commentViews,
		Classifications: labels,
	})
}
