package model

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Video struct {
	Model
	Platform     string     `json:"platform" gorm:"column:platform;type:varchar(32);not null;uniqueIndex:idx_video_platform_external"`
	ExternalID   string     `json:"external_id" gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:idx_video_platform_external"`
	Author       string     `json:"author" gorm:"column:author;type:varchar(255)"`
	Description  string     `json:"description" gorm:"column:description;type:text"`
	URL          string     `json:"url" gorm:"column:url;type:varchar(512)"`
	PlayCount    int64      `json:"play_count" gorm:"column:play_count;default:0"`
	LikeCount    int64      `json:"like_count" gorm:"column:like_count;default:0"`
	ShareCount   int64      `json:"share_count" gorm:"column:share_count;default:0"`
	CommentCount int64      `json:"comment_count" gorm:"column:comment_count;default:0"`
	Summary      string     `json:"summary" gorm:"column:summary;type:text"`
	PublishedAt  *time.Time `json:"published_at" gorm:"column:published_at"`
}

func NewVideo(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Video, error) {
	return &Video{Model: newModel(config, logger, db)}, nil
}

func (v *Video) TableName() string {
	return "videos"
}

var videoUpdateColumns = []string{
	"author", "description", "url", "play_count", "like_count",
	"share_count", "comment_count", "published_at", "updated_at",
}

func (v *Video) normalize() {
	v.Author = TruncateString(v.Author, 250)
	v.URL = TruncateString(v.URL, 500)
}

// Upsert inserts or refreshes one video keyed by (platform, external_id).
// A non-empty Summary is also written.
func (v *Video) Upsert(ctx context.Context, video *Video) error {
	db, err := v.Mysql.Db()
	if err != nil {
		v.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	video.normalize()
	columns := videoUpdateColumns
	if video.Summary != "" {
		columns = append(append([]string{}, videoUpdateColumns...), "summary")
	}

	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(video).Error; err != nil {
		v.Logger.Error(ctx, "Failed to upsert video %s/%s: %v", video.Platform, video.ExternalID, err)
		return err
	}
	return nil
}

func (v *Video) CreateBatch(ctx context.Context, messages []VideoMessage) error {
	if len(messages) == 0 {
		return nil
	}
	db, err := v.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	videos := make([]Video, 0, len(messages))
	for _, msg := range messages {
		video := msg.ToVideo()
		video.normalize()
		videos = append(videos, video)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(videoUpdateColumns),
		}).CreateInBatches(videos, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create videos: %w", result.Error)
		}
		return nil
	})
}

func (v *Video) FindByExternalID(ctx context.Context, platform, externalID string) (*Video, error) {
	db, err := v.Mysql.Db()
	if err != nil {
		return nil, err
	}
	var video Video
	if err := db.WithContext(ctx).
		Where("platform = ? AND external_id = ?", platform, externalID).
		First(&video).Error; err != nil {
		return nil, err
	}
	return &video, nil
}
