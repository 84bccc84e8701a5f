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

type Comment struct {
	Model
	Platform        string     `json:"platform" gorm:"column:platform;type:varchar(32);not null;uniqueIndex:idx_comment_platform_external"`
	ExternalID      string     `json:"external_id" gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:idx_comment_platform_external"`
	VideoExternalID string     `json:"video_external_id" gorm:"column:video_external_id;type:varchar(128);index"`
	Author          string     `json:"author" gorm:"column:author;type:varchar(255)"`
	Text            string     `json:"text" gorm:"column:text;type:text"`
	LikeCount       int64      `json:"like_count" gorm:"column:like_count;default:0"`
	IsLive          bool       `json:"is_live" gorm:"column:is_live;default:false"`
	PostedAt        *time.Time `json:"posted_at" gorm:"column:posted_at"`
}

func NewComment(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Comment, error) {
	return &Comment{Model: newModel(config, logger, db)}, nil
}

func (c *Comment) TableName() string {
	return "comments"
}

// CreateBatch stores the messages and returns the persisted rows, ids filled.
func (c *Comment) CreateBatch(ctx context.Context, messages []CommentMessage) ([]Comment, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	db, err := c.Mysql.Db()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	// Drop duplicates inside the batch, a single statement can't upsert the same key twice.
	seen := make(map[string]bool, len(messages))
	comments := make([]Comment, 0, len(messages))
	for _, msg := range messages {
		key := msg.Platform + "/" + msg.ExternalID
		if seen[key] {
			continue
		}
		seen[key] = true
		comment := msg.ToComment()
		comment.Author = TruncateString(comment.Author, 250)
		comments = append(comments, comment)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"like_count", "text", "updated_at"}),
		}).CreateInBatches(&comments, 100)
		if result.Error != nil {
			return fmt.Errorf("failed to batch create comments: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Upserted rows don't reliably report their id, read them back.
	keys := make([]string, 0, len(comments))
	for _, cm := range comments {
		keys = append(keys, cm.ExternalID)
	}
	var candidates []Comment
	if err := db.WithContext(ctx).
		Where("external_id IN ?", keys).
		Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to reload comments: %w", err)
	}
	stored := candidates[:0]
	for _, cm := range candidates {
		if seen[cm.Platform+"/"+cm.ExternalID] {
			stored = append(stored, cm)
		}
	}
	return stored, nil
}
