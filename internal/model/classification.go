package model

import (
	"context"
	"encoding/json"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"gorm.io/gorm/clause"
)

const (
	TargetVideo   = "video"
	TargetComment = "comment"

	KindSentiment     = "sentiment"
	KindCategory      = "category"
	KindRisk          = "risk"
	KindJustification = "justification"
)

type Classification struct {
	Model
	TargetType string  `json:"target_type" gorm:"column:target_type;type:varchar(16);not null;uniqueIndex:idx_classification_target_kind"`
	TargetID   string  `json:"target_id" gorm:"column:target_id;type:varchar(128);not null;uniqueIndex:idx_classification_target_kind"`
	Kind       string  `json:"kind" gorm:"column:kind;type:varchar(32);not null;uniqueIndex:idx_classification_target_kind"`
	Label      string  `json:"label" gorm:"column:label;type:varchar(64);index"`
	Score      float64 `json:"score" gorm:"column:score"`
	Detail     string  `json:"detail" gorm:"column:detail;type:text"`
	ModelName  string  `json:"model" gorm:"column:model_name;type:varchar(128)"`
}

func NewClassification(config *cfg.Config, logger log.Logger, db *db.Mysql) (*Classification, error) {
	return &Classification{Model: newModel(config, logger, db)}, nil
}

func (c *Classification) TableName() string {
	return "classifications"
}

// SetDetail stores v as JSON in Detail.
func (c *Classification) SetDetail(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Detail = string(raw)
	return nil
}

// Save upserts the row keyed by (target_type, target_id, kind).
func (c *Classification) Save(ctx context.Context, row *Classification) error {
	db, err := c.Mysql.Db()
	if err != nil {
		c.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_type"}, {Name: "target_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "score", "detail", "model_name", "updated_at"}),
	}).Create(row).Error; err != nil {
		c.Logger.Error(ctx, "Failed to save %s classification for %s %s: %v", row.Kind, row.TargetType, row.TargetID, err)
		return err
	}
	return nil
}

// ForTarget returns every classification of a target.
func (c *Classification) ForTarget(ctx context.Context, targetType, targetID string) ([]Classification, error) {
	db, err := c.Mysql.Db()
	if err != nil {
		return nil, err
	}
	var rows []Classification
	err = db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("kind").
		Find(&rows).Error
	return rows, err
}
