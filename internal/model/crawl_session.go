package model

import (
	"context"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
)

const (
	SessionRunning   = "running"
	SessionStopped   = "stopped"
	SessionFailed    = "failed"
	SessionCompleted = "completed"

	SessionKindLive  = "live"
	SessionKindApify = "apify"
)

type CrawlSession struct {
	Model
	SessionID  string     `json:"session_id" gorm:"column:session_id;type:varchar(64);not null;uniqueIndex"`
	UserID     string     `json:"user_id" gorm:"column:user_id;type:varchar(128);not null;index"`
	Kind       string     `json:"kind" gorm:"column:kind;type:varchar(16);not null"`
	Target     string     `json:"target" gorm:"column:target;type:varchar(255)"`
	Status     string     `json:"status" gorm:"column:status;type:varchar(16);not null;index"`
	Items      int64      `json:"items" gorm:"column:items;default:0"`
	Error      string     `json:"error" gorm:"column:error;type:text"`
	StartedAt  time.Time  `json:"started_at" gorm:"column:started_at"`
	FinishedAt *time.Time `json:"finished_at" gorm:"column:finished_at"`
}

func NewCrawlSession(config *cfg.Config, logger log.Logger, db *db.Mysql) (*CrawlSession, error) {
	return &CrawlSession{Model: newModel(config, logger, db)}, nil
}

func (s *CrawlSession) TableName() string {
	return "crawl_sessions"
}

// Open records a running session.
func (s *CrawlSession) Open(ctx context.Context, sessionID, userID, kind, target string, startedAt time.Time) error {
	db, err := s.Mysql.Db()
	if err != nil {
		return err
	}
	row := &CrawlSession{
		SessionID: sessionID,
		UserID:    TruncateString(userID, 120),
		Kind:      kind,
		Target:    TruncateString(target, 250),
		Status:    SessionRunning,
		StartedAt: startedAt,
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		s.Logger.Error(ctx, "Failed to open crawl session %s: %v", sessionID, err)
		return err
	}
	return nil
}

// Finish closes a session with its final status and item count.
func (s *CrawlSession) Finish(ctx context.Context, sessionID, status string, items int64, runErr error) error {
	db, err := s.Mysql.Db()
	if err != nil {
		return err
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"items":       items,
		"finished_at": &now,
		"updated_at":  now,
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	if err := db.WithContext(ctx).Model(&CrawlSession{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error; err != nil {
		s.Logger.Error(ctx, "Failed to finish crawl session %s: %v", sessionID, err)
		return err
	}
	return nil
}
