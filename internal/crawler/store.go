// Package crawler collects TikTok and Apify content into the radar tables.
package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/metrics"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/db"
	kafkapkg "github.com/thep200/content-radar/pkg/kafka"
	"github.com/thep200/content-radar/pkg/log"
)

const (
	ItemsLiveComment  = "live_comment"
	ItemsVideoComment = "video_comment"
	ItemsVideo        = "video"
)

// Store hands crawled items to Kafka when a publisher is set, otherwise
// writes them to MySQL directly.
type Store struct {
	Logger    log.Logger
	Config    *cfg.Config
	VideoMd   *model.Video
	CommentMd *model.Comment
	SessionMd *model.CrawlSession

	videoPub   kafkapkg.Publisher
	commentPub kafkapkg.Publisher
	metrics    *metrics.Metrics
}

// NewStore builds a store. Either publisher may be nil.
func NewStore(logger log.Logger, config *cfg.Config, mysql *db.Mysql, videoPub, commentPub kafkapkg.Publisher, m *metrics.Metrics) (*Store, error) {
	videoMd, err := model.NewVideo(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	commentMd, err := model.NewComment(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	sessionMd, err := model.NewCrawlSession(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	return &Store{
		Logger:     logger,
		Config:     config,
		VideoMd:    videoMd,
		CommentMd:  commentMd,
		SessionMd:  sessionMd,
		videoPub:   videoPub,
		commentPub: commentPub,
		metrics:    m,
	}, nil
}

func (s *Store) HasVideoPublisher() bool {
	return s.videoPub != nil
}

// Videos publishes or upserts the videos.
func (s *Store) Videos(ctx context.Context, videos []model.VideoMessage) error {
	if s.videoPub != nil {
		return s.PublishVideos(ctx, videos)
	}
	return s.UpsertVideos(ctx, videos)
}

func (s *Store) UpsertVideos(ctx context.Context, videos []model.VideoMessage) error {
	if err := s.VideoMd.CreateBatch(ctx, dedupVideos(videos)); err != nil {
		return err
	}
	s.metrics.AddCrawlerItems(ItemsVideo, len(videos))
	return nil
}

func (s *Store) PublishVideos(ctx context.Context, videos []model.VideoMessage) error {
	if s.videoPub == nil || len(videos) == 0 {
		return nil
	}
	messages := make([]kafkapkg.Message, 0, len(videos))
	for _, v := range videos {
		messages = append(messages, kafkapkg.Message{Key: v.ExternalID, Value: v})
	}
	if err := s.videoPub.PublishBatch(ctx, messages); err != nil {
		return fmt.Errorf("publish %d videos: %w", len(videos), err)
	}
	s.Logger.Debug(ctx, "Published %d videos", len(videos))
	return nil
}

// Comments publishes or stores the comments. kind labels the crawler metric.
func (s *Store) Comments(ctx context.Context, kind string, comments []model.CommentMessage) error {
	if len(comments) == 0 {
		return nil
	}
	if s.commentPub != nil {
		messages := make([]kafkapkg.Message, 0, len(comments))
		for _, c := range comments {
			// Keyed by video so one room's chat stays ordered on a partition.
			messages = append(messages, kafkapkg.Message{Key: c.VideoExternalID, Value: c})
		}
		if err := s.commentPub.PublishBatch(ctx, messages); err != nil {
			return fmt.Errorf("publish %d comments: %w", len(comments), err)
		}
	} else if _, err := s.CommentMd.CreateBatch(ctx, comments); err != nil {
		return err
	}
	s.metrics.AddCrawlerItems(kind, len(comments))
	return nil
}

func dedupVideos(videos []model.VideoMessage) []model.VideoMessage {
	seen := make(map[string]bool, len(videos))
	out := make([]model.VideoMessage, 0, len(videos))
	for _, v := range videos {
		key := v.Platform + "/" + v.ExternalID
		if v.ExternalID == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
