package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/tiktok"
	"github.com/thep200/content-radar/pkg/log"
)

const commentPageSize = 50

// VideoCommentCrawler collects one video and its comment threads.
type VideoCommentCrawler struct {
	Logger log.Logger
	Config *cfg.Config

	api   tiktok.API
	store *Store
}

func NewVideoCommentCrawler(logger log.Logger, config *cfg.Config, api tiktok.API, store *Store) *VideoCommentCrawler {
	return &VideoCommentCrawler{Logger: logger, Config: config, api: api, store: store}
}

// Run stores the video and pages its comments until the API has no more or
// maxComments is reached (0 means no cap). It returns the comments delivered.
func (c *VideoCommentCrawler) Run(ctx context.Context, videoID string, maxComments int) (int, error) {
	var info *tiktok.VideoInfo
	if err := retryRateLimited(ctx, func() error {
		var err error
		info, err = c.api.VideoInfo(ctx, videoID)
		return err
	}); err != nil {
		return 0, fmt.Errorf("video info %s: %w", videoID, err)
	}
	if err := c.store.Videos(ctx, []model.VideoMessage{info.ToMessage()}); err != nil {
		return 0, err
	}

	total := 0
	var cursor int64
	for {
		count := commentPageSize
		if maxComments > 0 && maxComments-total < count {
			count = maxComments - total
		}

		var page *tiktok.CommentPage
		if err := retryRateLimited(ctx, func() error {
			var err error
			page, err = c.api.Comments(ctx, videoID, cursor, count)
			return err
		}); err != nil {
			return total, fmt.Errorf("comments of %s at cursor %d: %w", videoID, cursor, err)
		}

		batch := page.Comments
		if maxComments > 0 && total+len(batch) > maxComments {
			batch = batch[:maxComments-total]
		}
		messages := make([]model.CommentMessage, 0, len(batch))
		for _, cm := range batch {
			messages = append(messages, cm.ToMessage(videoID, false))
		}
		if err := c.store.Comments(ctx, ItemsVideoComment, messages); err != nil {
			return total, err
		}
		total += len(messages)

		if !page.HasMore || len(page.Comments) == 0 || (maxComments > 0 && total >= maxComments) {
			break
		}
		cursor = page.Cursor
	}

	c.Logger.Info(ctx, "Collected %d comments of video %s", total, videoID)
	return total, nil
}

// retryRateLimited runs fn again after every rate-limit wait.
func retryRateLimited(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		var rl *tiktok.RateLimitError
		if !errors.As(err, &rl) {
			return err
		}
		if !sleepCtx(ctx, rl.Wait) {
			return ctx.Err()
		}
	}
}
