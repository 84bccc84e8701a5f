package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/session"
	"github.com/thep200/content-radar/internal/tiktok"
	"github.com/thep200/content-radar/pkg/log"
)

const (
	maxConsecutiveFailures = 5
	// The seen set is reset past this size. The API cursor already avoids
	// most repeats so only the last window matters.
	maxSeenComments = 100_000
	// Undelivered comments kept for the next tick. The oldest are dropped
	// past this size.
	maxPendingComments = 10_000
)

// LiveCommentCrawler polls a live room's chat until the room ends or the
// session is cancelled.
type LiveCommentCrawler struct {
	Logger log.Logger
	Config *cfg.Config

	api      tiktok.API
	store    *Store
	interval time.Duration
}

func NewLiveCommentCrawler(logger log.Logger, config *cfg.Config, api tiktok.API, store *Store) *LiveCommentCrawler {
	interval := time.Duration(config.TikTok.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LiveCommentCrawler{
		Logger:   logger,
		Config:   config,
		api:      api,
		store:    store,
		interval: interval,
	}
}

// Run crawls s.Target (the room id). It returns nil when ctx is cancelled or
// the room ends, and an error after repeated API failures.
func (c *LiveCommentCrawler) Run(ctx context.Context, s *session.Session) error {
	roomID := s.Target
	seen := make(map[string]struct{})
	var pending []model.CommentMessage
	cursor := ""
	failures := 0

	c.Logger.Info(ctx, "Live crawl %s started for user %s, room %s", s.ID, s.UserID, roomID)
	defer func() {
		if len(pending) > 0 {
			c.Logger.Error(ctx, "Live crawl %s ended with %d undelivered comments", s.ID, len(pending))
		}
		c.Logger.Info(ctx, "Live crawl %s ended after %d comments", s.ID, s.Items())
	}()

	for {
		page, err := c.api.LiveComments(ctx, roomID, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var rl *tiktok.RateLimitError
			switch {
			case errors.As(err, &rl):
				if !sleepCtx(ctx, rl.Wait) {
					return nil
				}
				continue
			case errors.Is(err, tiktok.ErrRoomEnded):
				c.Logger.Info(ctx, "Room %s has ended", roomID)
				pending = c.drain(ctx, s, pending)
				return nil
			}

			failures++
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("live comments of room %s: %w", roomID, err)
			}
			c.Logger.Warn(ctx, "Live comments of room %s failed (%d/%d): %v", roomID, failures, maxConsecutiveFailures, err)
			if !sleepCtx(ctx, c.interval) {
				return nil
			}
			continue
		}
		failures = 0
		if page.Cursor != "" {
			cursor = page.Cursor
		}

		if len(seen) > maxSeenComments {
			seen = make(map[string]struct{})
		}
		for _, cm := range page.Comments {
			if cm.ID == "" {
				continue
			}
			if _, ok := seen[cm.ID]; ok {
				continue
			}
			seen[cm.ID] = struct{}{}
			pending = append(pending, cm.ToMessage(roomID, true))
		}
		if over := len(pending) - maxPendingComments; over > 0 {
			c.Logger.Error(ctx, "Dropping %d undelivered live comments of room %s", over, roomID)
			pending = pending[over:]
		}

		if !page.Live {
			c.Logger.Info(ctx, "Room %s is no longer live", roomID)
			pending = c.drain(ctx, s, pending)
			return nil
		}
		if err := c.deliver(ctx, s, pending); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error(ctx, "Failed to deliver %d live comments of room %s, retrying next poll: %v", len(pending), roomID, err)
		} else {
			pending = nil
		}
		if !sleepCtx(ctx, c.interval) {
			return nil
		}
	}
}

func (c *LiveCommentCrawler) deliver(ctx context.Context, s *session.Session, comments []model.CommentMessage) error {
	if len(comments) == 0 {
		return nil
	}
	if err := c.store.Comments(ctx, ItemsLiveComment, comments); err != nil {
		return err
	}
	s.AddItems(len(comments))
	return nil
}

// drain retries delivery of the last comments once the room is over and
// returns what is still undelivered.
func (c *LiveCommentCrawler) drain(ctx context.Context, s *session.Session, pending []model.CommentMessage) []model.CommentMessage {
	for attempt := 1; len(pending) > 0; attempt++ {
		err := c.deliver(ctx, s, pending)
		if err == nil {
			return nil
		}
		if attempt >= maxConsecutiveFailures || ctx.Err() != nil {
			return pending
		}
		c.Logger.Warn(ctx, "Failed to deliver final %d live comments (%d/%d): %v", len(pending), attempt, maxConsecutiveFailures, err)
		if !sleepCtx(ctx, c.interval) {
			return pending
		}
	}
	return nil
}
