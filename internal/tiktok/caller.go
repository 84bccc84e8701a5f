// Package tiktok calls the unofficial TikTok scraping API for video
// metadata, video comments and live-room chat.
package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/limiter"
	"github.com/thep200/content-radar/pkg/log"
)

var (
	ErrRateLimited = errors.New("tiktok api rate limited")
	ErrRoomEnded   = errors.New("live room has ended")
)

// RateLimitError carries how long to wait before calling again.
type RateLimitError struct {
	Wait    time.Duration
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v, retry in %v", ErrRateLimited, e.Wait.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// API is what the crawlers depend on.
type API interface {
	VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error)
	Comments(ctx context.Context, videoID string, cursor int64, count int) (*CommentPage, error)
	LiveComments(ctx context.Context, roomID, cursor string) (*LiveCommentPage, error)
}

type Caller struct {
	Logger log.Logger
	Config *cfg.Config

	limiter *limiter.RateLimiter
	client  *http.Client
	now     func() time.Time
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	return &Caller{
		Logger:  logger,
		Config:  config,
		limiter: limiter.NewRateLimiter(config.TikTok.RequestsPerSecond),
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

func (c *Caller) VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	var out envelope[VideoInfo]
	if err := c.get(ctx, "/video/info", url.Values{"video_id": {videoID}}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Caller) Comments(ctx context.Context, videoID string, cursor int64, count int) (*CommentPage, error) {
	q := url.Values{
		"video_id": {videoID},
		"cursor":   {strconv.FormatInt(cursor, 10)},
		"count":    {strconv.Itoa(count)},
	}
	var out envelope[CommentPage]
	if err := c.get(ctx, "/video/comments", q, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Caller) LiveComments(ctx context.Context, roomID, cursor string) (*LiveCommentPage, error) {
	q := url.Values{"room_id": {roomID}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var out envelope[LiveCommentPage]
	if err := c.get(ctx, "/live/comments", q, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// HandleRateLimit returns a *RateLimitError when resp signals an exhausted quota.
func (c *Caller) HandleRateLimit(ctx context.Context, resp *http.Response) error {
	limited := resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0")
	if !limited {
		return nil
	}

	fallback := time.Duration(c.Config.TikTok.RateLimitResetMin) * time.Minute
	now := c.now()

	resetUnix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		c.Logger.Warn(ctx, "Rate limit hit without a reset time, waiting %v", fallback)
		return &RateLimitError{Wait: fallback, ResetAt: now.Add(fallback)}
	}

	resetAt := time.Unix(resetUnix, 0)
	wait := resetAt.Sub(now)
	if wait <= 0 {
		wait = fallback
		resetAt = now.Add(wait)
	}
	c.Logger.Warn(ctx, "Rate limit hit, waiting %v until %v", wait.Round(time.Second), resetAt.Format(time.RFC3339))
	return &RateLimitError{Wait: wait, ResetAt: resetAt}
}

func (c *Caller) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	fullUrl := strings.TrimRight(c.Config.TikTok.ApiUrl, "/") + path + "?" + query.Encode()
	c.Logger.Debug(ctx, "Calling TikTok API: %s", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.Config.TikTok.ApiKey != "" {
		req.Header.Set("X-Api-Key", c.Config.TikTok.ApiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tiktok %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := c.HandleRateLimit(ctx, resp); err != nil {
		return err
	}
	if resp.StatusCode == http.StatusGone {
		return ErrRoomEnded
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tiktok %s: unexpected status %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tiktok %s: decode: %w", path, err)
	}
	if env, ok := out.(interface{ status() apiStatus }); ok {
		if st := env.status(); st.Code != 0 {
			return fmt.Errorf("tiktok %s: api error %d: %s", path, st.Code, st.Msg)
		}
	}
	return nil
}
