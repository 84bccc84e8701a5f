package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/apify"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/log"
)

// ApifyCrawler runs the scraper actor for a job and stores what it returns.
type ApifyCrawler struct {
	Logger log.Logger
	Config *cfg.Config

	runner apify.Runner
	store  *Store
}

func NewApifyCrawler(logger log.Logger, config *cfg.Config, runner apify.Runner, store *Store) *ApifyCrawler {
	return &ApifyCrawler{Logger: logger, Config: config, runner: runner, store: store}
}

// Run upserts the job's videos and, when a video publisher is configured,
// also publishes them so downstream consumers see them. It returns the
// number of videos stored.
func (c *ApifyCrawler) Run(ctx context.Context, job model.ApifyJob) (int, error) {
	if len(job.Hashtags) == 0 && len(job.Profiles) == 0 && len(job.SearchQueries) == 0 {
		return 0, fmt.Errorf("apify job %s has no hashtags, profiles or queries", job.JobID)
	}

	items, err := c.runner.RunActor(ctx, apify.InputFromJob(job))
	if err != nil {
		return 0, fmt.Errorf("apify job %s: %w", job.JobID, err)
	}

	videos := make([]model.VideoMessage, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		videos = append(videos, item.ToMessage())
	}
	videos = dedupVideos(videos)

	if err := c.store.UpsertVideos(ctx, videos); err != nil {
		return 0, fmt.Errorf("apify job %s: %w", job.JobID, err)
	}
	if err := c.store.PublishVideos(ctx, videos); err != nil {
		c.Logger.Warn(ctx, "Apify job %s stored %d videos but publishing failed: %v", job.JobID, len(videos), err)
	}

	c.Logger.Info(ctx, "Apify job %s for user %s stored %d videos", job.JobID, job.UserID, len(videos))
	return len(videos), nil
}

// RunJob is Run recorded in the crawl session history. Every delivery of a
// job gets its own session.
func (c *ApifyCrawler) RunJob(ctx context.Context, job model.ApifyJob) (int, error) {
	history := c.store.SessionMd
	sessionID := uuid.NewString()
	if err := history.Open(ctx, sessionID, job.UserID, model.SessionKindApify, jobTarget(job), time.Now().UTC()); err != nil {
		c.Logger.Warn(ctx, "Apify job %s runs without a session record: %v", job.JobID, err)
		return c.Run(ctx, job)
	}

	n, err := c.Run(ctx, job)
	status := model.SessionCompleted
	switch {
	case ctx.Err() != nil:
		status = model.SessionStopped
	case err != nil:
		status = model.SessionFailed
	}
	if ferr := history.Finish(context.WithoutCancel(ctx), sessionID, status, int64(n), err); ferr != nil {
		c.Logger.Error(ctx, "Failed to finish session %s of apify job %s: %v", sessionID, job.JobID, ferr)
	}
	return n, err
}

// jobTarget reads like "job 42: #news @alice ?election".
func jobTarget(job model.ApifyJob) string {
	parts := make([]string, 0, len(job.Hashtags)+len(job.Profiles)+len(job.SearchQueries))
	for _, h := range job.Hashtags {
		parts = append(parts, "#"+strings.TrimPrefix(h, "#"))
	}
	for _, p := range job.Profiles {
		parts = append(parts, "@"+strings.TrimPrefix(p, "@"))
	}
	for _, q := range job.SearchQueries {
		parts = append(parts, "?"+q)
	}
	return fmt.Sprintf("job %s: %s", job.JobID, strings.Join(parts, " "))
}
