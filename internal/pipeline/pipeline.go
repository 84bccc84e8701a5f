// Package pipeline summarizes and classifies raw posts collected in MongoDB
// and writes the results to MySQL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/metrics"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"golang.org/x/sync/errgroup"
)

var errNoContent = errors.New("post has no text, caption or transcript")

// Classifier is satisfied by *classifier.Service.
type Classifier interface {
	Classify(ctx context.Context, kind string, target classifier.Target, text string) (interface{}, error)
}

var labelKinds = []string{model.KindSentiment, model.KindCategory, model.KindRisk}

type Pipeline struct {
	Logger  log.Logger
	Config  *cfg.Config
	VideoMd *model.Video

	source     Source
	classifier Classifier
	metrics    *metrics.Metrics
}

func New(logger log.Logger, config *cfg.Config, mysql *db.Mysql, source Source, cls Classifier, m *metrics.Metrics) (*Pipeline, error) {
	videoMd, err := model.NewVideo(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Logger:     logger,
		Config:     config,
		VideoMd:    videoMd,
		source:     source,
		classifier: cls,
		metrics:    m,
	}, nil
}

func (p *Pipeline) batchSize() int {
	if p.Config.Pipeline.BatchSize > 0 {
		return p.Config.Pipeline.BatchSize
	}
	return 50
}

func (p *Pipeline) workers() int {
	if p.Config.Pipeline.Workers > 0 {
		return p.Config.Pipeline.Workers
	}
	return 4
}

// RunOnce processes one batch and returns how many posts succeeded. Failed
// posts get another attempt in a later run unless the failure is permanent.
func (p *Pipeline) RunOnce(ctx context.Context) (int, error) {
	posts, err := p.source.Fetch(ctx, p.batchSize())
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, nil
	}

	var (
		mu       sync.Mutex
		done     = make([]string, 0, len(posts))
		failures []Failure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, post := range posts {
		g.Go(func() error {
			err := p.process(gctx, post)
			p.metrics.PipelineProcessed(err)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				done = append(done, post.Key())
			case gctx.Err() != nil:
				// interrupted, not the post's fault
			default:
				p.Logger.Warn(gctx, "Failed to process post %s: %v", post.Key(), err)
				failures = append(failures, Failure{ID: post.Key(), Reason: err.Error(), Permanent: isPermanent(err)})
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := p.source.MarkProcessed(ctx, done); err != nil {
		return 0, err
	}
	if err := p.source.MarkFailed(ctx, failures); err != nil {
		p.Logger.Error(ctx, "Failed to record %d failed posts: %v", len(failures), err)
	}
	p.Logger.Info(ctx, "Pipeline processed %d/%d posts", len(done), len(posts))
	return len(done), nil
}

// Retrying can't fix a post with nothing to classify.
func isPermanent(err error) bool {
	return errors.Is(err, errNoContent) || errors.Is(err, classifier.ErrEmptyText)
}

func (p *Pipeline) process(ctx context.Context, post RawPost) error {
	content := post.Content()
	if content == "" {
		return errNoContent
	}

	res, err := p.classifier.Classify(ctx, classifier.KindSummary, classifier.Target{}, content)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	summary, _ := res.(*classifier.Summary)

	platform := post.Platform
	if platform == "" {
		platform = model.PlatformTikTok
	}
	description := post.Caption
	if description == "" {
		description = post.Text
	}
	video := &model.Video{
		Platform:     platform,
		ExternalID:   post.ExternalID(),
		Author:       post.Author,
		Description:  description,
		URL:          post.URL,
		PlayCount:    post.PlayCount,
		LikeCount:    post.LikeCount,
		ShareCount:   post.ShareCount,
		CommentCount: post.CommentCount,
		PublishedAt:  post.PublishedAt,
	}
	if summary != nil {
		video.Summary = summary.Summary
	}
	if err := p.VideoMd.Upsert(ctx, video); err != nil {
		return err
	}
	stored, err := p.VideoMd.FindByExternalID(ctx, platform, video.ExternalID)
	if err != nil {
		return fmt.Errorf("reload video: %w", err)
	}

	target := classifier.Target{Type: model.TargetVideo, ID: strconv.FormatUint(uint64(stored.ID), 10)}
	for _, kind := range labelKinds {
		if _, err := p.classifier.Classify(ctx, kind, target, content); err != nil {
			return fmt.Errorf("%s: %w", kind, err)
		}
	}
	return nil
}

// Run repeats RunOnce every interval until ctx ends. A full batch is
// followed immediately by the next one.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		n, err := p.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.Logger.Error(ctx, "Pipeline run failed: %v", err)
		}

		if err == nil && n >= p.batchSize() {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
