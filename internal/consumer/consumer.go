package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/db"
	kafkapkg "github.com/thep200/content-radar/pkg/kafka"
	"github.com/thep200/content-radar/pkg/log"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 5 * time.Second
)

// Source is a topic reader; *kafka.Consumer satisfies it.
type Source interface {
	RegisterFallback(handler kafkapkg.Handler)
	Start(ctx context.Context) error
}

// Classifier labels stored comments; *classifier.Service satisfies it.
type Classifier interface {
	Classify(ctx context.Context, kind string, target classifier.Target, text string) (interface{}, error)
}

type BatchConsumer interface {
	Handle(ctx context.Context, value []byte) error
	Run(ctx context.Context)
}

// Serve feeds src into bc until ctx ends and the last batch is flushed.
func Serve(ctx context.Context, src Source, bc BatchConsumer) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bc.Run(ctx)
	}()

	src.RegisterFallback(bc.Handle)
	err := src.Start(ctx)
	<-done
	return err
}

type VideoConsumer struct {
	Logger  log.Logger
	VideoMd *model.Video
	batcher *Batcher[model.VideoMessage]
}

func NewVideoConsumer(logger log.Logger, config *cfg.Config, mysql *db.Mysql, batchSize int, timeout time.Duration) (*VideoConsumer, error) {
	videoMd, err := model.NewVideo(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	c := &VideoConsumer{Logger: logger, VideoMd: videoMd}
	c.batcher = NewBatcher(batchSize, timeout, c.flush)
	return c, nil
}

func (c *VideoConsumer) Handle(ctx context.Context, value []byte) error {
	var msg model.VideoMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal video message: %w", err)
	}
	if msg.ExternalID == "" {
		return fmt.Errorf("video message without external_id")
	}
	if msg.Platform == "" {
		msg.Platform = model.PlatformTikTok
	}
	return c.batcher.Add(ctx, msg)
}

func (c *VideoConsumer) Run(ctx context.Context) {
	c.batcher.Run(ctx)
}

func (c *VideoConsumer) flush(ctx context.Context, batch []model.VideoMessage) {
	c.Logger.Info(ctx, "Processing batch of %d videos", len(batch))
	if err := c.VideoMd.CreateBatch(ctx, batch); err != nil {
		c.Logger.Error(ctx, "Failed to save batch of videos: %v", err)
		return
	}
	c.Logger.Info(ctx, "Successfully saved batch of %d videos", len(batch))
}

type CommentConsumer struct {
	Logger    log.Logger
	Config    *cfg.Config
	CommentMd *model.Comment

	classifier Classifier
	batcher    *Batcher[model.CommentMessage]
}

// NewCommentConsumer stores comments and, when cls is non-nil, classifies
// each stored comment.
func NewCommentConsumer(logger log.Logger, config *cfg.Config, mysql *db.Mysql, cls Classifier, batchSize int, timeout time.Duration) (*CommentConsumer, error) {
	commentMd, err := model.NewComment(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	c := &CommentConsumer{Logger: logger, Config: config, CommentMd: commentMd, classifier: cls}
	c.batcher = NewBatcher(batchSize, timeout, c.flush)
	return c, nil
}

func (c *CommentConsumer) Handle(ctx context.Context, value []byte) error {
	var msg model.CommentMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal comment message: %w", err)
	}
	if msg.ExternalID == "" {
		return fmt.Errorf("comment message without external_id")
	}
	if msg.Platform == "" {
		msg.Platform = model.PlatformTikTok
	}
	return c.batcher.Add(ctx, msg)
}

func (c *CommentConsumer) Run(ctx context.Context) {
	c.batcher.Run(ctx)
}

func (c *CommentConsumer) flush(ctx context.Context, batch []model.CommentMessage) {
	stored, err := c.CommentMd.CreateBatch(ctx, batch)
	if err != nil {
		c.Logger.Error(ctx, "Failed to save batch of %d comments: %v", len(batch), err)
		return
	}
	c.Logger.Info(ctx, "Saved batch of %d comments", len(stored))

	if c.classifier == nil {
		return
	}
	kinds := []string{model.KindSentiment}
	if c.Config.Classifier.RiskOnComments {
		kinds = append(kinds, model.KindRisk)
	}
	for _, cm := range stored {
		target := classifier.Target{Type: model.TargetComment, ID: fmt.Sprint(cm.ID)}
		for _, kind := range kinds {
			if _, err := c.classifier.Classify(ctx, kind, target, cm.Text); err != nil {
				if errors.Is(err, classifier.ErrEmptyText) {
					break
				}
				c.Logger.Warn(ctx, "Failed to classify %s of comment %d: %v", kind, cm.ID, err)
			}
		}
	}
}
