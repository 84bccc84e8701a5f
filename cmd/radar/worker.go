package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/internal/apify"
	"github.com/thep200/content-radar/internal/crawler"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/rabbitmq"
)

var apifyWorkerCmd = &cobra.Command{
	Use:   "apify-worker",
	Short: "Run queued Apify scraping jobs",
	RunE:  runApifyWorker,
}

func runApifyWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	mysql, err := openMysql(ctx)
	if err != nil {
		return err
	}
	defer mysql.Close()
	if err := model.Migrate(config, logger, mysql); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	videoPub, closePub := newPublisher(ctx, config.Kafka.Topics.Video)
	defer closePub()
	store, err := crawler.NewStore(logger, config, mysql, videoPub, nil, nil)
	if err != nil {
		return err
	}
	worker := crawler.NewApifyCrawler(logger, config, apify.NewCaller(logger, config), store)

	queue := rabbitmq.New(config, logger)
	defer queue.Close()

	handle := func(ctx context.Context, body []byte) error {
		var job model.ApifyJob
		if err := json.Unmarshal(body, &job); err != nil {
			// A malformed job will never succeed, drop it.
			logger.Error(ctx, "Dropping malformed apify job: %v", err)
			return nil
		}
		_, err := worker.RunJob(ctx, job)
		return err
	}

	logger.Info(ctx, "Waiting for apify jobs on %s", config.RabbitMQ.Queue)
	for {
		err := queue.Consume(ctx, handle)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			return nil
		case errors.Is(err, rabbitmq.ErrDisconnected):
			// the client reconnects in the background
			logger.Warn(ctx, "Apify job queue disconnected, resuming: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		default:
			return err
		}
	}
}
