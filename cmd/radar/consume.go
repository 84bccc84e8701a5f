package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/internal/consumer"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/kafka"
)

var (
	consumerType   string
	consumeBatch   int
	consumeTimeout time.Duration

	consumeCmd = &cobra.Command{
		Use:   "consume",
		Short: "Persist crawled videos or comments from Kafka",
		RunE:  runConsume,
	}
)

func init() {
	consumeCmd.Flags().StringVar(&consumerType, "type", "", "consumer type: video or comment")
	consumeCmd.Flags().IntVar(&consumeBatch, "batch-size", consumer.DefaultBatchSize, "rows written per batch")
	consumeCmd.Flags().DurationVar(&consumeTimeout, "batch-timeout", consumer.DefaultBatchTimeout, "flush a partial batch after this long")
	_ = consumeCmd.MarkFlagRequired("type")
}

func runConsume(cmd *cobra.Command, args []string) error {
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

	var (
		topic string
		bc    consumer.BatchConsumer
	)
	switch consumerType {
	case "video":
		topic = config.Kafka.Topics.Video
		vc, err := consumer.NewVideoConsumer(logger, config, mysql, consumeBatch, consumeTimeout)
		if err != nil {
			return fmt.Errorf("failed to create video consumer: %w", err)
		}
		bc = vc
	case "comment":
		svc, err := newClassifierService(ctx, mysql, nil)
		if err != nil {
			return err
		}
		topic = config.Kafka.Topics.Comment
		cc, err := consumer.NewCommentConsumer(logger, config, mysql, svc, consumeBatch, consumeTimeout)
		if err != nil {
			return fmt.Errorf("failed to create comment consumer: %w", err)
		}
		bc = cc
	default:
		return fmt.Errorf("unknown consumer type %q, want video or comment", consumerType)
	}

	src, err := kafka.NewConsumer(config, logger, topic, "radar-"+consumerType+"-consumer")
	if err != nil {
		return err
	}
	logger.Info(ctx, "Starting %s consumer on %s", consumerType, topic)
	if err := consumer.Serve(ctx, src, bc); err != nil {
		return fmt.Errorf("%s consumer: %w", consumerType, err)
	}
	logger.Info(ctx, "%s consumer stopped", consumerType)
	return nil
}
