package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/pipeline"
	"github.com/thep200/content-radar/pkg/db"
)

var (
	pipelineOnce bool

	pipelineCmd = &cobra.Command{
		Use:   "pipeline",
		Short: "Summarise and label raw posts from MongoDB into MySQL",
		RunE:  runPipeline,
	}
)

func init() {
	pipelineCmd.Flags().BoolVar(&pipelineOnce, "once", false, "process one batch and exit")
}

func runPipeline(cmd *cobra.Command, args []string) error {
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

	mongo, err := db.NewMongo(config)
	if err != nil {
		return err
	}
	defer mongo.Close(ctx)
	coll, err := mongo.Collection(ctx, config.Mongo.Collection)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", config.Mongo.Collection, err)
	}

	svc, err := newClassifierService(ctx, mysql, nil)
	if err != nil {
		return err
	}
	p, err := pipeline.New(logger, config, mysql, pipeline.NewMongoSource(coll, config.Pipeline.MaxAttempts), svc, nil)
	if err != nil {
		return err
	}

	if pipelineOnce {
		n, err := p.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info(ctx, "Processed %d posts", n)
		return nil
	}

	return p.Run(ctx, time.Duration(config.Pipeline.IntervalSec)*time.Second)
}
