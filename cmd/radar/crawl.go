package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/internal/crawler"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/tiktok"
)

var (
	crawlVideoID  string
	crawlMaxItems int

	crawlVideoCmd = &cobra.Command{
		Use:   "crawl-video",
		Short: "Fetch one TikTok video and its comments",
		RunE:  runCrawlVideo,
	}
)

func init() {
	crawlVideoCmd.Flags().StringVar(&crawlVideoID, "video-id", "", "TikTok video id")
	crawlVideoCmd.Flags().IntVar(&crawlMaxItems, "max", 500, "stop after this many comments, 0 for all")
	_ = crawlVideoCmd.MarkFlagRequired("video-id")
	rootCmd.AddCommand(crawlVideoCmd)
}

func runCrawlVideo(cmd *cobra.Command, args []string) error {
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

	videoPub, closeVideo := newPublisher(ctx, config.Kafka.Topics.Video)
	defer closeVideo()
	commentPub, closeComment := newPublisher(ctx, config.Kafka.Topics.Comment)
	defer closeComment()
	store, err := crawler.NewStore(logger, config, mysql, videoPub, commentPub, nil)
	if err != nil {
		return err
	}

	_, err = crawler.NewVideoCommentCrawler(logger, config, tiktok.NewCaller(logger, config), store).
		Run(ctx, crawlVideoID, crawlMaxItems)
	return err
}
