package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/thep200/content-radar/api"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/crawler"
	"github.com/thep200/content-radar/internal/dashboard"
	"github.com/thep200/content-radar/internal/metrics"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/server"
	"github.com/thep200/content-radar/internal/tiktok"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/rabbitmq"
	"github.com/thep200/content-radar/pkg/redis"
)

const (
	roleClassifier = "classifier"
	roleCrawler    = "crawler"
	roleDashboard  = "dashboard"
	roleAll        = "all"

	shutdownTimeout = 30 * time.Second
)

var (
	serveRoles []string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for the given roles",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringSliceVar(&serveRoles, "role", []string{roleAll}, "route groups to mount: classifier, crawler, dashboard or all")
}

func hasRole(role string) bool {
	return slices.Contains(serveRoles, roleAll) || slices.Contains(serveRoles, role)
}

func runServe(cmd *cobra.Command, args []string) error {
	for _, r := range serveRoles {
		if !slices.Contains([]string{roleClassifier, roleCrawler, roleDashboard, roleAll}, r) {
			return fmt.Errorf("unknown role %q", r)
		}
	}

	ctx, stop := signalContext()
	defer stop()

	loader.RegisterConfigChangeCallback(func(*cfg.Config) {
		logger.Notice(context.Background(), "Config file changed, restart to apply server settings")
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mysql, err := openMysql(ctx)
	if err != nil {
		return err
	}
	defer mysql.Close()
	if err := model.Migrate(config, logger, mysql); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	deps := server.Deps{
		Logger:   logger,
		Gatherer: reg,
		Checks: map[string]server.Pinger{
			"mysql": func(context.Context) error { return mysql.Ping() },
		},
	}

	if hasRole(roleClassifier) {
		svc, err := newClassifierService(ctx, mysql, m)
		if err != nil {
			return err
		}
		deps.Classifier = svc
	}

	var (
		crawlerAPI   *api.CrawlerAPI
		closeCrawler = func() {}
	)
	if hasRole(roleCrawler) {
		crawlerAPI, closeCrawler, err = newCrawlerAPI(ctx, mysql, m, deps.Checks)
		if err != nil {
			return err
		}
		deps.Crawler = crawlerAPI
		go func() {
			if err := crawlerAPI.ListenStops(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "Stop listener ended: %v", err)
			}
		}()
	}

	if hasRole(roleDashboard) {
		h, err := dashboard.NewHandler(logger, config, mysql)
		if err != nil {
			return fmt.Errorf("failed to create dashboard handler: %w", err)
		}
		deps.Dashboard = h
	}

	srv := server.NewServer(logger, config, server.NewRouter(deps))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "Received shutdown signal, gracefully shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Failed to stop HTTP server: %v", err)
	}
	if crawlerAPI != nil {
		if err := crawlerAPI.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "Crawl sessions did not finish in time: %v", err)
		}
	}
	closeCrawler()
	return nil
}

// newCrawlerAPI wires the live crawler with its Redis stop bus and the
// RabbitMQ job queue. The returned func closes those connections and the
// Kafka writers; call it once the sessions are done.
func newCrawlerAPI(ctx context.Context, mysql *db.Mysql, m *metrics.Metrics, checks map[string]server.Pinger) (*api.CrawlerAPI, func(), error) {
	videoPub, closeVideoPub := newPublisher(ctx, config.Kafka.Topics.Video)
	commentPub, closeCommentPub := newPublisher(ctx, config.Kafka.Topics.Comment)
	closers := []func(){closeVideoPub, closeCommentPub}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	store, err := crawler.NewStore(logger, config, mysql, videoPub, commentPub, m)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to create crawler store: %w", err)
	}
	live := crawler.NewLiveCommentCrawler(logger, config, tiktok.NewCaller(logger, config), store)

	opts := api.Options{Mysql: mysql, Live: live, Metrics: m}
	if config.Redis.Addr != "" {
		bus := redis.NewClient(config, logger)
		opts.Bus = bus
		checks["redis"] = bus.Ping
		closers = append(closers, closeLogged("redis", bus.Close))
	}
	if config.RabbitMQ.Url != "" {
		jobs := rabbitmq.New(config, logger)
		opts.Jobs = jobs
		closers = append(closers, closeLogged("rabbitmq", jobs.Close))
	}

	crawlerAPI, err := api.NewCrawlerAPI(config, logger, opts)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return crawlerAPI, closeAll, nil
}

func closeLogged(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			logger.Error(context.Background(), "Failed to close %s: %v", name, err)
		}
	}
}
