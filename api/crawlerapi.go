// Package api is the control surface for crawl sessions: start and stop
// live-room crawls and queue Apify scraping jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/metrics"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/session"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"github.com/thep200/content-radar/pkg/retry"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnavailable     = errors.New("not available in this process")
	ErrAlreadyRunning  = session.ErrAlreadyRunning
	ErrNotFound        = session.ErrNotFound
)

const defaultResultsPerPage = 20

var errSubscriptionClosed = errors.New("stop subscription closed")

// StopBus fans stop requests out to every replica. pkg/redis implements it.
type StopBus interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string, fn func(payload string)) error
}

// JobQueue takes serialized Apify jobs. pkg/rabbitmq implements it.
type JobQueue interface {
	Push(ctx context.Context, data []byte) error
}

// LiveRunner crawls one live session until its context ends.
type LiveRunner interface {
	Run(ctx context.Context, s *session.Session) error
}

type Options struct {
	Mysql   *db.Mysql
	Live    LiveRunner
	Bus     StopBus
	Jobs    JobQueue
	Metrics *metrics.Metrics
}

type CrawlerAPI struct {
	config   *cfg.Config
	logger   log.Logger
	registry *session.Registry
	live     LiveRunner
	bus      StopBus
	jobs     JobQueue
	metrics  *metrics.Metrics
	history  *model.CrawlSession
	// resubscribe backoff for ListenStops, never gives up
	listen retry.Policy

	wg sync.WaitGroup
}

func NewCrawlerAPI(config *cfg.Config, logger log.Logger, opts Options) (*CrawlerAPI, error) {
	a := &CrawlerAPI{
		config:   config,
		logger:   logger,
		registry: session.NewRegistry(),
		live:     opts.Live,
		bus:      opts.Bus,
		jobs:     opts.Jobs,
		metrics:  opts.Metrics,
		listen: retry.Policy{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
		},
	}
	if opts.Mysql != nil {
		history, err := model.NewCrawlSession(config, logger, opts.Mysql)
		if err != nil {
			return nil, fmt.Errorf("failed to create crawl session model: %w", err)
		}
		a.history = history
	}
	return a, nil
}

// StartLive begins crawling roomID for userID in the background. The crawl
// outlives ctx; only Stop or Shutdown ends it.
func (a *CrawlerAPI) StartLive(ctx context.Context, userID, roomID string) (session.Snapshot, error) {
	userID, roomID = strings.TrimSpace(userID), strings.TrimSpace(roomID)
	if userID == "" || roomID == "" {
		return session.Snapshot{}, fmt.Errorf("%w: user_id and room_id are required", ErrInvalidArgument)
	}
	if a.live == nil {
		return session.Snapshot{}, fmt.Errorf("%w: live crawler", ErrUnavailable)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s, err := a.registry.Start(userID, model.SessionKindLive, roomID, cancel)
	if err != nil {
		cancel()
		return session.Snapshot{}, err
	}

	if a.history != nil {
		if err := a.history.Open(ctx, s.ID, userID, s.Kind, roomID, s.StartedAt); err != nil {
			a.registry.Finish(s)
			cancel()
			return session.Snapshot{}, fmt.Errorf("failed to record session: %w", err)
		}
	}

	a.metrics.SessionStarted()
	a.wg.Add(1)
	go a.runLive(runCtx, cancel, s)

	a.logger.Info(ctx, "Started live crawl %s for user %s on room %s", s.ID, userID, roomID)
	return s.Snapshot(), nil
}

func (a *CrawlerAPI) runLive(ctx context.Context, cancel context.CancelFunc, s *session.Session) {
	defer a.wg.Done()
	defer cancel()
	defer a.metrics.SessionEnded()

	err := a.live.Run(ctx, s)

	status := model.SessionCompleted
	switch {
	case ctx.Err() != nil:
		status = model.SessionStopped
		err = nil
	case err != nil:
		status = model.SessionFailed
		a.logger.Error(context.Background(), "Live crawl %s failed: %v", s.ID, err)
	}

	if a.history != nil {
		if ferr := a.history.Finish(context.Background(), s.ID, status, s.Items(), err); ferr != nil {
			a.logger.Error(context.Background(), "Failed to finish session %s: %v", s.ID, ferr)
		}
	}
	a.registry.Finish(s)
	a.logger.Info(context.Background(), "Live crawl %s %s with %d items", s.ID, status, s.Items())
}

// Stop ends userID's session on whichever replica runs it. Without a bus
// only the local registry is consulted.
func (a *CrawlerAPI) Stop(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}

	if a.bus != nil {
		err := a.bus.Publish(ctx, a.config.Redis.StopChannel, userID)
		if err == nil {
			// Our own listener will also see it; stopping twice is harmless.
			a.stopLocal(ctx, userID)
			return nil
		}
		a.logger.Warn(ctx, "Failed to broadcast stop for %s, stopping locally: %v", userID, err)
	}

	if !a.stopLocal(ctx, userID) {
		return ErrNotFound
	}
	return nil
}

func (a *CrawlerAPI) stopLocal(ctx context.Context, userID string) bool {
	s, err := a.registry.Stop(userID)
	if err != nil {
		return false
	}
	a.logger.Info(ctx, "Stopping crawl %s of user %s", s.ID, userID)
	return true
}

// ListenStops applies stop requests from other replicas until ctx ends.
// A failed or dropped subscription is retried with backoff.
func (a *CrawlerAPI) ListenStops(ctx context.Context) error {
	if a.bus == nil {
		return nil
	}
	channel := a.config.Redis.StopChannel
	policy := a.listen
	policy.MaxAttempts = 0
	policy.OnRetry = func(err error, wait time.Duration) {
		a.logger.Warn(ctx, "Stop listener on %s failed, resubscribing in %v: %v", channel, wait, err)
	}

	err := retry.Do(ctx, policy, func() error {
		a.logger.Info(ctx, "Listening for stop requests on %s", channel)
		err := a.bus.Subscribe(ctx, channel, func(userID string) {
			a.stopLocal(ctx, userID)
		})
		if ctx.Err() != nil {
			return retry.Permanent(ctx.Err())
		}
		if err == nil {
			return errSubscriptionClosed
		}
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *CrawlerAPI) Sessions() []session.Snapshot {
	list := a.registry.List()
	out := make([]session.Snapshot, 0, len(list))
	for _, s := range list {
		out = append(out, s.Snapshot())
	}
	return out
}

func (a *CrawlerAPI) Stats(userID string) (session.Snapshot, error) {
	s, ok := a.registry.Get(userID)
	if !ok {
		return session.Snapshot{}, ErrNotFound
	}
	return s.Snapshot(), nil
}

// SubmitApifyJob validates and queues job, assigning an id when missing.
func (a *CrawlerAPI) SubmitApifyJob(ctx context.Context, job model.ApifyJob) (model.ApifyJob, error) {
	if len(job.Hashtags) == 0 && len(job.Profiles) == 0 && len(job.SearchQueries) == 0 {
		return job, fmt.Errorf("%w: at least one of hashtags, profiles or search_queries is required", ErrInvalidArgument)
	}
	if job.ResultsPerPage < 0 {
		return job, fmt.Errorf("%w: results_per_page must be positive", ErrInvalidArgument)
	}
	if a.jobs == nil {
		return job, fmt.Errorf("%w: job queue", ErrUnavailable)
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.ResultsPerPage == 0 {
		job.ResultsPerPage = defaultResultsPerPage
	}

	data, err := json.Marshal(job)
	if err != nil {
		return job, err
	}
	if err := a.jobs.Push(ctx, data); err != nil {
		return job, fmt.Errorf("failed to queue apify job: %w", err)
	}
	a.logger.Info(ctx, "Queued apify job %s for user %s", job.JobID, job.UserID)
	return job, nil
}

// Shutdown stops every local session and waits for them to be recorded.
func (a *CrawlerAPI) Shutdown(ctx context.Context) error {
	for _, s := range a.registry.List() {
		a.registry.Stop(s.UserID)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
