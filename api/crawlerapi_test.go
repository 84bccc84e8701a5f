package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/model/modeltest"
	"github.com/thep200/content-radar/internal/session"
	"github.com/thep200/content-radar/pkg/retry"
)

// blockingRunner counts a few items then waits for cancellation, or
// returns finishErr right away when set.
type blockingRunner struct {
	finishErr error
	finish    bool
}

func (r *blockingRunner) Run(ctx context.Context, s *session.Session) error {
	s.AddItems(2)
	if r.finish || r.finishErr != nil {
		return r.finishErr
	}
	<-ctx.Done()
	return nil
}

type memBus struct {
	mu   sync.Mutex
	subs []func(string)
	sent []string
	err  error
	// Subscribe fails this many times before it succeeds
	subscribeFailures int
	subscribeCalls    int
}

func (b *memBus) Publish(_ context.Context, _ string, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, payload)
	for _, fn := range b.subs {
		fn(payload)
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, _ string, fn func(string)) error {
	b.mu.Lock()
	b.subscribeCalls++
	if b.subscribeFailures > 0 {
		b.subscribeFailures--
		b.mu.Unlock()
		return errors.New("dial tcp: connection refused")
	}
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
	<-ctx.Done()
	return nil
}

type memQueue struct {
	pushed [][]byte
}

func (q *memQueue) Push(_ context.Context, data []byte) error {
	q.pushed = append(q.pushed, data)
	return nil
}

func newAPI(t *testing.T, opts Options) (*CrawlerAPI, *modeltest.Env) {
	env := modeltest.New(t)
	opts.Mysql = env.Mysql
	a, err := NewCrawlerAPI(env.Config, env.Logger, opts)
	require.NoError(t, err)
	return a, env
}

func waitIdle(t *testing.T, a *CrawlerAPI) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func sessionRow(t *testing.T, env *modeltest.Env, id string) model.CrawlSession {
	t.Helper()
	var row model.CrawlSession
	require.NoError(t, env.DB.Where("session_id = ?", id).First(&row).Error)
	return row
}

func TestStartLive_StopLocally(t *testing.T) {
	a, env := newAPI(t, Options{Live: &blockingRunner{}})
	ctx := context.Background()

	snap, err := a.StartLive(ctx, "u1", "room-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", snap.Target)

	_, err = a.StartLive(ctx, "u1", "room-2")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.Len(t, a.Sessions(), 1)
	assert.Equal(t, model.SessionRunning, sessionRow(t, env, snap.SessionID).Status)

	require.NoError(t, a.Stop(ctx, "u1"))
	waitIdle(t, a)

	row := sessionRow(t, env, snap.SessionID)
	assert.Equal(t, model.SessionStopped, row.Status)
	assert.EqualValues(t, 2, row.Items)
	assert.NotNil(t, row.FinishedAt)
	assert.Empty(t, a.Sessions())

	assert.ErrorIs(t, a.Stop(ctx, "u1"), ErrNotFound)
}

func TestStartLive_CompletedAndFailed(t *testing.T) {
	a, env := newAPI(t, Options{Live: &blockingRunner{finish: true}})
	snap, err := a.StartLive(context.Background(), "u1", "room")
	require.NoError(t, err)
	waitIdle(t, a)
	assert.Equal(t, model.SessionCompleted, sessionRow(t, env, snap.SessionID).Status)

	a.live = &blockingRunner{finishErr: errors.New("api down")}
	snap, err = a.StartLive(context.Background(), "u1", "room")
	require.NoError(t, err)
	waitIdle(t, a)
	row := sessionRow(t, env, snap.SessionID)
	assert.Equal(t, model.SessionFailed, row.Status)
	assert.Contains(t, row.Error, "api down")
}

func TestStartLive_Validation(t *testing.T) {
	a, _ := newAPI(t, Options{Live: &blockingRunner{}})
	_, err := a.StartLive(context.Background(), " ", "room")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	b, _ := newAPI(t, Options{})
	_, err = b.StartLive(context.Background(), "u", "room")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStop_BroadcastsOverBus(t *testing.T) {
	bus := &memBus{}
	a, _ := newAPI(t, Options{Live: &blockingRunner{}, Bus: bus})
	replica, _ := newAPI(t, Options{Live: &blockingRunner{}, Bus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go replica.ListenStops(ctx)
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := replica.StartLive(context.Background(), "u1", "room")
	require.NoError(t, err)

	// a has no local session but the broadcast reaches the replica.
	require.NoError(t, a.Stop(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, bus.sent)
	waitIdle(t, replica)
	assert.Empty(t, replica.Sessions())
}

func TestListenStops_ResubscribesAfterFailure(t *testing.T) {
	bus := &memBus{subscribeFailures: 2}
	a, _ := newAPI(t, Options{Live: &blockingRunner{}, Bus: bus})
	replica, _ := newAPI(t, Options{Live: &blockingRunner{}, Bus: bus})
	replica.listen = retry.Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- replica.ListenStops(ctx) }()
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == 1 && bus.subscribeCalls == 3
	}, time.Second, 5*time.Millisecond)

	_, err := replica.StartLive(context.Background(), "u1", "room")
	require.NoError(t, err)
	require.NoError(t, a.Stop(context.Background(), "u1"))
	require.Eventually(t, func() bool {
		return len(replica.Sessions()) == 0
	}, time.Second, 5*time.Millisecond)
	waitIdle(t, replica)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not return after cancel")
	}
}

func TestStop_FallsBackWhenBusFails(t *testing.T) {
	bus := &memBus{err: errors.New("redis down")}
	a, _ := newAPI(t, Options{Live: &blockingRunner{}, Bus: bus})

	_, err := a.StartLive(context.Background(), "u1", "room")
	require.NoError(t, err)
	require.NoError(t, a.Stop(context.Background(), "u1"))
	waitIdle(t, a)

	assert.ErrorIs(t, a.Stop(context.Background(), "u1"), ErrNotFound)
}

func TestStats(t *testing.T) {
	a, _ := newAPI(t, Options{Live: &blockingRunner{}})
	_, err := a.Stats("nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = a.StartLive(context.Background(), "u1", "room")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := a.Stats("u1")
		return err == nil && snap.Items == 2
	}, time.Second, 5*time.Millisecond)
	waitIdle(t, a)
}

func TestSubmitApifyJob(t *testing.T) {
	q := &memQueue{}
	a, _ := newAPI(t, Options{Jobs: q})

	job, err := a.SubmitApifyJob(context.Background(), model.ApifyJob{UserID: "u1", Hashtags: []string{"pemilu"}})
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, defaultResultsPerPage, job.ResultsPerPage)

	require.Len(t, q.pushed, 1)
	var queued model.ApifyJob
	require.NoError(t, json.Unmarshal(q.pushed[0], &queued))
	assert.Equal(t, job.JobID, queued.JobID)

	_, err = a.SubmitApifyJob(context.Background(), model.ApifyJob{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	b, _ := newAPI(t, Options{})
	_, err = b.SubmitApifyJob(context.Background(), model.ApifyJob{Hashtags: []string{"x"}})
	assert.ErrorIs(t, err, ErrUnavailable)
}
