package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/content-radar/internal/apify"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/model/modeltest"
	"github.com/thep200/content-radar/internal/session"
	"github.com/thep200/content-radar/internal/tiktok"
	kafkapkg "github.com/thep200/content-radar/pkg/kafka"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []kafkapkg.Message
}

func (p *fakePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	return p.PublishBatch(ctx, []kafkapkg.Message{{Key: key, Value: value}})
}

func (p *fakePublisher) PublishBatch(_ context.Context, messages []kafkapkg.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// flakyPublisher fails the first failures batches.
type flakyPublisher struct {
	fakePublisher
	failures int
}

func (p *flakyPublisher) PublishBatch(ctx context.Context, messages []kafkapkg.Message) error {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return errors.New("broker unavailable")
	}
	p.mu.Unlock()
	return p.fakePublisher.PublishBatch(ctx, messages)
}

func (p *flakyPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	return p.PublishBatch(ctx, []kafkapkg.Message{{Key: key, Value: value}})
}

type liveResponse struct {
	page *tiktok.LiveCommentPage
	err  error
}

type fakeAPI struct {
	mu       sync.Mutex
	live     []liveResponse
	liveIdx  int
	cursors  []string
	video    *tiktok.VideoInfo
	comments []*tiktok.CommentPage
	counts   []int
}

func (f *fakeAPI) VideoInfo(context.Context, string) (*tiktok.VideoInfo, error) {
	return f.video, nil
}

func (f *fakeAPI) Comments(_ context.Context, _ string, _ int64, count int) (*tiktok.CommentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, count)
	page := f.comments[0]
	f.comments = f.comments[1:]
	return page, nil
}

// LiveComments replays the scripted responses, then keeps returning an empty live page.
func (f *fakeAPI) LiveComments(_ context.Context, _ string, cursor string) (*tiktok.LiveCommentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if f.liveIdx >= len(f.live) {
		return &tiktok.LiveCommentPage{Live: true, Cursor: cursor}, nil
	}
	r := f.live[f.liveIdx]
	f.liveIdx++
	return r.page, r.err
}

func liveComments(ids ...string) []tiktok.Comment {
	out := make([]tiktok.Comment, 0, len(ids))
	for _, id := range ids {
		out = append(out, tiktok.Comment{ID: id, Text: "text " + id})
	}
	return out
}

func newStore(t *testing.T, videoPub, commentPub kafkapkg.Publisher) (*Store, *modeltest.Env) {
	env := modeltest.New(t)
	store, err := NewStore(env.Logger, env.Config, env.Mysql, videoPub, commentPub, nil)
	require.NoError(t, err)
	return store, env
}

func TestLiveCommentCrawler_DedupsAndStoresUntilRoomEnds(t *testing.T) {
	store, env := newStore(t, nil, nil)
	api := &fakeAPI{live: []liveResponse{
		{page: &tiktok.LiveCommentPage{Comments: liveComments("1", "2"), Cursor: "c1", Live: true}},
		{page: &tiktok.LiveCommentPage{Comments: liveComments("2", "3", ""), Cursor: "c2", Live: true}},
		{page: &tiktok.LiveCommentPage{Comments: liveComments("3"), Live: false}},
	}}
	c := NewLiveCommentCrawler(env.Logger, env.Config, api, store)
	c.interval = time.Millisecond

	s, err := session.NewRegistry().Start("u1", model.SessionKindLive, "room-9", nil)
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background(), s))
	assert.Equal(t, int64(3), s.Items())
	assert.Equal(t, []string{"", "c1", "c2"}, api.cursors)

	var rows []model.Comment
	require.NoError(t, env.DB.Order("external_id").Find(&rows).Error)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].IsLive)
	assert.Equal(t, "room-9", rows[0].VideoExternalID)
}

func TestLiveCommentCrawler_PublishesWhenProducerSet(t *testing.T) {
	pub := &fakePublisher{}
	store, env := newStore(t, nil, pub)
	api := &fakeAPI{live: []liveResponse{
		{page: &tiktok.LiveCommentPage{Comments: liveComments("a", "b"), Live: false}},
	}}
	c := NewLiveCommentCrawler(env.Logger, env.Config, api, store)

	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", nil)
	require.NoError(t, c.Run(context.Background(), s))

	assert.Equal(t, 2, pub.count())
	var count int64
	env.DB.Model(&model.Comment{}).Count(&count)
	assert.Zero(t, count)
}

func TestLiveCommentCrawler_RetriesFailedDelivery(t *testing.T) {
	pub := &flakyPublisher{failures: 1}
	store, env := newStore(t, nil, pub)
	api := &fakeAPI{live: []liveResponse{
		{page: &tiktok.LiveCommentPage{Comments: liveComments("a", "b"), Cursor: "c1", Live: true}},
		{page: &tiktok.LiveCommentPage{Comments: liveComments("a", "b", "c"), Cursor: "c2", Live: true}},
		{page: &tiktok.LiveCommentPage{Live: false}},
	}}
	c := NewLiveCommentCrawler(env.Logger, env.Config, api, store)
	c.interval = time.Millisecond

	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", nil)
	require.NoError(t, c.Run(context.Background(), s))

	assert.Equal(t, int64(3), s.Items())
	require.Equal(t, 3, pub.count())
	keys := make([]string, 0, 3)
	for _, m := range pub.messages {
		keys = append(keys, m.Value.(model.CommentMessage).ExternalID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestLiveCommentCrawler_DeliversPendingWhenRoomEnds(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	store, env := newStore(t, nil, pub)
	api := &fakeAPI{live: []liveResponse{
		{page: &tiktok.LiveCommentPage{Comments: liveComments("a"), Live: true}},
		{err: tiktok.ErrRoomEnded},
	}}
	c := NewLiveCommentCrawler(env.Logger, env.Config, api, store)
	c.interval = time.Millisecond

	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", nil)
	require.NoError(t, c.Run(context.Background(), s))
	assert.Equal(t, int64(1), s.Items())
	assert.Equal(t, 1, pub.count())
}

func TestLiveCommentCrawler_WaitsOutRateLimit(t *testing.T) {
	store, env := newStore(t, nil, nil)
	api := &fakeAPI{live: []liveResponse{
		{err: &tiktok.RateLimitError{Wait: 5 * time.Millisecond}},
		{page: &tiktok.LiveCommentPage{Comments: liveComments("x"), Live: false}},
	}}
	c := NewLiveCommentCrawler(env.Logger, env.Config, api, store)
	c.interval = time.Millisecond

	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", nil)
	require.NoError(t, c.Run(context.Background(), s))
	assert.Equal(t, int64(1), s.Items())
}

func TestLiveCommentCrawler_CancelReturnsNil(t *testing.T) {
	store, env := newStore(t, nil, nil)
	api := &fakeAPI{live: []liveResponse{
		{err: &tiktok.RateLimitError{Wait: time.Hour}},
	}}
	c := NewLiveCommentCrawler(env.Logger, env.Config, api, store)

	ctx, cancel := context.WithCancel(context.Background())
	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", cancel)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, s) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("crawler did not stop after cancel")
	}
}

func TestLiveCommentCrawler_GivesUpAfterRepeatedFailures(t *testing.T) {
	store, env := newStore(t, nil, nil)
	boom := errors.New("upstream down")
	responses := make([]liveResponse, maxConsecutiveFailures)
	for i := range responses {
		responses[i] = liveResponse{err: boom}
	}
	c := NewLiveCommentCrawler(env.Logger, env.Config, &fakeAPI{live: responses}, store)
	c.interval = time.Millisecond

	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", nil)
	err := c.Run(context.Background(), s)
	assert.ErrorIs(t, err, boom)
}

func TestLiveCommentCrawler_RoomEnded(t *testing.T) {
	store, env := newStore(t, nil, nil)
	c := NewLiveCommentCrawler(env.Logger, env.Config, &fakeAPI{live: []liveResponse{{err: tiktok.ErrRoomEnded}}}, store)

	s, _ := session.NewRegistry().Start("u1", model.SessionKindLive, "room", nil)
	assert.NoError(t, c.Run(context.Background(), s))
}

func TestVideoCommentCrawler_PagesUntilCap(t *testing.T) {
	store, env := newStore(t, nil, nil)
	api := &fakeAPI{
		video: &tiktok.VideoInfo{ID: "v1", Desc: "clip", Author: tiktok.Author{UniqueID: "dan"}},
		comments: []*tiktok.CommentPage{
			{Comments: liveComments("1", "2", "3"), Cursor: 3, HasMore: true},
			{Comments: liveComments("4", "5", "6"), Cursor: 6, HasMore: true},
		},
	}
	c := NewVideoCommentCrawler(env.Logger, env.Config, api, store)

	n, err := c.Run(context.Background(), "v1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{5, 2}, api.counts)

	var comments int64
	env.DB.Model(&model.Comment{}).Count(&comments)
	assert.EqualValues(t, 5, comments)

	video, err := store.VideoMd.FindByExternalID(context.Background(), model.PlatformTikTok, "v1")
	require.NoError(t, err)
	assert.Equal(t, "dan", video.Author)
}

func TestVideoCommentCrawler_StopsWhenNoMore(t *testing.T) {
	store, env := newStore(t, nil, nil)
	api := &fakeAPI{
		video:    &tiktok.VideoInfo{ID: "v2"},
		comments: []*tiktok.CommentPage{{Comments: liveComments("1"), HasMore: false}},
	}
	n, err := NewVideoCommentCrawler(env.Logger, env.Config, api, store).Run(context.Background(), "v2", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{commentPageSize}, api.counts)
}

type fakeRunner struct {
	items []apify.Item
	input apify.Input
	err   error
}

func (f *fakeRunner) RunActor(_ context.Context, input apify.Input) ([]apify.Item, error) {
	f.input = input
	return f.items, f.err
}

func TestApifyCrawler_UpsertsAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	store, env := newStore(t, pub, nil)
	runner := &fakeRunner{items: []apify.Item{
		{ID: "1", Text: "a", PlayCount: 10},
		{ID: "1", Text: "a again", PlayCount: 11},
		{ID: "2", Text: "b"},
		{Text: "no id"},
	}}
	c := NewApifyCrawler(env.Logger, env.Config, runner, store)

	n, err := c.Run(context.Background(), model.ApifyJob{JobID: "j1", Hashtags: []string{"news"}, ResultsPerPage: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"news"}, runner.input.Hashtags)
	assert.Equal(t, 2, pub.count())

	var videos int64
	env.DB.Model(&model.Video{}).Count(&videos)
	assert.EqualValues(t, 2, videos)
}

func TestApifyCrawler_RejectsEmptyJob(t *testing.T) {
	store, env := newStore(t, nil, nil)
	_, err := NewApifyCrawler(env.Logger, env.Config, &fakeRunner{}, store).Run(context.Background(), model.ApifyJob{JobID: "j"})
	assert.Error(t, err)
}

func TestApifyCrawler_RunJobRecordsSession(t *testing.T) {
	store, env := newStore(t, nil, nil)
	runner := &fakeRunner{items: []apify.Item{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}}
	c := NewApifyCrawler(env.Logger, env.Config, runner, store)

	n, err := c.RunJob(context.Background(), model.ApifyJob{JobID: "j1", UserID: "u7", Hashtags: []string{"#news"}, Profiles: []string{"alice"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var rows []model.CrawlSession
	require.NoError(t, env.DB.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "u7", rows[0].UserID)
	assert.Equal(t, model.SessionKindApify, rows[0].Kind)
	assert.Equal(t, "job j1: #news @alice", rows[0].Target)
	assert.Equal(t, model.SessionCompleted, rows[0].Status)
	assert.EqualValues(t, 2, rows[0].Items)
	assert.NotNil(t, rows[0].FinishedAt)
}

func TestApifyCrawler_RunJobRecordsFailure(t *testing.T) {
	store, env := newStore(t, nil, nil)
	runner := &fakeRunner{err: errors.New("actor timed out")}
	c := NewApifyCrawler(env.Logger, env.Config, runner, store)

	job := model.ApifyJob{JobID: "j2", UserID: "u7", SearchQueries: []string{"pemilu"}}
	_, err := c.RunJob(context.Background(), job)
	require.Error(t, err)
	// a redelivered job opens a second session
	_, err = c.RunJob(context.Background(), job)
	require.Error(t, err)

	var rows []model.CrawlSession
	require.NoError(t, env.DB.Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, model.SessionFailed, row.Status)
		assert.Contains(t, row.Error, "actor timed out")
	}
}
