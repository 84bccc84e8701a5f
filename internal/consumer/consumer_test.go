package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/model/modeltest"
	kafkapkg "github.com/thep200/content-radar/pkg/kafka"
)

func TestBatcher_FlushesOnSize(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int
	b := NewBatcher(2, time.Hour, func(_ context.Context, batch []int) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, batch)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()

	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Add(ctx, i))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, batches)
}

func TestBatcher_FlushesOnTimeout(t *testing.T) {
	flushed := make(chan []string, 1)
	b := NewBatcher(100, 20*time.Millisecond, func(_ context.Context, batch []string) {
		flushed <- batch
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	require.NoError(t, b.Add(ctx, "a"))
	select {
	case batch := <-flushed:
		assert.Equal(t, []string{"a"}, batch)
	case <-time.After(time.Second):
		t.Fatal("batch was not flushed on timeout")
	}
}

// chanSource delivers scripted values then blocks until ctx ends.
type chanSource struct {
	values  [][]byte
	handler kafkapkg.Handler
}

func (s *chanSource) RegisterFallback(h kafkapkg.Handler) { s.handler = h }

func (s *chanSource) Start(ctx context.Context) error {
	for _, v := range s.values {
		if err := s.handler(ctx, v); err != nil {
			continue
		}
	}
	<-ctx.Done()
	return nil
}

type recordingClassifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingClassifier) Classify(_ context.Context, kind string, target classifier.Target, _ string) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, kind+":"+target.Type)
	return nil, nil
}

func mustJSON(t *testing.T, v interface{}) []byte {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestServe_VideoConsumer(t *testing.T) {
	env := modeltest.New(t)
	vc, err := NewVideoConsumer(env.Logger, env.Config, env.Mysql, 10, time.Hour)
	require.NoError(t, err)
	src := &chanSource{values: [][]byte{
		mustJSON(t, model.VideoMessage{ExternalID: "v1", PlayCount: 3}),
		[]byte("not json"),
		mustJSON(t, model.VideoMessage{Platform: "tiktok", ExternalID: "v2"}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, src, vc) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	var count int64
	env.DB.Model(&model.Video{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestCommentConsumer_StoresAndClassifies(t *testing.T) {
	env := modeltest.New(t)
	cls := &recordingClassifier{}
	cc, err := NewCommentConsumer(env.Logger, env.Config, env.Mysql, cls, 2, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { cc.Run(ctx); close(done) }()

	require.NoError(t, cc.Handle(ctx, mustJSON(t, model.CommentMessage{ExternalID: "c1", Text: "great"})))
	require.NoError(t, cc.Handle(ctx, mustJSON(t, model.CommentMessage{ExternalID: "c2", Text: "awful"})))
	assert.Error(t, cc.Handle(ctx, mustJSON(t, model.CommentMessage{Text: "no id"})))

	require.Eventually(t, func() bool {
		cls.mu.Lock()
		defer cls.mu.Unlock()
		return len(cls.calls) == 4
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, []string{"sentiment:comment", "risk:comment", "sentiment:comment", "risk:comment"}, cls.calls)

	var count int64
	env.DB.Model(&model.Comment{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestCommentConsumer_SentimentOnlyWhenRiskDisabled(t *testing.T) {
	env := modeltest.New(t)
	env.Config.Classifier.RiskOnComments = false
	cls := &recordingClassifier{}
	cc, err := NewCommentConsumer(env.Logger, env.Config, env.Mysql, cls, 10, time.Hour)
	require.NoError(t, err)

	cc.flush(context.Background(), []model.CommentMessage{{Platform: "tiktok", ExternalID: "c1", Text: "ok"}})
	assert.Equal(t, []string{"sentiment:comment"}, cls.calls)
}
