package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/model/modeltest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	env    *modeltest.Env
	router *gin.Engine
	videos []model.Video
	cmts   []model.Comment
}

func newFixture(t *testing.T) *fixture {
	env := modeltest.New(t)
	h, err := NewHandler(env.Logger, env.Config, env.Mysql)
	require.NoError(t, err)
	r := gin.New()
	h.RegisterRoutes(r)

	videos := []model.Video{
		{Platform: model.PlatformTikTok, ExternalID: "v1", Author: "alice", Description: "election debate", PlayCount: 10},
		{Platform: model.PlatformTikTok, ExternalID: "v2", Author: "bob", Description: "cat video", PlayCount: 500, Summary: "A cat plays."},
		{Platform: "facebook", ExternalID: "p1", Author: "carol", Description: "football match", PlayCount: 50},
	}
	require.NoError(t, env.DB.Create(&videos).Error)

	cmts := []model.Comment{
		{Platform: model.PlatformTikTok, ExternalID: "c1", VideoExternalID: "v1", Author: "x", Text: "great point", LikeCount: 3},
		{Platform: model.PlatformTikTok, ExternalID: "c2", VideoExternalID: "v1", Author: "y", Text: "I will find you", LikeCount: 1},
		{Platform: model.PlatformTikTok, ExternalID: "c3", VideoExternalID: "v2", Author: "z", Text: "cute"},
	}
	require.NoError(t, env.DB.Create(&cmts).Error)

	id := func(n uint) string { return strconv.FormatUint(uint64(n), 10) }
	rows := []model.Classification{
		{TargetType: model.TargetComment, TargetID: id(cmts[0].ID), Kind: model.KindSentiment, Label: "positive", Score: 0.9},
		{TargetType: model.TargetComment, TargetID: id(cmts[1].ID), Kind: model.KindSentiment, Label: "negative", Score: -0.8},
		{TargetType: model.TargetComment, TargetID: id(cmts[2].ID), Kind: model.KindSentiment, Label: "positive", Score: 0.7},
		{TargetType: model.TargetComment, TargetID: id(cmts[1].ID), Kind: model.KindRisk, Label: "critical", Score: 95},
		{TargetType: model.TargetComment, TargetID: id(cmts[0].ID), Kind: model.KindRisk, Label: "low", Score: 5},
		{TargetType: model.TargetVideo, TargetID: id(videos[0].ID), Kind: model.KindCategory, Label: "politics", Score: 0.8},
		{TargetType: model.TargetVideo, TargetID: id(videos[1].ID), Kind: model.KindCategory, Label: "entertainment", Score: 0.9},
		{TargetType: model.TargetVideo, TargetID: id(videos[0].ID), Kind: model.KindRisk, Label: "high", Score: 70},
	}
	require.NoError(t, env.DB.Create(&rows).Error)

	return &fixture{env: env, router: r, videos: videos, cmts: cmts}
}

func (f *fixture) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestListVideos(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Videos     []Video    `json:"videos"`
		Pagination Pagination `json:"pagination"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/videos", &body))
	require.Len(t, body.Videos, 3)
	assert.Equal(t, "v2", body.Videos[0].ExternalID, "ordered by play count")
	assert.Equal(t, int64(3), body.Pagination.TotalCount)
	assert.Equal(t, int64(1), body.Pagination.TotalPages)
	assert.Equal(t, defaultPageSize, body.Pagination.PageSize)

	require.Equal(t, http.StatusOK, f.get(t, "/api/videos?platform=tiktok&search=election", &body))
	require.Len(t, body.Videos, 1)
	assert.Equal(t, "v1", body.Videos[0].ExternalID)
	assert.Equal(t, int64(1), body.Pagination.TotalCount)
}

func TestListVideos_Paging(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Videos     []Video    `json:"videos"`
		Pagination Pagination `json:"pagination"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/videos?page=2&pageSize=2", &body))
	require.Len(t, body.Videos, 1)
	assert.Equal(t, "v1", body.Videos[0].ExternalID)
	assert.Equal(t, int64(2), body.Pagination.TotalPages)

	require.Equal(t, http.StatusOK, f.get(t, "/api/videos?pageSize=1000", &body))
	assert.Equal(t, maxPageSize, body.Pagination.PageSize)
}

func TestGetVideo(t *testing.T) {
	f := newFixture(t)

	var detail VideoDetail
	path := "/api/videos/" + strconv.FormatUint(uint64(f.videos[0].ID), 10)
	require.Equal(t, http.StatusOK, f.get(t, path, &detail))
	assert.Equal(t, "election debate", detail.Description)
	require.Len(t, detail.Comments, 2)
	assert.Equal(t, "c1", detail.Comments[0].ExternalID, "ordered by likes")
	assert.Equal(t, "positive", detail.Comments[0].Sentiment)
	assert.Equal(t, "critical", detail.Comments[1].RiskLevel)

	kinds := make(map[string]string)
	for _, l := range detail.Classifications {
		kinds[l.Kind] = l.Label
	}
	assert.Equal(t, map[string]string{"category": "politics", "risk": "high"}, kinds)
}

func TestGetVideo_Errors(t *testing.T) {
	f := newFixture(t)

	var errBody struct {
		Detail string `json:"detail"`
	}
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/videos/9999", &errBody))
	assert.Contains(t, errBody.Detail, "not found")
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/videos/abc", &errBody))
}

func TestListComments(t *testing.T) {
	f := newFixture(t)

	var errBody struct {
		Detail string `json:"detail"`
	}
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/comments", &errBody))
	assert.Equal(t, "videoId is required", errBody.Detail)

	var body struct {
		Comments   []Comment  `json:"comments"`
		Pagination Pagination `json:"pagination"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/comments?videoId=v1&pageSize=1", &body))
	require.Len(t, body.Comments, 1)
	assert.Equal(t, "c1", body.Comments[0].ExternalID)
	assert.Equal(t, "low", body.Comments[0].RiskLevel)
	assert.Equal(t, int64(2), body.Pagination.TotalCount)
	assert.Equal(t, int64(2), body.Pagination.TotalPages)
}

func TestSentimentStats(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Kind   string       `json:"kind"`
		Total  int64        `json:"total"`
		Labels []LabelCount `json:"labels"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/stats/sentiment?targetType=comment", &body))
	assert.Equal(t, "sentiment", body.Kind)
	assert.Equal(t, int64(3), body.Total)
	require.Len(t, body.Labels, 2)
	assert.Equal(t, "positive", body.Labels[0].Label)
	assert.Equal(t, int64(2), body.Labels[0].Count)
	assert.InDelta(t, 0.8, body.Labels[0].AvgScore, 1e-9)

	require.Equal(t, http.StatusOK, f.get(t, "/api/stats/sentiment?targetType=video", &body))
	assert.Equal(t, int64(0), body.Total)
	assert.Empty(t, body.Labels)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/stats/sentiment?targetType=post", nil))
}

func TestCategoryStats(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Labels []LabelCount `json:"labels"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/stats/categories", &body))
	labels := make([]string, 0, len(body.Labels))
	for _, l := range body.Labels {
		labels = append(labels, l.Label)
	}
	assert.ElementsMatch(t, []string{"politics", "entertainment"}, labels)
}

func TestRiskStats(t *testing.T) {
	f := newFixture(t)

	var body struct {
		Levels []string   `json:"levels"`
		Items  []RiskItem `json:"items"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/stats/risk", &body))
	assert.Equal(t, []string{"high", "critical"}, body.Levels)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "critical", body.Items[0].Level)
	assert.Equal(t, "I will find you", body.Items[0].Text)
	assert.Equal(t, "election debate", body.Items[1].Text)

	require.Equal(t, http.StatusOK, f.get(t, "/api/stats/risk?minLevel=low&limit=1", &body))
	assert.Len(t, body.Levels, 4)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "critical", body.Items[0].Level)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	sessions, _ := model.NewCrawlSession(f.env.Config, f.env.Logger, f.env.Mysql)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sessions.Open(ctx, "s1", "u1", model.SessionKindLive, "room-1", base))
	require.NoError(t, sessions.Open(ctx, "s2", "u1", model.SessionKindLive, "room-2", base.Add(time.Hour)))
	require.NoError(t, sessions.Open(ctx, "s3", "u2", model.SessionKindApify, "#news", base.Add(2*time.Hour)))
	require.NoError(t, sessions.Finish(ctx, "s1", model.SessionStopped, 42, nil))

	var body struct {
		Sessions   []SessionRecord `json:"sessions"`
		Pagination Pagination      `json:"pagination"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/sessions?userId=u1", &body))
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, "s2", body.Sessions[0].SessionID, "newest first")
	assert.Equal(t, model.SessionRunning, body.Sessions[0].Status)
	assert.Empty(t, body.Sessions[0].FinishedAt)
	assert.Equal(t, model.SessionStopped, body.Sessions[1].Status)
	assert.Equal(t, int64(42), body.Sessions[1].Items)
	assert.NotEmpty(t, body.Sessions[1].FinishedAt)

	require.Equal(t, http.StatusOK, f.get(t, "/api/sessions", &body))
	assert.Equal(t, int64(3), body.Pagination.TotalCount)
	assert.Equal(t, "s3", body.Sessions[0].SessionID)
}
