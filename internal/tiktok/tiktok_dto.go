package tiktok

import (
	"fmt"
	"time"

	"github.com/thep200/content-radar/internal/model"
)

type apiStatus struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s apiStatus) status() apiStatus { return s }

// envelope wraps every response of the scraping API.
type envelope[T any] struct {
	apiStatus
	Data T `json:"data"`
}

type Author struct {
	UniqueID string `json:"unique_id"`
	Nickname string `json:"nickname"`
}

type VideoStats struct {
	PlayCount    int64 `json:"play_count"`
	DiggCount    int64 `json:"digg_count"`
	ShareCount   int64 `json:"share_count"`
	CommentCount int64 `json:"comment_count"`
}

type VideoInfo struct {
	ID         string     `json:"id"`
	Desc       string     `json:"desc"`
	CreateTime int64      `json:"create_time"`
	ShareURL   string     `json:"share_url"`
	Author     Author     `json:"author"`
	Stats      VideoStats `json:"stats"`
}

func (v VideoInfo) ToMessage() model.VideoMessage {
	url := v.ShareURL
	if url == "" && v.Author.UniqueID != "" {
		url = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", v.Author.UniqueID, v.ID)
	}
	return model.VideoMessage{
		Platform:     model.PlatformTikTok,
		ExternalID:   v.ID,
		Author:       v.Author.UniqueID,
		Description:  v.Desc,
		URL:          url,
		PlayCount:    v.Stats.PlayCount,
		LikeCount:    v.Stats.DiggCount,
		ShareCount:   v.Stats.ShareCount,
		CommentCount: v.Stats.CommentCount,
		PublishedAt:  unixTime(v.CreateTime),
	}
}

type Comment struct {
	ID         string `json:"cid"`
	Text       string `json:"text"`
	CreateTime int64  `json:"create_time"`
	DiggCount  int64  `json:"digg_count"`
	User       Author `json:"user"`
}

// ToMessage maps a comment of videoID (or of a live room) to its Kafka payload.
func (c Comment) ToMessage(videoID string, live bool) model.CommentMessage {
	return model.CommentMessage{
		Platform:        model.PlatformTikTok,
		ExternalID:      c.ID,
		VideoExternalID: videoID,
		Author:          c.User.UniqueID,
		Text:            c.Text,
		LikeCount:       c.DiggCount,
		IsLive:          live,
		PostedAt:        unixTime(c.CreateTime),
	}
}

type CommentPage struct {
	Comments []Comment `json:"comments"`
	Cursor   int64     `json:"cursor"`
	HasMore  bool      `json:"has_more"`
	Total    int64     `json:"total"`
}

type LiveCommentPage struct {
	Comments []Comment `json:"comments"`
	// Cursor is opaque and passed back on the next poll.
	Cursor string `json:"cursor"`
	// Live is false once the room has ended.
	Live bool `json:"live"`
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
