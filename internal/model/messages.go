package model

import "time"

const PlatformTikTok = "tiktok"

// VideoMessage is the Kafka payload for a crawled video.
type VideoMessage struct {
	Platform     string     `json:"platform"`
	ExternalID   string     `json:"external_id"`
	Author       string     `json:"author"`
	Description  string     `json:"description"`
	URL          string     `json:"url"`
	PlayCount    int64      `json:"play_count"`
	LikeCount    int64      `json:"like_count"`
	ShareCount   int64      `json:"share_count"`
	CommentCount int64      `json:"comment_count"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

func (m VideoMessage) ToVideo() Video {
	return Video{
		Platform:     m.Platform,
		ExternalID:   m.ExternalID,
		Author:       m.Author,
		Description:  m.Description,
		URL:          m.URL,
		PlayCount:    m.PlayCount,
		LikeCount:    m.LikeCount,
		ShareCount:   m.ShareCount,
		CommentCount: m.CommentCount,
		PublishedAt:  m.PublishedAt,
	}
}

// CommentMessage is the Kafka payload for a crawled comment.
type CommentMessage struct {
	Platform        string     `json:"platform"`
	ExternalID      string     `json:"external_id"`
	VideoExternalID string     `json:"video_external_id"`
	Author          string     `json:"author"`
	Text            string     `json:"text"`
	LikeCount       int64      `json:"like_count"`
	IsLive          bool       `json:"is_live"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
}

func (m CommentMessage) ToComment() Comment {
	return Comment{
		Platform:        m.Platform,
		ExternalID:      m.ExternalID,
		VideoExternalID: m.VideoExternalID,
		Author:          m.Author,
		Text:            m.Text,
		LikeCount:       m.LikeCount,
		IsLive:          m.IsLive,
		PostedAt:        m.PostedAt,
	}
}

// ApifyJob is the RabbitMQ payload asking a worker to run the scraper actor.
type ApifyJob struct {
	JobID          string   `json:"job_id"`
	UserID         string   `json:"user_id"`
	Hashtags       []string `json:"hashtags,omitempty"`
	Profiles       []string `json:"profiles,omitempty"`
	SearchQueries  []string `json:"search_queries,omitempty"`
	ResultsPerPage int      `json:"results_per_page"`
}
