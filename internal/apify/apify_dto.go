package apify

import (
	"strings"
	"time"

	"github.com/thep200/content-radar/internal/model"
)

// Input is the actor input of the TikTok scraper.
type Input struct {
	Hashtags       []string `json:"hashtags,omitempty"`
	Profiles       []string `json:"profiles,omitempty"`
	SearchQueries  []string `json:"searchQueries,omitempty"`
	ResultsPerPage int      `json:"resultsPerPage,omitempty"`
}

func InputFromJob(job model.ApifyJob) Input {
	return Input{
		Hashtags:       job.Hashtags,
		Profiles:       job.Profiles,
		SearchQueries:  job.SearchQueries,
		ResultsPerPage: job.ResultsPerPage,
	}
}

type AuthorMeta struct {
	Name     string `json:"name"`
	NickName string `json:"nickName"`
}

type Hashtag struct {
	Name string `json:"name"`
}

// Item is one dataset row returned by the actor.
type Item struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	WebVideoURL  string     `json:"webVideoUrl"`
	CreateTime   int64      `json:"createTime"`
	AuthorMeta   AuthorMeta `json:"authorMeta"`
	PlayCount    int64      `json:"playCount"`
	DiggCount    int64      `json:"diggCount"`
	ShareCount   int64      `json:"shareCount"`
	CommentCount int64      `json:"commentCount"`
	Hashtags     []Hashtag  `json:"hashtags"`
}

// ToMessage maps the item to a video payload. Hashtags missing from the
// caption are appended to the description.
func (i Item) ToMessage() model.VideoMessage {
	desc := i.Text
	var missing []string
	for _, h := range i.Hashtags {
		tag := "#" + h.Name
		if h.Name != "" && !strings.Contains(desc, tag) {
			missing = append(missing, tag)
		}
	}
	if len(missing) > 0 {
		desc = strings.TrimSpace(desc + " " + strings.Join(missing, " "))
	}

	msg := model.VideoMessage{
		Platform:     model.PlatformTikTok,
		ExternalID:   i.ID,
		Author:       i.AuthorMeta.Name,
		Description:  desc,
		URL:          i.WebVideoURL,
		PlayCount:    i.PlayCount,
		LikeCount:    i.DiggCount,
		ShareCount:   i.ShareCount,
		CommentCount: i.CommentCount,
	}
	if i.CreateTime > 0 {
		t := time.Unix(i.CreateTime, 0).UTC()
		msg.PublishedAt = &t
	}
	return msg
}
