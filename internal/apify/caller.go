// Package apify runs the TikTok scraper actor on Apify and returns its dataset.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
)

var ErrNoToken = errors.New("apify token is not configured")

// Runner is what the crawler depends on.
type Runner interface {
	RunActor(ctx context.Context, input Input) ([]Item, error)
}

type Caller struct {
	Logger log.Logger
	Config *cfg.Config

	client *http.Client
}

func NewCaller(logger log.Logger, config *cfg.Config) *Caller {
	// Synchronous runs can take minutes.
	return &Caller{Logger: logger, Config: config, client: &http.Client{Timeout: 5 * time.Minute}}
}

func (c *Caller) RunActor(ctx context.Context, input Input) ([]Item, error) {
	if c.Config.Apify.Token == "" {
		return nil, ErrNoToken
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	fullUrl := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items",
		strings.TrimRight(c.Config.Apify.ApiUrl, "/"),
		url.PathEscape(c.Config.Apify.ActorId))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullUrl, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	// Kept out of the URL so transport errors never carry it.
	req.Header.Set("Authorization", "Bearer "+c.Config.Apify.Token)

	c.Logger.Info(ctx, "Running Apify actor %s", c.Config.Apify.ActorId)
	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apify run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("apify run: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("apify run: decode dataset: %w", err)
	}

	c.Logger.Info(ctx, "Apify actor %s returned %d items in %v", c.Config.Apify.ActorId, len(items), time.Since(started).Round(time.Millisecond))
	return items, nil
}
