package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thep200/content-radar/cfg"
)

// CompletionClient talks to an Ollama style /api/generate endpoint.
type CompletionClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

type completionRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type completionResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewCompletionClient(c cfg.Llm) (*CompletionClient, error) {
	if c.BaseUrl == "" {
		return nil, fmt.Errorf("llm base url is required for the completion provider")
	}
	timeout := time.Duration(c.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &CompletionClient{
		baseURL: strings.TrimRight(c.BaseUrl, "/"),
		apiKey:  c.ApiKey,
		model:   c.Model,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *CompletionClient) Model() string {
	return c.model
}

func (c *CompletionClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	reqBody := completionRequest{
		Model:  c.model,
		Prompt: prompt,
		System: params.System,
		Stream: false,
	}
	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return "", &PermanentError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion endpoint returned %s: %s", resp.Status, string(raw))
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("unexpected completion response: %s", string(raw))
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("completion error: %s", parsed.Error)
	}
	out := strings.TrimSpace(parsed.Response)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
