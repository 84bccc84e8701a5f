package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
	"github.com/thep200/content-radar/pkg/retry"
)

var ErrEmptyResponse = errors.New("llm returned an empty response")

type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	// System overrides the provider's default system prompt.
	System string `json:"system,omitempty"`
}

// Client is any completion backend.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Model() string
}

// NewFromConfig builds the configured provider wrapped with retries.
func NewFromConfig(config *cfg.Config, logger log.Logger) (Client, error) {
	var (
		client Client
		err    error
	)
	switch strings.ToLower(config.Llm.Provider) {
	case "openai":
		client, err = NewOpenAIClient(config.Llm)
	case "completion", "":
		client, err = NewCompletionClient(config.Llm)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", config.Llm.Provider)
	}
	if err != nil {
		return nil, err
	}

	policy := retry.WithRetries(config.Llm.MaxRetries)
	policy.OnRetry = func(err error, wait time.Duration) {
		logger.Warn(context.Background(), "LLM call failed, retrying in %v: %v", wait, err)
	}
	return WithRetry(client, policy), nil
}

// DefaultParams turns the config block into request parameters.
func DefaultParams(c cfg.Llm) GenerationParams {
	params := GenerationParams{}
	t := c.Temperature
	params.Temperature = &t
	if c.MaxTokens > 0 {
		m := c.MaxTokens
		params.MaxTokens = &m
	}
	return params
}

type retryingClient struct {
	inner  Client
	policy retry.Policy
}

// WithRetry retries failed generations. Empty responses count as failures.
func WithRetry(client Client, policy retry.Policy) Client {
	return &retryingClient{inner: client, policy: policy}
}

func (r *retryingClient) Model() string {
	return r.inner.Model()
}

func (r *retryingClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return retry.Value(ctx, r.policy, func() (string, error) {
		out, err := r.inner.Generate(ctx, prompt, params)
		if err != nil {
			var perm *PermanentError
			if errors.As(err, &perm) {
				return "", retry.Permanent(err)
			}
			return "", err
		}
		return out, nil
	})
}

// PermanentError is a provider answer that retrying won't fix, e.g. a 4xx.
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("llm request rejected with status %d: %s", e.StatusCode, e.Body)
}
