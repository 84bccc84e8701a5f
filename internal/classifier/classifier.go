// Package classifier turns free text into sentiment, category, risk and
// legal-justification labels by prompting an LLM and parsing its answer.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/lawstore"
	"github.com/thep200/content-radar/internal/llm"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/log"
)

var (
	ErrEmptyText = errors.New("text is empty")
	// ErrUnparseable is returned when the model answer has no usable JSON.
	ErrUnparseable = errors.New("unparseable model output")
)

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"

	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"

	CategoryOther = "other"

	KindSummary = "summary"
)

// RiskLevels in ascending severity.
var RiskLevels = []string{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// RiskLevelsAtLeast returns min and every more severe level. Unknown min
// means all levels.
func RiskLevelsAtLeast(min string) []string {
	for i, l := range RiskLevels {
		if l == strings.ToLower(min) {
			return RiskLevels[i:]
		}
	}
	return RiskLevels
}

type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Category struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Risk struct {
	Level   string   `json:"level"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

type Justification struct {
	Violation     bool                  `json:"violation"`
	Articles      []string              `json:"articles"`
	Justification string                `json:"justification"`
	Candidates    []lawstore.LawArticle `json:"candidates,omitempty"`
}

type Classifier struct {
	Config *cfg.Config
	Logger log.Logger

	llm        llm.Client
	laws       lawstore.Searcher
	params     llm.GenerationParams
	categories []string
}

// New builds a classifier. laws may be nil, in which case justifications
// are produced without retrieved articles.
func New(config *cfg.Config, logger log.Logger, client llm.Client, laws lawstore.Searcher) *Classifier {
	return &Classifier{
		Config:     config,
		Logger:     logger,
		llm:        client,
		laws:       laws,
		params:     llm.DefaultParams(config.Llm),
		categories: config.Categories(),
	}
}

func (c *Classifier) Model() string {
	return c.llm.Model()
}

func (c *Classifier) prepare(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if max := c.Config.Classifier.MaxInputChars; max > 0 {
		text = model.TruncateRunes(text, max)
	}
	return text, nil
}

func (c *Classifier) ask(ctx context.Context, tmplName string, data promptData) (string, error) {
	tmpl, ok := prompts[tmplName]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", tmplName)
	}
	prompt, err := render(tmpl, data)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmplName, err)
	}
	out, err := c.llm.Generate(ctx, prompt, c.params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", tmplName, err)
	}
	return out, nil
}

func (c *Classifier) Sentiment(ctx context.Context, text string) (*Sentiment, error) {
	text, err := c.prepare(text)
	if err != nil {
		return nil, err
	}
	out, err := c.ask(ctx, model.KindSentiment, promptData{Text: text})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Sentiment string    `json:"sentiment"`
		Label     string    `json:"label"`
		Score     flexFloat `json:"score"`
	}
	if !extractJSON(out, &parsed) {
		label, score := normalizeSentiment(out)
		return &Sentiment{Label: label, Score: score}, nil
	}

	raw := parsed.Sentiment
	if raw == "" {
		raw = parsed.Label
	}
	label, score := normalizeSentiment(raw)
	if parsed.Score.Set {
		score = clamp(parsed.Score.Value, -1, 1)
	}
	return &Sentiment{Label: label, Score: score}, nil
}

func (c *Classifier) Category(ctx context.Context, text string) (*Category, error) {
	text, err := c.prepare(text)
	if err != nil {
		return nil, err
	}
	out, err := c.ask(ctx, model.KindCategory, promptData{Text: text, Categories: c.categories})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Category   string    `json:"category"`
		Confidence flexFloat `json:"confidence"`
	}
	raw, confidence := out, 0.5
	if extractJSON(out, &parsed) {
		raw = parsed.Category
		if parsed.Confidence.Set {
			confidence = clamp(parsed.Confidence.Value, 0, 1)
		}
	}
	return &Category{Label: c.matchCategory(raw), Confidence: confidence}, nil
}

func (c *Classifier) matchCategory(raw string) string {
	word := normalizeWord(raw)
	for _, cat := range c.categories {
		if strings.EqualFold(cat, word) {
			return cat
		}
	}
	return CategoryOther
}

func (c *Classifier) Risk(ctx context.Context, text string) (*Risk, error) {
	text, err := c.prepare(text)
	if err != nil {
		return nil, err
	}
	out, err := c.ask(ctx, model.KindRisk, promptData{Text: text})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Level   string    `json:"level"`
		Score   flexFloat `json:"score"`
		Reasons []string  `json:"reasons"`
	}
	if !extractJSON(out, &parsed) {
		return nil, fmt.Errorf("risk: %w: %q", ErrUnparseable, model.TruncateString(out, 200))
	}

	score := clamp(parsed.Score.Value, 0, 100)
	level, ok := normalizeRiskLevel(parsed.Level)
	if !ok {
		level = riskLevelFromScore(score)
	}
	reasons := parsed.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &Risk{Level: level, Score: score, Reasons: reasons}, nil
}

func (c *Classifier) Justify(ctx context.Context, text string) (*Justification, error) {
	text, err := c.prepare(text)
	if err != nil {
		return nil, err
	}

	var candidates []lawstore.LawArticle
	if c.laws != nil {
		candidates, err = c.laws.Search(ctx, text, c.Config.Weaviate.Limit)
		if err != nil {
			c.Logger.Warn(ctx, "Law retrieval failed, justifying without articles: %v", err)
			candidates = nil
		}
	}

	out, err := c.ask(ctx, model.KindJustification, promptData{Text: text, Articles: candidates})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Violation     bool     `json:"violation"`
		Articles      []string `json:"articles"`
		Justification string   `json:"justification"`
	}
	if !extractJSON(out, &parsed) {
		return nil, fmt.Errorf("justification: %w: %q", ErrUnparseable, model.TruncateString(out, 200))
	}
	articles := parsed.Articles
	if articles == nil {
		articles = []string{}
	}
	return &Justification{
		Violation:     parsed.Violation,
		Articles:      articles,
		Justification: strings.TrimSpace(parsed.Justification),
		Candidates:    candidates,
	}, nil
}

// Summarize returns at most four non-empty lines.
func (c *Classifier) Summarize(ctx context.Context, text string) (string, error) {
	text, err := c.prepare(text)
	if err != nil {
		return "", err
	}
	out, err := c.ask(ctx, KindSummary, promptData{Text: text})
	if err != nil {
		return "", err
	}

	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == 4 {
			break
		}
	}
	if len(lines) == 0 {
		return "", llm.ErrEmptyResponse
	}
	return strings.Join(lines, "\n"), nil
}
