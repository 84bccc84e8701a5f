package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/content-radar/internal/metrics"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
)

var (
	ErrUnknownKind = errors.New("unknown classification kind")
	// ErrPersist wraps failures to store a finished classification.
	ErrPersist = errors.New("failed to persist classification")
)

// Kinds accepted by Service.Classify.
var Kinds = []string{
	model.KindSentiment, model.KindCategory, model.KindRisk, model.KindJustification, KindSummary,
}

type Target struct {
	Type string `json:"target_type"`
	ID   string `json:"target_id"`
}

func (t Target) persistable() bool {
	return t.Type != "" && t.ID != ""
}

type Summary struct {
	Summary string `json:"summary"`
}

type Service struct {
	Classifier *Classifier
	Logger     log.Logger

	store   *model.Classification
	metrics *metrics.Metrics
}

// NewService wires persistence and metrics around c. mysql and m may be nil.
func NewService(c *Classifier, mysql *db.Mysql, m *metrics.Metrics) (*Service, error) {
	s := &Service{Classifier: c, Logger: c.Logger, metrics: m}
	if mysql != nil {
		store, err := model.NewClassification(c.Config, c.Logger, mysql)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s, nil
}

// Classify runs kind on text. When target is set and a database is
// configured the result is upserted as a Classification row; summaries are
// never stored here.
func (s *Service) Classify(ctx context.Context, kind string, target Target, text string) (result interface{}, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveClassification(kind, started, err) }()

	var label string
	var score float64
	switch kind {
	case model.KindSentiment:
		r, err := s.Classifier.Sentiment(ctx, text)
		if err != nil {
			return nil, err
		}
		result, label, score = r, r.Label, r.Score
	case model.KindCategory:
		r, err := s.Classifier.Category(ctx, text)
		if err != nil {
			return nil, err
		}
		result, label, score = r, r.Label, r.Confidence
	case model.KindRisk:
		r, err := s.Classifier.Risk(ctx, text)
		if err != nil {
			return nil, err
		}
		result, label, score = r, r.Level, r.Score
	case model.KindJustification:
		r, err := s.Classifier.Justify(ctx, text)
		if err != nil {
			return nil, err
		}
		label = "compliant"
		if r.Violation {
			label, score = "violation", 1
		}
		result = r
	case KindSummary:
		summary, err := s.Classifier.Summarize(ctx, text)
		if err != nil {
			return nil, err
		}
		return &Summary{Summary: summary}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if s.store == nil || !target.persistable() {
		return result, nil
	}

	row := &model.Classification{
		TargetType: target.Type,
		TargetID:   target.ID,
		Kind:       kind,
		Label:      label,
		Score:      score,
		ModelName:  s.Classifier.Model(),
	}
	if err := row.SetDetail(result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := s.store.Save(ctx, row); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPersist, kind, err)
	}
	return result, nil
}
