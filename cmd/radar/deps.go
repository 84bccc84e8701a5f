package main

import (
	"context"
	"fmt"

	"github.com/thep200/content-radar/internal/classifier"
	"github.com/thep200/content-radar/internal/lawstore"
	"github.com/thep200/content-radar/internal/llm"
	"github.com/thep200/content-radar/internal/metrics"
	"github.com/thep200/content-radar/pkg/db"
	kafkapkg "github.com/thep200/content-radar/pkg/kafka"
)

// newClassifierService builds the LLM client, the law retriever and the
// persisting service. Justification runs without candidates when Weaviate is
// not configured.
func newClassifierService(ctx context.Context, mysql *db.Mysql, m *metrics.Metrics) (*classifier.Service, error) {
	client, err := llm.NewFromConfig(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	var laws lawstore.Searcher
	if retriever, err := lawstore.NewRetriever(config); err != nil {
		logger.Warn(ctx, "Law retrieval disabled: %v", err)
	} else {
		laws = retriever
	}

	c := classifier.New(config, logger, client, laws)
	return classifier.NewService(c, mysql, m)
}

// newPublisher returns nil when Kafka is not configured so callers write to
// MySQL directly.
func newPublisher(ctx context.Context, topic string) (kafkapkg.Publisher, func()) {
	if topic == "" {
		return nil, func() {}
	}
	producer, err := kafkapkg.NewProducer(config, logger, topic)
	if err != nil {
		logger.Warn(ctx, "Kafka publishing to %s disabled: %v", topic, err)
		return nil, func() {}
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			logger.Error(context.Background(), "Failed to close producer for %s: %v", topic, err)
		}
	}
}

func openMysql(ctx context.Context) (*db.Mysql, error) {
	mysql, err := db.NewMysql(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql: %w", err)
	}
	if err := mysql.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}
	logger.Info(ctx, "Connected to mysql %s:%s/%s", config.Mysql.Host, config.Mysql.Port, config.Mysql.Database)
	return mysql, nil
}
