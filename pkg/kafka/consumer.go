package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
)

// Handler processes one message value.
type Handler func(ctx context.Context, value []byte) error

// Consumer handles Kafka message consumption
type Consumer struct {
	Config   *cfg.Config
	Logger   log.Logger
	reader   *kafka.Reader
	handlers map[string]Handler
	fallback Handler
}

// NewConsumer creates and returns a new Kafka Consumer
func NewConsumer(config *cfg.Config, logger log.Logger, topic, groupID string) (*Consumer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Kafka.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,        // 10KB
		MaxBytes:       10e6,        // 10MB
		MaxWait:        time.Second, // Maximum amount of time to wait for new data
		StartOffset:    kafka.FirstOffset,
		RetentionTime:  7 * 24 * time.Hour,
		CommitInterval: time.Second,
	})

	return &Consumer{
		Config:   config,
		Logger:   logger,
		reader:   reader,
		handlers: make(map[string]Handler),
	}, nil
}

// RegisterHandler registers a message handler for a specific message key
func (c *Consumer) RegisterHandler(key string, handler Handler) {
	c.handlers[key] = handler
}

// RegisterFallback handles messages whose key has no handler. Crawled items
// are keyed by their id, so per-topic consumers use this.
func (c *Consumer) RegisterFallback(handler Handler) {
	c.fallback = handler
}

// Start begins consuming messages from the Kafka topic
func (c *Consumer) Start(ctx context.Context) error {
	c.Logger.Info(ctx, "Starting Kafka consumer for topic: %s", c.reader.Config().Topic)

	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return c.reader.Close()
			}
			c.Logger.Error(ctx, "Error reading message: %v", err)
			continue
		}

		key := string(message.Key)
		handler, exists := c.handlers[key]
		if !exists {
			handler = c.fallback
		}
		if handler == nil {
			c.Logger.Warn(ctx, "No handler registered for message with key: %s", key)
			continue
		}
		if err := handler(ctx, message.Value); err != nil {
			c.Logger.Error(ctx, "Error handling message with key %s: %v", key, err)
		}
	}
}

// Close closes the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
