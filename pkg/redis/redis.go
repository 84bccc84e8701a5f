package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
)

type Client struct {
	Logger log.Logger
	rdb    *goredis.Client
}

func NewClient(config *cfg.Config, logger log.Logger) *Client {
	return &Client{
		Logger: logger,
		rdb: goredis.NewClient(&goredis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.Db,
		}),
	}
}

// NewClientFrom wraps an existing go-redis client.
func NewClientFrom(rdb *goredis.Client, logger log.Logger) *Client {
	return &Client{Logger: logger, rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe calls fn for every payload received on channel and blocks until
// ctx is done.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(payload string)) error {
	sub := c.rdb.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	c.Logger.Info(ctx, "Subscribed to redis channel %s", channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
