package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/log"
)

var (
	ErrDisconnected = errors.New("rabbitmq disconnected, retrying")
	ErrClosed       = errors.New("rabbitmq client closed")
)

const (
	reconnectDelay = 5 * time.Second
	resendDelay    = 5 * time.Second
)

// Client keeps one connection/channel pair to a durable queue alive and
// reconnects in the background when the broker drops it.
type Client struct {
	Queue  string
	Logger log.Logger

	mu            sync.RWMutex
	connection    *amqp.Connection
	channel       *amqp.Channel
	notifyClose   chan *amqp.Error
	notifyConfirm chan amqp.Confirmation
	isConnected   bool
	done          chan struct{}
	closeOnce     sync.Once
}

func New(config *cfg.Config, logger log.Logger) *Client {
	client := &Client{
		Queue:  config.RabbitMQ.Queue,
		Logger: logger,
		done:   make(chan struct{}),
	}
	go client.reconnectHandler(config.RabbitMQ.Url)
	return client
}

func (c *Client) reconnectHandler(addr string) {
	ctx := context.Background()
	for {
		c.setConnected(false)
		start := time.Now()
		retryCount := 0
		for !c.connect(ctx, addr) {
			select {
			case <-c.done:
				return
			case <-time.After(reconnectDelay + time.Duration(retryCount)*time.Second):
				retryCount++
			}
		}
		c.Logger.Info(ctx, "RabbitMQ connected in %v", time.Since(start))

		c.mu.RLock()
		notifyClose := c.notifyClose
		c.mu.RUnlock()
		select {
		case <-c.done:
			return
		case amqpErr := <-notifyClose:
			c.Logger.Warn(ctx, "RabbitMQ connection closed: %v", amqpErr)
		}
	}
}

func (c *Client) connect(ctx context.Context, addr string) bool {
	conn, err := amqp.Dial(addr)
	if err != nil {
		c.Logger.Error(ctx, "RabbitMQ dial failed: %v", err)
		return false
	}
	ch, err := conn.Channel()
	if err != nil {
		c.Logger.Error(ctx, "RabbitMQ channel failed: %v", err)
		conn.Close()
		return false
	}
	if err := ch.Confirm(false); err != nil {
		c.Logger.Error(ctx, "RabbitMQ confirm mode failed: %v", err)
		conn.Close()
		return false
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		c.Logger.Error(ctx, "RabbitMQ queue declare failed: %v", err)
		conn.Close()
		return false
	}

	c.mu.Lock()
	c.connection = conn
	c.channel = ch
	c.notifyClose = make(chan *amqp.Error, 1)
	c.notifyConfirm = make(chan amqp.Confirmation, 1)
	c.channel.NotifyClose(c.notifyClose)
	c.channel.NotifyPublish(c.notifyConfirm)
	c.isConnected = true
	c.mu.Unlock()
	return true
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Push publishes data and waits for the broker confirm, resending on timeout.
func (c *Client) Push(ctx context.Context, data []byte) error {
	if !c.IsConnected() {
		return ErrDisconnected
	}
	for {
		if err := c.unsafePush(data); err != nil {
			if errors.Is(err, ErrDisconnected) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
					continue
				}
			}
			return err
		}

		c.mu.RLock()
		confirms := c.notifyConfirm
		c.mu.RUnlock()
		select {
		case confirm := <-confirms:
			if confirm.Ack {
				return nil
			}
		case <-time.After(resendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.Logger.Warn(ctx, "RabbitMQ push not confirmed, resending")
	}
}

func (c *Client) unsafePush(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.isConnected {
		return ErrDisconnected
	}
	return c.channel.Publish("", c.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
}

// Consume hands each delivery to handler one at a time. Deliveries are acked
// when handler returns nil and requeued once otherwise.
func (c *Client) Consume(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
	for !c.IsConnected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		case <-time.After(time.Second):
		}
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%w: qos: %v", ErrDisconnected, err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume: %v", ErrDisconnected, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrDisconnected
			}
			if err := handler(ctx, msg.Body); err != nil {
				c.Logger.Error(ctx, "RabbitMQ handler failed: %v", err)
				msg.Nack(false, !msg.Redelivered)
				continue
			}
			msg.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.channel != nil {
			c.channel.Close()
		}
		if c.connection != nil {
			err = c.connection.Close()
		}
		c.isConnected = false
	})
	return err
}
