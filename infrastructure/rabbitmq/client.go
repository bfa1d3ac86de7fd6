package rabbitmq

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/AzielCF/az-engage/core/jobs"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Options mirrors config.QueueConfig plus the connection knobs only this package needs.
type Options struct {
	URL                  string
	Exchange             string
	Prefetch             int
	MaxRetries           int
	RetryDelays          []time.Duration
	PublishPoolSize      int
	ConnTimeout          time.Duration
	ReconnectBackoffBase time.Duration
	ReconnectBackoffCap  time.Duration
	Dialer               func(ctx context.Context, url string) (*amqp.Connection, error)
}

func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		URL:         cfg.RabbitURL,
		Exchange:    cfg.Exchange,
		Prefetch:    cfg.Prefetch,
		MaxRetries:  cfg.MaxRetries,
		RetryDelays: cfg.RetryDelays,
	}
}

type consumerSpec struct {
	stream      string
	concurrency int
	handler     jobs.Handler
}

// Client is a jobs.Bus over one AMQP connection: a topic exchange, one durable queue per
// stream, TTL retry queues per tier and a {stream}.final dead letter queue.
type Client struct {
	mu   sync.RWMutex
	conn *amqp.Connection
	pool *ChannelPool
	opts Options

	consumerWG     sync.WaitGroup
	consumerClosed chan string
	specs          map[string]consumerSpec
}

var _ jobs.Bus = (*Client)(nil)

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}
	if opts.Exchange == "" {
		opts.Exchange = "engage"
	}
	if opts.ConnTimeout <= 0 {
		opts.ConnTimeout = 30 * time.Second
	}

	host := ""
	if u, _ := url.Parse(opts.URL); u != nil {
		host = u.Host
	}
	logrus.Infof("[RABBITMQ] Connecting to %s", host)

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnTimeout)
	defer cancel()

	c := &Client{opts: opts, specs: make(map[string]consumerSpec)}
	if err := c.connect(dialCtx); err != nil {
		return nil, err
	}
	logrus.Info("[RABBITMQ] Client ready")
	return c, nil
}

func (c *Client) dial(ctx context.Context) (*amqp.Connection, error) {
	if c.opts.Dialer != nil {
		return c.opts.Dialer(ctx, c.opts.URL)
	}
	return amqp.DialConfig(c.opts.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(c.opts.ConnTimeout),
	})
}

// connect dials, declares the exchange and every stream topology, and swaps the publisher pool.
func (c *Client) connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, stream := range jobs.Streams {
		if err := declareStream(ch, c.opts.Exchange, stream, c.opts.RetryDelays); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare %s: %w", stream, err)
		}
	}
	_ = ch.Close()

	pool, err := NewChannelPool(conn, c.opts.PublishPoolSize)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("create channel pool: %w", err)
	}

	c.mu.Lock()
	old := c.pool
	c.conn = conn
	c.pool = pool
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (c *Client) channelPool() *ChannelPool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

func (c *Client) connection() *amqp.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) Publish(ctx context.Context, stream, key string, payload any) error {
	body, err := jobs.Encode(payload)
	if err != nil {
		return err
	}
	pool := c.channelPool()
	ch, err := pool.Borrow(ctx, 0)
	if err != nil {
		return fmt.Errorf("borrow channel: %w", err)
	}
	defer pool.Return(ch)

	return ch.PublishWithContext(ctx, c.opts.Exchange, stream, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now().UTC(),
		Type:         stream,
		Headers:      amqp.Table{headerKey: key},
	})
}

// Depth returns the ready messages of the stream's main queue.
func (c *Client) Depth(ctx context.Context, stream string) (int, error) {
	pool := c.channelPool()
	ch, err := pool.Borrow(ctx, 0)
	if err != nil {
		return 0, err
	}
	defer pool.Return(ch)
	q, err := ch.QueueDeclarePassive(stream, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return q.Messages, nil
}

func (c *Client) Close() {
	done := make(chan struct{})
	go func() {
		c.consumerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
