package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/AzielCF/az-engage/core/jobs"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

func (c *Client) Handle(stream string, concurrency int, h jobs.Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	c.mu.Lock()
	c.specs[stream] = consumerSpec{stream: stream, concurrency: concurrency, handler: h}
	c.mu.Unlock()
}

// Run starts every registered consumer and supervises them, reconnecting with jittered
// exponential backoff when the connection drops. It returns when ctx ends.
func (c *Client) Run(ctx context.Context) error {
	c.mu.RLock()
	specs := make([]consumerSpec, 0, len(c.specs))
	for _, s := range c.specs {
		specs = append(specs, s)
	}
	c.mu.RUnlock()

	c.consumerClosed = make(chan string, len(specs)*2+1)
	for _, s := range specs {
		if err := c.startConsumer(ctx, s); err != nil {
			return fmt.Errorf("start %s: %w", s.stream, err)
		}
	}

	errCh := c.connection().NotifyClose(make(chan *amqp.Error, 1))
	base := c.opts.ReconnectBackoffBase
	if base <= 0 {
		base = time.Second
	}
	maxWait := c.opts.ReconnectBackoffCap
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case name := <-c.consumerClosed:
			c.mu.RLock()
			s, ok := c.specs[name]
			c.mu.RUnlock()
			if ok {
				if err := c.startConsumer(ctx, s); err != nil {
					logrus.WithError(err).Errorf("[RABBITMQ] Restart consumer %s failed", name)
				}
			}

		case err, ok := <-errCh:
			if !ok {
				err = &amqp.Error{Reason: "connection closed"}
			}
			logrus.WithError(err).Error("[RABBITMQ] Connection closed, reconnecting")

			backoff := base
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if rerr := c.connect(ctx); rerr != nil {
					wait := jitteredDelay(backoff, maxWait, 25)
					logrus.WithError(rerr).Errorf("[RABBITMQ] Reconnect failed, retry in %s", wait)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
					if backoff*2 < maxWait {
						backoff *= 2
					}
					continue
				}
				break
			}
			for _, s := range specs {
				if err := c.startConsumer(ctx, s); err != nil {
					logrus.WithError(err).Errorf("[RABBITMQ] Restart consumer %s after reconnect failed", s.stream)
				}
			}
			errCh = c.connection().NotifyClose(make(chan *amqp.Error, 1))
			logrus.Info("[RABBITMQ] Reconnected")
		}
	}
}

func (c *Client) startConsumer(ctx context.Context, spec consumerSpec) error {
	ch, err := c.connection().Channel()
	if err != nil {
		return err
	}

	prefetch := c.opts.Prefetch
	if prefetch < spec.concurrency {
		prefetch = spec.concurrency
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		safeClose(ch)
		return err
	}

	msgs, err := ch.Consume(spec.stream, "", false, false, false, false, nil)
	if err != nil {
		safeClose(ch)
		return err
	}
	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.consumerWG.Add(1)
	go func() {
		defer c.consumerWG.Done()

		var workers sync.WaitGroup
		for i := 0; i < spec.concurrency; i++ {
			workers.Add(1)
			go func() {
				defer workers.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case d, ok := <-msgs:
						if !ok {
							return
						}
						c.handleDelivery(ctx, spec, d)
					}
				}
			}()
		}

		select {
		case <-ctx.Done():
			workers.Wait()
			safeClose(ch)
		case <-closeCh:
			workers.Wait()
			select {
			case c.consumerClosed <- spec.stream:
			default:
			}
		}
	}()

	logrus.Infof("[RABBITMQ] Consumer %s started (concurrency %d, prefetch %d)", spec.stream, spec.concurrency, prefetch)
	return nil
}

func (c *Client) handleDelivery(ctx context.Context, spec consumerSpec, d amqp.Delivery) {
	delivery := jobs.Delivery{
		Stream:     spec.stream,
		Key:        JobKey(d),
		Body:       d.Body,
		Attempt:    RetryCount(d),
		MaxRetries: c.opts.MaxRetries,
	}

	err := spec.handler(ctx, delivery)
	switch {
	case err == nil:
		_ = d.Ack(false)

	case errors.Is(err, jobs.ErrPoison):
		logrus.WithError(err).Warnf("[RABBITMQ] Poison message on %s moved to final", spec.stream)
		c.forward(ctx, d, finalQueue(spec.stream), delivery.Attempt, err)

	case delivery.LastAttempt() || len(c.opts.RetryDelays) == 0:
		logrus.WithError(err).Warnf("[RABBITMQ] %s exhausted %d retries, moved to final", spec.stream, delivery.Attempt)
		c.forward(ctx, d, finalQueue(spec.stream), delivery.Attempt, err)

	default:
		tier := delivery.Attempt
		if tier >= len(c.opts.RetryDelays) {
			tier = len(c.opts.RetryDelays) - 1
		}
		logrus.WithError(err).Debugf("[RABBITMQ] %s retry %d in %s", spec.stream, delivery.Attempt+1, c.opts.RetryDelays[tier])
		c.forward(ctx, d, retryQueue(spec.stream, tier), delivery.Attempt+1, err)
	}
}

// forward republishes d straight to queue and acks it; the original is requeued when that fails.
func (c *Client) forward(ctx context.Context, d amqp.Delivery, queue string, retries int, cause error) {
	pool := c.channelPool()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	ch, err := pool.Borrow(pubCtx, 0)
	if err == nil {
		err = ch.PublishWithContext(pubCtx, "", queue, false, false, republishing(d, retries, cause))
		pool.Return(ch)
	}
	if err != nil {
		logrus.WithError(err).Errorf("[RABBITMQ] Failed to forward to %s, requeueing", queue)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func jitteredDelay(base, limit time.Duration, jitterPct int) time.Duration {
	delta := (rand.Float64()*2 - 1) * float64(jitterPct) / 100.0
	wait := time.Duration(float64(base) * (1 + delta))
	if wait <= 0 {
		wait = base
	}
	if wait > limit {
		wait = limit
	}
	return wait
}
