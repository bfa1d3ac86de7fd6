package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type MemoryOptions struct {
	MaxRetries  int
	RetryDelays []time.Duration
	Buffer      int
}

type memoryStream struct {
	name        string
	queue       chan Delivery
	handler     Handler
	concurrency int
}

// MemoryBus is the in-process Bus used when RABBITMQ_URL is empty.
// Retries are re-enqueued after the tier delay; exhausted and poison jobs land in Dead.
type MemoryBus struct {
	opts MemoryOptions

	mu      sync.Mutex
	streams map[string]*memoryStream
	dead    map[string][]Delivery
	closed  bool
}

var _ Bus = (*MemoryBus)(nil)

func NewMemoryBus(opts MemoryOptions) *MemoryBus {
	if opts.Buffer <= 0 {
		opts.Buffer = 4096
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	}
	return &MemoryBus{
		opts:    opts,
		streams: make(map[string]*memoryStream),
		dead:    make(map[string][]Delivery),
	}
}

func (b *MemoryBus) stream(name string) *memoryStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[name]
	if !ok {
		s = &memoryStream{name: name, queue: make(chan Delivery, b.opts.Buffer), concurrency: 1}
		b.streams[name] = s
	}
	return s
}

func (b *MemoryBus) Publish(ctx context.Context, stream, key string, payload any) error {
	body, err := encode(payload)
	if err != nil {
		return err
	}
	return b.enqueue(ctx, Delivery{Stream: stream, Key: key, Body: body, MaxRetries: b.opts.MaxRetries})
}

func (b *MemoryBus) enqueue(ctx context.Context, d Delivery) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.New("bus closed")
	}
	s := b.stream(d.Stream)
	select {
	case s.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Handle(stream string, concurrency int, h Handler) {
	s := b.stream(stream)
	b.mu.Lock()
	s.handler = h
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	b.mu.Unlock()
}

func (b *MemoryBus) Run(ctx context.Context) error {
	b.mu.Lock()
	var streams []*memoryStream
	for _, s := range b.streams {
		if s.handler != nil {
			streams = append(streams, s)
		}
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range streams {
		for i := 0; i < s.concurrency; i++ {
			wg.Add(1)
			go func(s *memoryStream) {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case d := <-s.queue:
						b.deliver(ctx, s, d)
					}
				}
			}(s)
		}
		logrus.Debugf("[JOBS] memory consumer %s started (%d)", s.name, s.concurrency)
	}
	wg.Wait()
	return ctx.Err()
}

func (b *MemoryBus) deliver(ctx context.Context, s *memoryStream, d Delivery) {
	err := s.handler(ctx, d)
	switch {
	case err == nil:
	case errors.Is(err, ErrPoison):
		logrus.WithError(err).Warnf("[JOBS] poison job on %s moved to final", d.Stream)
		b.toFinal(d)
	case d.LastAttempt():
		logrus.WithError(err).Warnf("[JOBS] job on %s exhausted %d retries", d.Stream, d.Attempt)
		b.toFinal(d)
	default:
		delay := tierDelay(b.opts.RetryDelays, d.Attempt)
		next := d
		next.Attempt++
		time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				return
			}
			if err := b.enqueue(ctx, next); err != nil {
				logrus.WithError(err).Errorf("[JOBS] failed to requeue job on %s", next.Stream)
			}
		})
	}
}

func (b *MemoryBus) toFinal(d Delivery) {
	b.mu.Lock()
	b.dead[d.Stream] = append(b.dead[d.Stream], d)
	b.mu.Unlock()
}

// Dead returns the dead-lettered deliveries of stream.
func (b *MemoryBus) Dead(stream string) []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Delivery(nil), b.dead[stream]...)
}

func (b *MemoryBus) Depth(_ context.Context, stream string) (int, error) {
	return len(b.stream(stream).queue), nil
}

func (b *MemoryBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// tierDelay picks the retry tier for attempt, sticking to the last tier once exhausted.
func tierDelay(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}

// TierDelay is exported for backends that declare one queue per tier.
func TierDelay(delays []time.Duration, attempt int) time.Duration {
	return tierDelay(delays, attempt)
}
