package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	errPoolClosed = errors.New("channel pool closed")
	errConnClosed = errors.New("amqp connection closed")
)

// ChannelPool bounds the publisher channels of one connection.
// len(permits) tracks idle plus borrowed channels.
type ChannelPool struct {
	conn     *amqp.Connection
	idle     chan *amqp.Channel
	capacity int

	closed  atomic.Bool
	newChMu sync.Mutex
	permits chan struct{}
}

func NewChannelPool(conn *amqp.Connection, capacity int) (*ChannelPool, error) {
	if capacity <= 0 {
		capacity = 16
	}
	return &ChannelPool{
		conn:     conn,
		idle:     make(chan *amqp.Channel, capacity),
		capacity: capacity,
		permits:  make(chan struct{}, capacity),
	}, nil
}

func (cp *ChannelPool) Borrow(ctx context.Context, retryDelay time.Duration) (*amqp.Channel, error) {
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}
	for {
		if cp.closed.Load() {
			return nil, errPoolClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ch, ok := <-cp.idle:
			if !ok {
				return nil, errPoolClosed
			}
			if !cp.conn.IsClosed() && !ch.IsClosed() {
				return ch, nil
			}
			safeClose(ch)
			nch, err := cp.open()
			if err != nil {
				cp.releasePermit()
				return nil, err
			}
			return nch, nil

		default:
			if cp.conn.IsClosed() {
				return nil, errConnClosed
			}
			select {
			case cp.permits <- struct{}{}:
				nch, err := cp.open()
				if err != nil {
					cp.releasePermit()
					return nil, err
				}
				return nch, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
}

func (cp *ChannelPool) Return(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	if cp.closed.Load() || cp.conn.IsClosed() || ch.IsClosed() {
		safeClose(ch)
		cp.releasePermit()
		return
	}
	defer func() {
		// idle closed concurrently by Close
		if recover() != nil {
			safeClose(ch)
		}
	}()
	select {
	case cp.idle <- ch:
	default:
		safeClose(ch)
		cp.releasePermit()
	}
}

func (cp *ChannelPool) Close() {
	if cp.closed.Swap(true) {
		return
	}
	close(cp.idle)
	for ch := range cp.idle {
		safeClose(ch)
		cp.releasePermit()
	}
}

func (cp *ChannelPool) releasePermit() {
	select {
	case <-cp.permits:
	default:
	}
}

func (cp *ChannelPool) open() (*amqp.Channel, error) {
	cp.newChMu.Lock()
	defer cp.newChMu.Unlock()
	if cp.conn.IsClosed() {
		return nil, errConnClosed
	}
	return cp.conn.Channel()
}

func safeClose(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = ch.Close()
}
