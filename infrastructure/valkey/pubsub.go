package valkey

import (
	"context"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	cmd := c.inner.B().Publish().Channel(c.Key(channel)).Message(valkeylib.BinaryString(payload)).Build()
	return c.inner.Do(ctx, cmd).Error()
}

// Subscribe blocks delivering messages on channel until ctx ends, resubscribing after errors.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(payload []byte)) {
	name := c.Key(channel)
	for ctx.Err() == nil {
		err := c.inner.Receive(ctx, c.inner.B().Subscribe().Channel(name).Build(), func(msg valkeylib.PubSubMessage) {
			fn([]byte(msg.Message))
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warnf("[VALKEY] Subscriber on %s dropped, reconnecting", name)
		}
	}
}
