// Package jobs names the durable work streams and the contract every queue backend honours:
// explicit ack, tiered retries for transient failures, and a {stream}.final dead letter.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	StreamChatSend           = "chat.send"
	StreamMarkRead           = "chat.mark_read"
	StreamWebhook            = "chat.webhook"
	StreamAttachmentDownload = "attachment.download"
	StreamCampaignControl    = "campaign.control"
)

// Streams lists every stream a worker role may consume.
var Streams = []string{
	StreamChatSend,
	StreamMarkRead,
	StreamWebhook,
	StreamAttachmentDownload,
	StreamCampaignControl,
}

// ErrPoison marks a job that can never succeed (undecodable body). It goes straight to final.
var ErrPoison = errors.New("poison message")

// Delivery is one attempt at a job.
type Delivery struct {
	Stream     string
	Key        string
	Body       []byte
	Attempt    int // retries already consumed, 0 on first delivery
	MaxRetries int
}

// LastAttempt reports whether a failure now would dead-letter the job.
func (d Delivery) LastAttempt() bool {
	return d.Attempt >= d.MaxRetries
}

// Handler returns nil to ack, ErrPoison to dead-letter, any other error to retry.
type Handler func(ctx context.Context, d Delivery) error

type Publisher interface {
	Publish(ctx context.Context, stream, key string, payload any) error
}

// Bus is a Publisher that can also consume.
type Bus interface {
	Publisher
	Handle(stream string, concurrency int, h Handler)
	// Run consumes every registered stream until ctx ends.
	Run(ctx context.Context) error
	Depth(ctx context.Context, stream string) (int, error)
	Close()
}

// JSON decodes the body into T; decode failures become ErrPoison.
func JSON[T any](h func(ctx context.Context, payload T, d Delivery) error) Handler {
	return func(ctx context.Context, d Delivery) error {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPoison, d.Stream, err)
		}
		return h(ctx, v, d)
	}
}

func encode(payload any) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return b, nil
}

// Encode is the wire form shared by every backend.
func Encode(payload any) ([]byte, error) {
	return encode(payload)
}
