package jobs

import (
	"context"
	"sync"
)

// Published is one call recorded by Recorder.
type Published struct {
	Stream string
	Key    string
	Body   []byte
}

// Recorder is a Publisher that only remembers what it was given.
type Recorder struct {
	mu   sync.Mutex
	msgs []Published
	Err  error
}

func (r *Recorder) Publish(_ context.Context, stream, key string, payload any) error {
	if r.Err != nil {
		return r.Err
	}
	body, err := encode(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, Published{Stream: stream, Key: key, Body: body})
	r.mu.Unlock()
	return nil
}

// On returns what was published to stream, in order.
func (r *Recorder) On(stream string) []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Published
	for _, m := range r.msgs {
		if m.Stream == stream {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
