// Package kvcache is the small key/value contract shared by the hot webhook cache,
// the participant and profile-picture caches, and the distributed locks.
package kvcache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// SetNX stores value only when key does not exist and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Release deletes key only while it still holds token.
	Release(ctx context.Context, key, token string) error
}

// Lock is a held SetNX lease.
type Lock struct {
	cache Cache
	key   string
	token string
}

// Acquire tries once to take key for ttl. A nil Lock with nil error means someone else holds it.
func Acquire(ctx context.Context, c Cache, key, token string, ttl time.Duration) (*Lock, error) {
	ok, err := c.SetNX(ctx, key, []byte(token), ttl)
	if err != nil || !ok {
		return nil, err
	}
	return &Lock{cache: c, key: key, token: token}, nil
}

func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.cache.Release(ctx, l.key, l.token)
}

// Refresh extends the lease when the token still owns it.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, nil
	}
	cur, err := l.cache.Get(ctx, l.key)
	if errors.Is(err, ErrMiss) {
		return l.cache.SetNX(ctx, l.key, []byte(l.token), ttl)
	}
	if err != nil {
		return false, err
	}
	if string(cur) != l.token {
		return false, nil
	}
	return true, l.cache.Set(ctx, l.key, []byte(l.token), ttl)
}
