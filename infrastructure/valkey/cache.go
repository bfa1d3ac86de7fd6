package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-engage/pkg/kvcache"
	valkeylib "github.com/valkey-io/valkey-go"
)

const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Cache implements kvcache.Cache on Valkey. Keys are namespaced with the client prefix.
type Cache struct {
	client *Client
}

var _ kvcache.Cache = (*Cache)(nil)

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) inner() valkeylib.Client {
	return c.client.Inner()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.inner().Do(ctx, c.inner().B().Get().Key(c.client.Key(key)).Build()).AsBytes()
	if IsNil(err) {
		return nil, kvcache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", key, err)
	}
	return b, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := c.client.Key(key)
	v := valkeylib.BinaryString(value)
	var cmd valkeylib.Completed
	if ttl > 0 {
		cmd = c.inner().B().Set().Key(k).Value(v).Ex(ttl).Build()
	} else {
		cmd = c.inner().B().Set().Key(k).Value(v).Build()
	}
	if err := c.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.inner().Do(ctx, c.inner().B().Del().Key(c.client.Key(key)).Build()).Error()
}

func (c *Cache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	cmd := c.inner().B().Set().
		Key(c.client.Key(key)).
		Value(valkeylib.BinaryString(value)).
		Nx().
		Ex(ttl).
		Build()

	err := c.inner().Do(ctx, cmd).Error()
	if err == nil {
		return true, nil
	}
	if IsNil(err) {
		return false, nil
	}
	return false, fmt.Errorf("valkey setnx %s: %w", key, err)
}

func (c *Cache) Release(ctx context.Context, key, token string) error {
	cmd := c.inner().B().Eval().
		Script(releaseLockScript).
		Numkeys(1).
		Key(c.client.Key(key)).
		Arg(token).
		Build()
	if err := c.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
