package valkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-engage/core/config"
	valkeylib "github.com/valkey-io/valkey-go"
)

const connectTimeout = 5 * time.Second

type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Client is the shared connection. Every key it writes carries the deployment prefix so
// several environments can share one server.
type Client struct {
	inner  valkeylib.Client
	prefix string
}

// NewClient connects and pings the server before returning. The caller owns Close.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey address is empty")
	}
	inner, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("valkey %s: %w", cfg.Address, err)
	}

	c := &Client{inner: inner, prefix: strings.TrimSuffix(cfg.KeyPrefix, ":")}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		inner.Close()
		return nil, fmt.Errorf("valkey %s unreachable: %w", cfg.Address, err)
	}
	return c, nil
}

func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the prefix: Key("lock", "send", "42") is "engage:lock:send:42".
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return strings.Join(append([]string{c.prefix}, parts...), ":")
}

// KeyPrefix is the prefix including its trailing separator, or "" without one.
func (c *Client) KeyPrefix() string {
	if c.prefix == "" {
		return ""
	}
	return c.prefix + ":"
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsNil reports a missing key.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}

// FromConfig returns nil when Valkey is disabled so callers fall back to the memory twins.
func FromConfig(cfg config.DatabaseConfig) (*Client, error) {
	if !cfg.ValkeyEnabled {
		return nil, nil
	}
	return NewClient(Config{
		Address:   cfg.ValkeyAddress,
		Password:  cfg.ValkeyPassword,
		DB:        cfg.ValkeyDB,
		KeyPrefix: cfg.ValkeyKeyPrefix,
	})
}
