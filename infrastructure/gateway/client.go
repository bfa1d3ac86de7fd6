package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-engage/core/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var httpClient = &http.Client{}

// API is everything the core asks of the upstream gateway.
type API interface {
	SendText(ctx context.Context, t Target, to, text string) (string, error)
	SendMedia(ctx context.Context, t Target, to, mediaURL, caption string, kind MediaKind) (string, error)
	SendReaction(ctx context.Context, t Target, remoteJID, messageID string, fromMe bool, emoji string) error
	MarkRead(ctx context.Context, t Target, keys []ReadKey) error
	DeleteForEveryone(ctx context.Context, t Target, remoteJID, messageID string, fromMe bool) error
	FindGroupInfo(ctx context.Context, t Target, groupJID string, withParticipants bool) (*GroupInfo, error)
	FetchAllGroups(ctx context.Context, t Target) ([]GroupSummary, error)
	FetchParticipants(ctx context.Context, t Target, groupJID string) ([]Participant, error)
	FetchProfilePicture(ctx context.Context, t Target, phone string) (string, error)
	FetchPushname(ctx context.Context, t Target, phone string) (string, error)
	ConnectionState(ctx context.Context, t Target) (string, error)
	Connect(ctx context.Context, t Target) (string, error)
	CreateInstance(ctx context.Context, name, webhookURL string, events []string) (string, error)
	Logout(ctx context.Context, t Target) error
	DeleteInstance(ctx context.Context, t Target) error
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

type Client struct {
	cfg config.GatewayConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ API = (*Client)(nil)

func NewClient(cfg config.GatewayConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

type call struct {
	method  string
	path    string
	body    any
	timeout time.Duration
	out     any
}

func (c *Client) resolve(t Target) (base, key string) {
	base = strings.TrimSuffix(t.BaseURL, "/")
	if base == "" {
		base = c.cfg.BaseURL
	}
	key = t.APIKey
	if key == "" {
		key = c.cfg.APIKey
	}
	return base, key
}

func (c *Client) limiter(instance string) *rate.Limiter {
	if c.cfg.RatePerSecond <= 0 || instance == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[instance]
	if !ok {
		burst := int(c.cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), burst)
		c.limiters[instance] = l
	}
	return l
}

// do runs one call with retries on network errors and 5xx, linear backoff, never on 4xx.
func (c *Client) do(ctx context.Context, t Target, cl call) error {
	base, key := c.resolve(t)
	if base == "" {
		return errors.New("gateway: no base URL configured")
	}
	if l := c.limiter(t.InstanceName); l != nil {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}

	var payload []byte
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("gateway: marshal body: %w", err)
		}
		payload = b
	}
	timeout := cl.timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.cfg.RetryBackoff
			logrus.WithError(lastErr).Debugf("[GATEWAY] %s %s retry %d in %s", cl.method, cl.path, attempt, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		retry, err := c.once(ctx, base+cl.path, key, cl, payload, timeout)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	logrus.WithError(lastErr).Warnf("[GATEWAY] %s %s failed after %d attempts", cl.method, cl.path, c.cfg.MaxRetries+1)
	return fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

func (c *Client) once(ctx context.Context, url, key string, cl call, payload []byte, timeout time.Duration) (retry bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, cl.method, url, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("apikey", key)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrGone
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 256))
	case resp.StatusCode >= 400:
		return false, &StatusError{Code: resp.StatusCode, Body: truncate(data, 512)}
	}

	if cl.out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, cl.out); err != nil {
			return false, fmt.Errorf("gateway: decode %s: %w", cl.path, err)
		}
	}
	return false, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
