// Package apiclient is the outbound client the presentation tier uses against
// the service's own read API. Concurrent identical requests are coalesced into
// one in-flight call, and rate-limit responses are retried with backoff.
// Failures degrade to a soft miss so callers fall back to last-known-good
// data instead of crashing the view.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/workstat/internal/config"
)

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second

	// cacheTTL bounds how long a stale response may stand in for a failed
	// fetch.
	cacheTTL = time.Hour
)

type cacheEntry struct {
	data []byte
	at   time.Time
}

// Client deduplicates and retries read calls against the workstat API.
// Successful GET responses are kept as last-known-good copies and served when
// a later fetch of the same resource soft-fails within the TTL.
type Client struct {
	baseURL     string
	http        *http.Client
	group       singleflight.Group
	maxAttempts int

	mu    sync.Mutex
	cache map[string]cacheEntry

	// sleep and now are injected by tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New builds a Client from configuration.
func New(cfg config.ClientConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 4
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		http:        &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		cache:       make(map[string]cacheEntry),
		sleep:       sleepCtx,
		now:         time.Now,
	}
}

// Get fetches a read endpoint. See Do for failure semantics.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, params, nil)
}

// Do issues a request against the read API. Concurrent calls with the same
// (method, path, params, body) signature share a single in-flight request and
// its result. On 429 the call backs off (server Retry-After hint when present,
// otherwise exponential with jitter) and retries up to the attempt budget.
// Every failure short of context cancellation yields (nil, nil): a soft miss
// the caller resolves from cached or default data.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	key := method + "|" + path + "|" + params.Encode() + "|" + string(body)

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.doWithRetry(ctx, method, path, params, body)
	})
	if err != nil {
		return nil, err
	}
	data, _ := v.([]byte)

	if method == http.MethodGet {
		ck := CacheKey(path, params)
		if data != nil {
			c.storeCached(ck, data)
		} else if cached, ok := c.lastKnownGood(ck); ok {
			zap.L().Info("serving last known good response", zap.String("path", path))
			return cached, nil
		}
	}
	return data, nil
}

func (c *Client) storeCached(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{data: data, at: c.now()}
}

func (c *Client) lastKnownGood(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || c.now().Sub(entry.at) >= cacheTTL {
		return nil, false
	}
	return entry.data, true
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		if err != nil {
			zap.L().Warn("api call failed, using fallback data", zap.String("path", path), zap.Error(err))
			return nil, nil
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("api call failed, using fallback data", zap.String("path", path), zap.Error(err))
			return nil, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryDelay(resp.Header.Get("Retry-After"), attempt)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			zap.L().Info("rate limited, backing off",
				zap.String("path", path),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
			zap.L().Warn("api call failed, using fallback data",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
			return nil, nil
		}
		return data, nil
	}

	zap.L().Warn("rate limit retries exhausted, using fallback data", zap.String("path", path))
	return nil, nil
}

// retryDelay prefers the server's Retry-After hint (delta-seconds or an HTTP
// date); otherwise exponential backoff with jitter: base 1s, doubling per
// attempt, capped at 30s.
func retryDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(retryAfter); err == nil {
			d := time.Until(at)
			if d < time.Second {
				d = time.Second
			}
			return d
		}
		return time.Second
	}

	d := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + time.Duration(rand.Int64N(int64(time.Second)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CacheKey builds a stable cache key for fallback storage, mirroring the
// request signature used for deduplication.
func CacheKey(path string, params url.Values) string {
	return fmt.Sprintf("workstat:%s:%s", path, params.Encode())
}
