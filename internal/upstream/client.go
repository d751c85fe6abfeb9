// Package upstream fetches raw employment statistics from the data.gov.in
// open-data API. Each of the four logical resources is a single paginated GET;
// retry policy is the caller's concern.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/workstat/internal/config"
)

// Endpoint identifies one of the four upstream resources.
type Endpoint string

const (
	EndpointDistricts  Endpoint = "districts"
	EndpointEmployment Endpoint = "employment"
	EndpointWorks      Endpoint = "works"
	EndpointWages      Endpoint = "wages"
)

// AllEndpoints lists every upstream resource a full sync run fetches.
var AllEndpoints = []Endpoint{
	EndpointDistricts,
	EndpointEmployment,
	EndpointWorks,
	EndpointWages,
}

var endpointPaths = map[Endpoint]string{
	EndpointDistricts:  "/mgnrega-districts",
	EndpointEmployment: "/mgnrega-employment-data",
	EndpointWorks:      "/mgnrega-works-data",
	EndpointWages:      "/mgnrega-wages-data",
}

// ErrMissingAPIKey is returned before any network call when no upstream
// credential is configured. It is a configuration error and never retried.
var ErrMissingAPIKey = eris.New("upstream: api key is not configured")

// FetchError wraps a per-endpoint fetch failure with the endpoint name.
type FetchError struct {
	Endpoint Endpoint
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("upstream: fetch %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Record is one raw upstream row; field names and types vary by source feed.
type Record map[string]any

// Bundle holds the settled results of fetching all four endpoints. Endpoints
// that failed contribute an empty record set and an entry in Errors.
type Bundle struct {
	Districts  []Record
	Employment []Record
	Works      []Record
	Wages      []Record
	Errors     map[Endpoint]error
}

// TotalRecords returns the number of raw records across all endpoints.
func (b *Bundle) TotalRecords() int {
	return len(b.Districts) + len(b.Employment) + len(b.Works) + len(b.Wages)
}

// Client issues parameterized fetches against the upstream API.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient builds an upstream client from configuration. It fails fast with
// ErrMissingAPIKey when no credential is configured.
func NewClient(cfg config.UpstreamConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = 1000
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
	}, nil
}

type recordsResponse struct {
	Records []Record `json:"records"`
}

// Fetch issues a single GET against one endpoint. Extra params override the
// defaults. A well-formed response without a records field yields zero
// records, not an error. Failures are wrapped as *FetchError; there is no
// retry at this layer.
func (c *Client) Fetch(ctx context.Context, ep Endpoint, params map[string]string) ([]Record, error) {
	path, ok := endpointPaths[ep]
	if !ok {
		return nil, &FetchError{Endpoint: ep, Err: eris.Errorf("unknown endpoint %q", ep)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Endpoint: ep, Err: eris.Wrap(err, "rate limiter wait")}
	}

	q := url.Values{}
	q.Set("api-key", c.apiKey)
	q.Set("format", "json")
	q.Set("limit", fmt.Sprintf("%d", c.pageSize))
	for k, v := range params {
		q.Set(k, v)
	}

	reqURL := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Endpoint: ep, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("User-Agent", "workstat/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Endpoint: ep, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Endpoint: ep, Err: eris.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body recordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &FetchError{Endpoint: ep, Err: eris.Wrap(err, "decode response")}
	}

	if len(body.Records) == 0 {
		zap.L().Warn("upstream: no records in response", zap.String("endpoint", string(ep)))
		return nil, nil
	}

	zap.L().Info("upstream: fetched records",
		zap.String("endpoint", string(ep)),
		zap.Int("count", len(body.Records)),
	)
	return body.Records, nil
}

// FetchAll fetches all four endpoints concurrently with settle-all semantics:
// a failing endpoint is logged, recorded in Bundle.Errors and contributes an
// empty record set; the other endpoints proceed.
func (c *Client) FetchAll(ctx context.Context) (*Bundle, error) {
	bundle := &Bundle{Errors: make(map[Endpoint]error)}

	var mu sync.Mutex
	results := make(map[Endpoint][]Record, len(AllEndpoints))

	var g errgroup.Group
	for _, ep := range AllEndpoints {
		g.Go(func() error {
			records, err := c.Fetch(ctx, ep, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("upstream: endpoint failed, continuing without it",
					zap.String("endpoint", string(ep)),
					zap.Error(err),
				)
				bundle.Errors[ep] = err
				return nil
			}
			results[ep] = records
			return nil
		})
	}
	_ = g.Wait()

	bundle.Districts = results[EndpointDistricts]
	bundle.Employment = results[EndpointEmployment]
	bundle.Works = results[EndpointWorks]
	bundle.Wages = results[EndpointWages]

	return bundle, nil
}
