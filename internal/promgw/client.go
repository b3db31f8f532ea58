// Package promgw implements the Prometheus gateway.
//
// The gateway executes instant and range queries against the Prometheus
// HTTP API and absorbs duplicate lookups within one analysis through a
// small TTL cache. Cache entries are keyed by the exact query and
// parameters, carry an expiry timestamp checked on read, and are never
// invalidated early; with a short TTL and a handful of entries there is no
// background eviction.
package promgw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// APIResponse is the Prometheus API envelope.
type APIResponse struct {
	Status    string `json:"status"`
	Data      Data   `json:"data"`
	ErrorType string `json:"errorType,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Success reports whether the query succeeded. A non-success status is a
// query failure the caller surfaces as an error result, not a Go error.
func (r *APIResponse) Success() bool { return r.Status == "success" }

// Data is the result payload of a query.
type Data struct {
	ResultType string   `json:"resultType"`
	Result     []Result `json:"result"`
}

// Result is one time series in a query response.
type Result struct {
	Metric map[string]string `json:"metric"`
	Value  *SamplePair       `json:"value,omitempty"`  // instant queries
	Values []SamplePair      `json:"values,omitempty"` // range queries
}

// SamplePair is Prometheus's [timestamp, "value"] tuple. The value arrives
// as a string and may be "NaN"; Float reports ok=false for anything that is
// not a finite number so absent samples stay absent instead of becoming 0.
type SamplePair struct {
	Timestamp float64
	Value     string
}

func (p *SamplePair) UnmarshalJSON(b []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.Timestamp); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Value)
}

func (p SamplePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.Timestamp, p.Value})
}

// Float parses the sample value. ok is false for "NaN", infinities, and
// unparseable strings.
func (p SamplePair) Float() (float64, bool) {
	v, err := strconv.ParseFloat(p.Value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

type cacheEntry struct {
	resp    *APIResponse
	expires time.Time
}

// Client queries the Prometheus HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewClient creates a gateway client for the Prometheus instance at baseURL.
// ttl controls how long query results are served from cache.
func NewClient(baseURL string, ttl time.Duration) *Client {
	return &Client{
		baseURL: trimTrailingSlash(baseURL),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

// QueryInstant executes an instant query.
func (c *Client) QueryInstant(ctx context.Context, query string) (*APIResponse, error) {
	key := "instant:" + query
	if resp, ok := c.cached(key); ok {
		return resp, nil
	}

	params := url.Values{}
	params.Set("query", query)
	resp, err := c.get(ctx, "/api/v1/query", params)
	if err != nil {
		return nil, err
	}
	c.store(key, resp)
	return resp, nil
}

// QueryRange executes a range query. start and end are epoch seconds; step
// is a Prometheus duration string such as "1m".
func (c *Client) QueryRange(ctx context.Context, query string, start, end int64, step string) (*APIResponse, error) {
	if step == "" {
		step = "1m"
	}
	key := fmt.Sprintf("range:%s:%d:%d:%s", query, start, end, step)
	if resp, ok := c.cached(key); ok {
		return resp, nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(start, 10))
	params.Set("end", strconv.FormatInt(end, 10))
	params.Set("step", step)
	resp, err := c.get(ctx, "/api/v1/query_range", params)
	if err != nil {
		return nil, err
	}
	c.store(key, resp)
	return resp, nil
}

// CheckHealth probes the Prometheus liveness endpoint.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/-/healthy", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*APIResponse, error) {
	u := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("prometheus: create request: %w", err)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prometheus: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	// The API returns its envelope on 4xx too (bad queries); anything else
	// without a decodable body is a transport-level failure.
	var resp APIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("prometheus: status %d: decode response: %w", httpResp.StatusCode, err)
	}

	if !resp.Success() {
		log.Debug().
			Str("path", path).
			Str("error_type", resp.ErrorType).
			Str("error", resp.Error).
			Msg("Prometheus query returned non-success status")
	}
	return &resp, nil
}

func (c *Client) cached(key string) (*APIResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.resp, true
}

func (c *Client) store(key string, resp *APIResponse) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.cache[key] = cacheEntry{resp: resp, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
