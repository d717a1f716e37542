// Package ckan runs page requests against a CKAN package_search action.
package ckan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
	"github.com/mohammed-shakir/map-search-pager/internal/core/observability"
)

const maxErrorBody = 8 << 10

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	startNow func() time.Time
}

type Option func(*Client)

// WithAPIKey sends key in the Authorization header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func New(logger *slog.Logger, client *http.Client, ckanBase string, opts ...Option) (*Client, error) {
	u, err := url.Parse(PackageSearchEndpoint(ckanBase))
	if err != nil {
		return nil, fmt.Errorf("parse ckan url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ckan url %q must be absolute", ckanBase)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{
		logger:   logger,
		client:   client,
		endpoint: u,
		startNow: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type actionResponse struct {
	Success bool               `json:"success"`
	Result  model.SearchResult `json:"result"`
	Error   *struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search matches the pager's Action signature.
func (c *Client) Search(ctx context.Context, req model.PageRequest) (model.SearchResult, error) {
	params, err := BuildSearchParams(req)
	if err != nil {
		return model.SearchResult{}, err
	}

	u := *c.endpoint
	u.RawQuery = params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", c.apiKey)
	}

	start := c.startNow()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := c.startNow().Sub(start)
	observability.ObserveUpstreamLatency("ckan", dur.Seconds())
	c.logger.DebugContext(ctx, "package_search done",
		"status", resp.StatusCode, "duration", dur.String(), "start", req.Start, "rows", req.Rows)

	// CKAN reports action errors with 4xx/409 and a JSON envelope
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("read body: %w", err)
	}

	var out actionResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != nil {
			return model.SearchResult{}, fmt.Errorf("upstream status %d: %s: %s", resp.StatusCode, out.Error.Type, out.Error.Message)
		}
		return model.SearchResult{}, fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(body, maxErrorBody))
	}
	if decodeErr != nil {
		return model.SearchResult{}, fmt.Errorf("decode response: %w", decodeErr)
	}
	if !out.Success {
		msg := "unknown error"
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return model.SearchResult{}, errors.New("package_search unsuccessful: " + msg)
	}
	if out.Result.Count < 0 {
		return model.SearchResult{}, fmt.Errorf("package_search returned negative count %d", out.Result.Count)
	}
	return out.Result, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
