package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/map-search-pager/internal/bus"
	"github.com/mohammed-shakir/map-search-pager/internal/core/config"
	"github.com/mohammed-shakir/map-search-pager/internal/core/health"
	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
	"github.com/mohammed-shakir/map-search-pager/internal/core/router"
	"github.com/mohammed-shakir/map-search-pager/internal/pager"
)

func newTestServer(t *testing.T, ready map[string]health.Check) *httptest.Server {
	t.Helper()
	cfg := config.Config{DefaultRows: 10, MaxRows: 100, MetricsEnabled: true}
	b := bus.NewLocal(nil)
	pages := pager.NewAnchorList()
	p := pager.New(b,
		pager.WithContainer(pages),
		pager.WithDefaultAction(func(context.Context, model.PageRequest) (model.SearchResult, error) {
			return model.SearchResult{Results: []model.Item{json.RawMessage(`{}`)}, Count: 12}, nil
		}),
	)
	t.Cleanup(p.Close)

	srv := httptest.NewServer(NewRouter(cfg, nil, router.New(nil, cfg, b, p, pages), ready))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/search?rows=5", "/pages", "/state"} {
		if resp := get(t, srv.URL+path); resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status=%d", path, resp.StatusCode)
		}
	}
}

func TestSearchThenPages(t *testing.T) {
	srv := newTestServer(t, nil)

	if resp := get(t, srv.URL+"/search?rows=5&page=2"); resp.StatusCode != http.StatusOK {
		t.Fatalf("search status=%d", resp.StatusCode)
	}
	resp := get(t, srv.URL+"/pages")
	var anchors []pager.Anchor
	if err := json.NewDecoder(resp.Body).Decode(&anchors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(anchors) != 3 || !anchors[1].Active {
		t.Fatalf("anchors=%+v", anchors)
	}
}

func TestSelectionRequiresPost(t *testing.T) {
	srv := newTestServer(t, nil)
	if resp := get(t, srv.URL+"/selection"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}

	body := `{"type":"rectangle","feature":{"rect":{"_southWest":{"lat":1,"lng":2},"_northEast":{"lat":3,"lng":4}}}}`
	resp, err := http.Post(srv.URL+"/selection", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d want 202", resp.StatusCode)
	}
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	srv := newTestServer(t, map[string]health.Check{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", resp.StatusCode)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "abc123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if got := resp.Header.Get("X-Request-ID"); got != "abc123" {
		t.Fatalf("X-Request-ID=%q", got)
	}
}
