package ckan

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
)

type upstreamRecorder struct {
	mu         sync.Mutex
	lastPath   string
	lastQuery  url.Values
	lastHeader http.Header

	status int
	body   string
}

func (u *upstreamRecorder) handler(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.lastPath = r.URL.Path
	u.lastQuery = r.URL.Query()
	u.lastHeader = r.Header.Clone()
	status, body := u.status, u.body
	u.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (u *upstreamRecorder) snapshot() (string, url.Values, http.Header) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastPath, u.lastQuery, u.lastHeader
}

func newClient(t *testing.T, up *upstreamRecorder, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(logger, srv.Client(), srv.URL+"/", opts...)
	if err != nil {
		t.Fatalf("ckan.New: %v", err)
	}
	return c
}

func TestSearch_BBoxRequestAndDecode(t *testing.T) {
	up := &upstreamRecorder{body: `{"success":true,"result":{"count":42,"results":[{"id":"a"},{"id":"b"}]}}`}
	c := newClient(t, up, WithAPIKey("secret"))

	res, err := c.Search(context.Background(), model.PageRequest{
		Rows: 10, Query: "wells", Start: 20,
		Extras: model.Extras{ExtBBox: "-10,-10,10,10"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Count != 42 || len(res.Results) != 2 {
		t.Fatalf("result=%+v", res)
	}
	if string(res.Results[1]) != `{"id":"b"}` {
		t.Fatalf("item passthrough=%s", res.Results[1])
	}

	path, q, hdr := up.snapshot()
	if path != "/api/3/action/package_search" {
		t.Fatalf("path=%s", path)
	}
	want := url.Values{
		"q": {"wells"}, "rows": {"10"}, "start": {"20"}, "ext_bbox": {"-10,-10,10,10"},
	}
	if q.Encode() != want.Encode() {
		t.Fatalf("query=%s want %s", q.Encode(), want.Encode())
	}
	if hdr.Get("Authorization") != "secret" || hdr.Get("Accept") != "application/json" {
		t.Fatalf("headers=%v", hdr)
	}
}

func TestBuildSearchParams_PolygonWins(t *testing.T) {
	p, err := BuildSearchParams(model.PageRequest{
		Rows: 5,
		Extras: model.Extras{
			ExtBBox: "0,0,1,1",
			Poly:    [][2]float64{{1, 2}, {3, 4}, {5, 6}},
		},
	})
	if err != nil {
		t.Fatalf("BuildSearchParams: %v", err)
	}
	if p.Get("poly") != "[[1,2],[3,4],[5,6]]" {
		t.Fatalf("poly=%q", p.Get("poly"))
	}
	if p.Has("ext_bbox") || p.Has("q") {
		t.Fatalf("unexpected params: %v", p)
	}
	if p.Get("start") != "0" {
		t.Fatalf("start=%q", p.Get("start"))
	}
}

func TestSearch_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"action error envelope", http.StatusConflict,
			`{"success":false,"error":{"__type":"Search Query Error","message":"bad q"}}`, "Search Query Error: bad q"},
		{"plain 502", http.StatusBadGateway, `gateway down`, "upstream status 502: gateway down"},
		{"unsuccessful 200", http.StatusOK, `{"success":false}`, "unsuccessful"},
		{"garbage 200", http.StatusOK, `<html>`, "decode response"},
		{"negative count", http.StatusOK, `{"success":true,"result":{"count":-1}}`, "negative count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &upstreamRecorder{status: tc.status, body: tc.body}
			c := newClient(t, up)
			_, err := c.Search(context.Background(), model.PageRequest{Rows: 10})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want containing %q", err, tc.want)
			}
		})
	}
}

func TestSearch_ContextCanceled(t *testing.T) {
	up := &upstreamRecorder{body: `{"success":true,"result":{"count":0,"results":[]}}`}
	c := newClient(t, up)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Search(ctx, model.PageRequest{Rows: 10}); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New(nil, nil, "ckan.local"); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

func TestSearch_DurationUsesClientClock(t *testing.T) {
	up := &upstreamRecorder{body: `{"success":true,"result":{"count":0,"results":[]}}`}
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	t.Cleanup(srv.Close)

	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c, err := New(logger, srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("ckan.New: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.startNow = func() time.Time {
		now = now.Add(1500 * time.Millisecond)
		return now
	}

	if _, err := c.Search(context.Background(), model.PageRequest{Rows: 1}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !strings.Contains(buf.String(), "duration=1.5s") {
		t.Fatalf("log=%q want duration=1.5s", buf.String())
	}
}
