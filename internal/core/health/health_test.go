package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeReporter struct{ ready bool }

func (f fakeReporter) Readiness() (bool, []int32) {
	if f.ready {
		return true, []int32{0}
	}
	return false, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func readiness(t *testing.T, checks map[string]Check) (int, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	Readiness(checks, time.Second)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rr.Code, body
}

func TestReadiness_AllOK(t *testing.T) {
	code, body := readiness(t, map[string]Check{
		"kafka": FromReporter(fakeReporter{ready: true}),
		"redis": FromPinger(fakePinger{}),
	})
	if code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("code=%d body=%v", code, body)
	}
}

func TestReadiness_OneFailing(t *testing.T) {
	code, body := readiness(t, map[string]Check{
		"kafka": FromReporter(fakeReporter{ready: true}),
		"redis": FromPinger(fakePinger{err: errors.New("connection refused")}),
	})
	if code != http.StatusServiceUnavailable || body["status"] != "not_ready" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	checks := body["checks"].(map[string]any)
	if checks["redis"] != "connection refused" || checks["kafka"] != "ok" {
		t.Fatalf("checks=%v", checks)
	}
}

func TestReadiness_NoChecksIsReady(t *testing.T) {
	code, body := readiness(t, nil)
	if code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("code=%d body=%v", code, body)
	}
}
