package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Check returns nil when the dependency is usable.
type Check func(ctx context.Context) error

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// FromReporter adapts a kafka consumer's partition report into a Check.
func FromReporter(rr ReadinessReporter) Check {
	return func(context.Context) error {
		if ready, _ := rr.Readiness(); !ready {
			return errors.New("no partitions assigned")
		}
		return nil
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func FromPinger(p Pinger) Check {
	return func(ctx context.Context) error { return p.Ping(ctx) }
}

// Readiness runs every check with a shared timeout and answers 503 if any fails.
func Readiness(checks map[string]Check, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		out := resp{Status: "ready", Checks: map[string]string{}}
		for _, n := range names {
			if err := checks[n](ctx); err != nil {
				out.Status = "not_ready"
				out.Checks[n] = err.Error()
				continue
			}
			out.Checks[n] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
