package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/map-search-pager/internal/cache/keys"
	"github.com/mohammed-shakir/map-search-pager/internal/cache/redisstore"
	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
)

type countingBackend struct {
	calls atomic.Int32
	count int
	err   error
}

func (b *countingBackend) search(_ context.Context, req model.PageRequest) (model.SearchResult, error) {
	b.calls.Add(1)
	if b.err != nil {
		return model.SearchResult{}, b.err
	}
	return model.SearchResult{
		Results: []model.Item{json.RawMessage(`{"start":` + itoa(req.Start) + `}`)},
		Count:   b.count,
	}, nil
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

var pageReq = model.PageRequest{Rows: 10, Query: "wells", Start: 10, Extras: model.Extras{ExtBBox: "-10,-10,10,10"}}

func TestWrap_LocalHitSkipsBackend(t *testing.T) {
	be := &countingBackend{count: 12}
	c := New(Config{TTL: time.Minute}, nil, nil)
	act := c.Wrap(be.search)

	for i := 0; i < 3; i++ {
		res, err := act(context.Background(), pageReq)
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if res.Count != 12 {
			t.Fatalf("count=%d want 12", res.Count)
		}
	}
	if n := be.calls.Load(); n != 1 {
		t.Fatalf("backend calls=%d want 1", n)
	}

	other := pageReq
	other.Start = 20
	if _, err := act(context.Background(), other); err != nil {
		t.Fatalf("search: %v", err)
	}
	if n := be.calls.Load(); n != 2 {
		t.Fatalf("backend calls=%d want 2 for a different page", n)
	}
}

func TestWrap_FailuresAreNotCached(t *testing.T) {
	rc, mr := newRedis(t)
	be := &countingBackend{err: errors.New("down")}
	c := New(Config{TTL: time.Minute}, rc, nil)
	act := c.Wrap(be.search)

	for i := 0; i < 2; i++ {
		if _, err := act(context.Background(), pageReq); err == nil {
			t.Fatalf("expected backend error")
		}
	}
	if n := be.calls.Load(); n != 2 {
		t.Fatalf("backend calls=%d want 2 (no caching of failures)", n)
	}
	if keysInRedis := mr.Keys(); len(keysInRedis) != 0 {
		t.Fatalf("failed search stored in redis: %v", keysInRedis)
	}
}

func TestWrap_RedisTierSharedAcrossInstances(t *testing.T) {
	rc, mr := newRedis(t)
	be := &countingBackend{count: 7}

	first := New(Config{TTL: 30 * time.Second}, rc, nil).Wrap(be.search)
	if _, err := first(context.Background(), pageReq); err != nil {
		t.Fatalf("first: %v", err)
	}
	key := keys.SearchKey(pageReq)
	if !mr.Exists(key) {
		t.Fatalf("result not written to redis under %s", key)
	}
	if ttl := mr.TTL(key); ttl != 30*time.Second {
		t.Fatalf("ttl=%v want 30s", ttl)
	}

	// a fresh local tier must be filled from redis
	second := New(Config{TTL: 30 * time.Second}, rc, nil).Wrap(be.search)
	res, err := second(context.Background(), pageReq)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Count != 7 || len(res.Results) != 1 || string(res.Results[0]) != `{"start":10}` {
		t.Fatalf("result from redis=%+v", res)
	}
	if n := be.calls.Load(); n != 1 {
		t.Fatalf("backend calls=%d want 1", n)
	}
}

func TestWrap_CorruptRedisEntryFallsThrough(t *testing.T) {
	rc, mr := newRedis(t)
	if err := mr.Set(keys.SearchKey(pageReq), "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	be := &countingBackend{count: 3}
	act := New(Config{}, rc, nil).Wrap(be.search)

	res, err := act(context.Background(), pageReq)
	if err != nil || res.Count != 3 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if n := be.calls.Load(); n != 1 {
		t.Fatalf("backend calls=%d want 1", n)
	}
}

func TestWrap_RedisDownDegradesToBackend(t *testing.T) {
	rc, mr := newRedis(t)
	mr.Close()

	be := &countingBackend{count: 9}
	act := New(Config{OpTimeout: 50 * time.Millisecond}, rc, nil).Wrap(be.search)
	res, err := act(context.Background(), pageReq)
	if err != nil || res.Count != 9 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}
