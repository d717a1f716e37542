// Package resultcache memoises successful search pages in an in-process LRU
// backed by Redis.
package resultcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/map-search-pager/internal/cache/keys"
	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
	"github.com/mohammed-shakir/map-search-pager/internal/core/observability"
	"github.com/mohammed-shakir/map-search-pager/internal/pager"
)

// Store is the shared tier; *redisstore.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type Config struct {
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
}

type Cache struct {
	cfg    Config
	logger *slog.Logger
	store  Store
	local  *expirable.LRU[string, model.SearchResult]
}

// New builds the cache; store may be nil to run with the local tier only.
func New(cfg Config, store Store, logger *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = 512
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		cfg:    cfg,
		logger: logger,
		store:  store,
		local:  expirable.NewLRU[string, model.SearchResult](cfg.LRUSize, nil, cfg.TTL),
	}
}

// Wrap returns an action that consults the cache before next. Errors from
// next are returned as-is and never cached.
func (c *Cache) Wrap(next pager.Action) pager.Action {
	return func(ctx context.Context, req model.PageRequest) (model.SearchResult, error) {
		key := keys.SearchKey(req)

		if res, ok := c.local.Get(key); ok {
			observability.IncResultCache("lru", true)
			return res, nil
		}
		observability.IncResultCache("lru", false)

		if res, ok := c.fromStore(ctx, key); ok {
			c.local.Add(key, res)
			return res, nil
		}

		res, err := next(ctx, req)
		if err != nil {
			return model.SearchResult{}, err
		}
		c.local.Add(key, res)
		c.toStore(ctx, key, res)
		return res, nil
	}
}

func (c *Cache) fromStore(ctx context.Context, key string) (model.SearchResult, bool) {
	if c.store == nil {
		return model.SearchResult{}, false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()

	b, ok, err := c.store.Get(opCtx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "result cache read failed", "key", key, "err", err)
		return model.SearchResult{}, false
	}
	observability.IncResultCache("redis", ok)
	if !ok {
		return model.SearchResult{}, false
	}

	var res model.SearchResult
	if err := json.Unmarshal(b, &res); err != nil {
		c.logger.WarnContext(ctx, "result cache entry corrupt", "key", key, "err", err)
		return model.SearchResult{}, false
	}
	return res, true
}

func (c *Cache) toStore(ctx context.Context, key string, res model.SearchResult) {
	if c.store == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		c.logger.WarnContext(ctx, "result cache encode failed", "key", key, "err", err)
		return
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OpTimeout)
	defer cancel()
	if err := c.store.Set(opCtx, key, b, c.cfg.TTL); err != nil {
		c.logger.WarnContext(ctx, "result cache write failed", "key", key, "err", err)
	}
}

// Purge drops the local tier; Redis entries expire by TTL.
func (c *Cache) Purge() {
	c.local.Purge()
}
