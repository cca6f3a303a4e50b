package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/social-feed/internal/model"
)

// FeedCache keeps the cursor-less first page of the global feed in Redis.
// Only the head of the feed is cached: it is the page every client asks for
// and the only one that churns on every publish. Invalidation is done by
// bumping a version counter, so stale entries age out by TTL instead of
// being chased key by key.
type FeedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

type firstPage struct {
	Posts      []*model.Post `json:"posts"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func NewFeedCache(rdb *redis.Client, ttl time.Duration) *FeedCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FeedCache{rdb: rdb, ttl: ttl}
}

const verKey = "feed:ver"

// Version reads the current feed version. Callers capture it BEFORE
// computing a page and store under the captured value, so an Invalidate
// racing the computation orphans the write instead of letting a stale
// page masquerade as post-bump data.
func (c *FeedCache) Version(ctx context.Context) int64 {
	ver, err := c.rdb.Get(ctx, verKey).Int64()
	if err != nil {
		return 0
	}
	return ver
}

func (c *FeedCache) key(pageSize int, ver int64) string {
	return fmt.Sprintf("feed:first:%d:v%d", pageSize, ver)
}

// GetFirstPage returns the head page cached under version ver, or ok=false
// on any miss or decode failure (the caller falls through to the engine
// either way).
func (c *FeedCache) GetFirstPage(ctx context.Context, pageSize int, ver int64) ([]*model.Post, string, bool) {
	data, err := c.rdb.Get(ctx, c.key(pageSize, ver)).Bytes()
	if err != nil {
		return nil, "", false
	}
	var page firstPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, "", false
	}
	return page.Posts, page.NextCursor, true
}

// SetFirstPage stores a freshly served head page under version ver.
// Failures are swallowed: the cache is an accelerator, never a source of
// truth.
func (c *FeedCache) SetFirstPage(ctx context.Context, pageSize int, ver int64, posts []*model.Post, nextCursor string) {
	payload, err := json.Marshal(firstPage{Posts: posts, NextCursor: nextCursor})
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(pageSize, ver), payload, c.ttl).Err()
}

// Invalidate bumps the feed version so every cached head page misses.
// Called after any post create/delete/hide.
func (c *FeedCache) Invalidate(ctx context.Context) {
	_ = c.rdb.Incr(ctx, verKey).Err()
}
