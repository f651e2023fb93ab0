package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "catalog:version"

// ScheduleCache wraps Redis based caching with versioning controls. It only
// ever caches read views; capacity decisions always go to the store.
type ScheduleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScheduleCache instantiates the cache helper.
func NewScheduleCache(client *redis.Client, ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *ScheduleCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *ScheduleCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. A nil
// client degrades to calling the loader directly.
func (c *ScheduleCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates cached views by incrementing the global version.
func (c *ScheduleCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.Incr(ctx, cacheVersionKey).Result()
	return err
}

func keySchedule(day string) string {
	return strings.Join([]string{"catalog", "schedule", day}, ":")
}

func formatDay(t time.Time) string {
	return strconv.FormatInt(t.Unix()/86400, 10)
}
