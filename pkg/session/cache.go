package session

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// refreshCache is a generic id-keyed, name-indexed cache with
// singleflight-deduped refresh-on-miss: concurrent lookups for the same
// missing key collapse into a single upstream call, the way the session
// caches a thousand JOINs racing to resolve the same new user.
type refreshCache[T any] struct {
	mu      sync.RWMutex
	byID    map[string]T
	byName  map[string]string // name -> id
	group   singleflight.Group
	fetchFn func(ctx context.Context, id string) (T, string, error) // returns value, name
}

func newRefreshCache[T any](fetch func(ctx context.Context, id string) (T, string, error)) *refreshCache[T] {
	return &refreshCache[T]{
		byID:    make(map[string]T),
		byName:  make(map[string]string),
		fetchFn: fetch,
	}
}

func (c *refreshCache[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byID[id]
	return v, ok
}

func (c *refreshCache[T]) getByName(name string) (T, bool) {
	c.mu.RLock()
	id, ok := c.byName[name]
	c.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	return c.get(id)
}

// resolve returns a cached value, fetching and caching it on miss. Multiple
// concurrent misses for the same id share one fetch.
func (c *refreshCache[T]) resolve(ctx context.Context, id string) (T, error) {
	if v, ok := c.get(id); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(id, func() (interface{}, error) {
		v, name, err := c.fetchFn(ctx, id)
		if err != nil {
			var zero T
			return zero, err
		}
		c.put(id, name, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (c *refreshCache[T]) put(id, name string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = v
	if name != "" {
		c.byName[name] = id
	}
}

func (c *refreshCache[T]) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
	for name, mappedID := range c.byName {
		if mappedID == id {
			delete(c.byName, name)
		}
	}
}

func (c *refreshCache[T]) all() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.byID))
	for _, v := range c.byID {
		out = append(out, v)
	}
	return out
}
