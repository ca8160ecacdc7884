package data

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCacheRepo implements core.CacheRepository with a process-local LRU and per-entry TTL.
// Invalidations are visible only to the process that issued them; use Redis when several
// processes share endpoints.
type MemoryCacheRepo struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List               // front = most-recently used
	items map[string]*list.Element // key -> element
	now   func() time.Time
}

type memoryEntry struct {
	key    string
	value  []byte
	expiry time.Time // zero means no expiry
}

// MemoryCacheOptions configures a MemoryCacheRepo.
type MemoryCacheOptions struct {
	Capacity int
	Now      func() time.Time
}

// DefaultMemoryCacheCapacity is used when MemoryCacheOptions.Capacity is not positive.
const DefaultMemoryCacheCapacity = 10000

// NewMemoryCacheRepo creates a new MemoryCacheRepo.
func NewMemoryCacheRepo(opts MemoryCacheOptions) *MemoryCacheRepo {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultMemoryCacheCapacity
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryCacheRepo{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, min(capacity, 1024)),
		now:   nowFn,
	}
}

// Set inserts or replaces a value. ttl <= 0 means no expiration.
func (c *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyCacheKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	stored := append([]byte(nil), value...)

	if el, found := c.items[key]; found {
		ent := el.Value.(*memoryEntry)
		ent.value = stored
		ent.expiry = exp
		c.ll.MoveToFront(el)
		return nil
	}

	c.items[key] = c.ll.PushFront(&memoryEntry{key: key, value: stored, expiry: exp})
	for c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
	}
	return nil
}

// Get returns the value for key, or nil if it is absent or expired.
func (c *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyCacheKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		return nil, nil
	}
	ent := el.Value.(*memoryEntry)
	if !ent.expiry.IsZero() && c.now().After(ent.expiry) {
		c.removeElement(el)
		return nil, nil
	}
	c.ll.MoveToFront(el)
	return append([]byte(nil), ent.value...), nil
}

// Delete removes key, reporting whether it was present.
func (c *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyCacheKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false, nil
	}
	c.removeElement(el)
	return true, nil
}

// Health always succeeds.
func (c *MemoryCacheRepo) Health(context.Context) error { return nil }

// Len returns the number of stored entries, expired ones included until touched.
func (c *MemoryCacheRepo) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// caller must hold c.mu.
func (c *MemoryCacheRepo) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*memoryEntry).key)
}

// NoopCacheRepo implements core.CacheRepository without storing anything,
// so every endpoint lookup reads the store.
type NoopCacheRepo struct{}

// Set does nothing.
func (NoopCacheRepo) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Get always misses.
func (NoopCacheRepo) Get(context.Context, string) ([]byte, error) { return nil, nil }

// Delete reports nothing removed.
func (NoopCacheRepo) Delete(context.Context, string) (bool, error) { return false, nil }

// Health always succeeds.
func (NoopCacheRepo) Health(context.Context) error { return nil }
