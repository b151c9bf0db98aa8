package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type entry struct {
	fields  map[string][]byte
	expires time.Time
}

// MemoryCache is an in-process Cache. Values are stored encoded so readers
// never share memory with the writer.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	gens    map[string]int64
	now     func() time.Time
}

func NewMemory() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*entry), gens: make(map[string]int64), now: time.Now}
}

func (c *MemoryCache) Get(ctx context.Context, key, field string, dst any) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	var data []byte
	if ok {
		data, ok = e.fields[field]
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key, field string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, field, data, ttl)
	return nil
}

func (c *MemoryCache) SetIfGeneration(ctx context.Context, key, field string, gen int64, value any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false, nil
	}
	c.store(key, field, data, ttl)
	return true, nil
}

// store must be called with mu held
func (c *MemoryCache) store(key, field string, data []byte, ttl time.Duration) {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{fields: make(map[string][]byte)}
		c.entries[key] = e
	}
	e.fields[field] = data
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
}

func (c *MemoryCache) Generation(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen, ok := c.gens[key]
	if !ok {
		// Tracked from now on so InvalidatePrefix moves it too
		c.gens[key] = 0
	}
	return gen, nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.gens[key]++
	return nil
}

func (c *MemoryCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	for k := range c.gens {
		if strings.HasPrefix(k, prefix) {
			c.gens[k]++
		}
	}
	return nil
}
