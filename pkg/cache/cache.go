// Package cache provides a persisted least-recently-used cache for
// generated artifacts, keyed by content and generation parameters. A
// cache is an optimization, never a correctness dependency: every
// storage failure is logged and downgraded to a miss or a no-op, and
// callers must work (just slower) with the cache entirely unavailable.
package cache

import (
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/archlens/archlens/pkg/models"
)

// ErrQuotaExceeded is returned by Store.WriteString when a write would
// push the store past its capacity.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is the persistent string key-value backend a Cache writes
// through.
type Store interface {
	// ReadString returns the value for key, or ok=false when absent.
	ReadString(key string) (value string, ok bool, err error)
	// WriteString stores value under key, returning ErrQuotaExceeded
	// when the write would overflow the store's capacity.
	WriteString(key, value string) error
	// RemoveKey deletes key. Removing an absent key is not an error.
	RemoveKey(key string) error
	// ListKeys returns all keys starting with prefix.
	ListKeys(prefix string) ([]string, error)
}

// entry is the persisted record: the payload plus its last-access
// instant in Unix milliseconds.
type entry[V any] struct {
	Value     V     `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// Cache is an LRU cache generic over the payload type. One instance is
// created per artifact kind, each with its own key namespace in the
// shared store.
type Cache[V any] struct {
	store  Store
	prefix string
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache writing keys under the given namespace prefix.
func New[V any](store Store, prefix string) *Cache[V] {
	return &Cache[V]{store: store, prefix: prefix, now: time.Now}
}

// Get looks up the payload for the given content and parameters. A hit
// refreshes the entry's timestamp, marking it most recently used. Any
// read, parse or storage failure is treated as a miss.
func (c *Cache[V]) Get(params []string, content string) (V, bool) {
	var zero V
	key := Key(c.prefix, params, content)

	raw, ok, err := c.store.ReadString(key)
	if err != nil {
		log.Printf("cache %s: read failed, treating as miss: %v", c.prefix, err)
		c.misses.Add(1)
		return zero, false
	}
	if !ok {
		c.misses.Add(1)
		return zero, false
	}

	var e entry[V]
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		log.Printf("cache %s: corrupt entry, treating as miss: %v", c.prefix, err)
		c.misses.Add(1)
		return zero, false
	}

	e.Timestamp = c.now().UnixMilli()
	if b, err := json.Marshal(e); err == nil {
		if err := c.store.WriteString(key, string(b)); err != nil {
			log.Printf("cache %s: timestamp refresh failed: %v", c.prefix, err)
		}
	}

	c.hits.Add(1)
	return e.Value, true
}

// Set stores the payload under the key derived from content and
// parameters. When the store rejects the write for capacity, one entry
// is evicted and the write retried exactly once; a second failure is
// logged and the write abandoned. Set never returns an error.
func (c *Cache[V]) Set(params []string, content string, value V) {
	key := Key(c.prefix, params, content)

	b, err := json.Marshal(entry[V]{Value: value, Timestamp: c.now().UnixMilli()})
	if err != nil {
		log.Printf("cache %s: marshal entry: %v", c.prefix, err)
		return
	}

	err = c.store.WriteString(key, string(b))
	if err == nil {
		return
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		log.Printf("cache %s: write failed: %v", c.prefix, err)
		return
	}

	log.Printf("cache %s: quota exceeded, evicting least recently used entry", c.prefix)
	c.evictOne()
	if err := c.store.WriteString(key, string(b)); err != nil {
		log.Printf("cache %s: write abandoned after eviction: %v", c.prefix, err)
	}
}

// evictOne removes the entry with the oldest timestamp in this cache's
// namespace. Corrupt entries found during the scan are removed
// immediately, which itself frees space. With fewer than two valid
// entries eviction is a no-op: removing the only entry cannot make a
// new write fit and would just empty the cache.
func (c *Cache[V]) evictOne() {
	keys, err := c.store.ListKeys(c.prefix)
	if err != nil {
		log.Printf("cache %s: list keys: %v", c.prefix, err)
		return
	}

	type candidate struct {
		key string
		ts  int64
	}
	var valid []candidate

	for _, k := range keys {
		raw, ok, err := c.store.ReadString(k)
		if err != nil || !ok {
			continue
		}
		var e entry[V]
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			log.Printf("cache %s: removing corrupt entry %s", c.prefix, k)
			if err := c.store.RemoveKey(k); err != nil {
				log.Printf("cache %s: remove corrupt entry: %v", c.prefix, err)
			}
			continue
		}
		valid = append(valid, candidate{key: k, ts: e.Timestamp})
	}

	if len(valid) < 2 {
		return
	}

	oldest := valid[0]
	for _, v := range valid[1:] {
		if v.ts < oldest.ts {
			oldest = v
		}
	}
	if err := c.store.RemoveKey(oldest.key); err != nil {
		log.Printf("cache %s: evict %s: %v", c.prefix, oldest.key, err)
	}
}

// Clear removes every entry in this cache's namespace.
func (c *Cache[V]) Clear() error {
	keys, err := c.store.ListKeys(c.prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.store.RemoveKey(k); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns entry count and hit/miss counters for this cache.
func (c *Cache[V]) Stats() models.CacheStats {
	var entries int64
	if keys, err := c.store.ListKeys(c.prefix); err == nil {
		entries = int64(len(keys))
	}
	return models.CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
