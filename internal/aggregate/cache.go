package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Key identifies one aggregation request.
type Key struct {
	StationCode string
	Start       time.Time
	End         time.Time
	Interval    string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%d|%d|%s", k.StationCode, k.Start.UnixMilli(), k.End.UnixMilli(), k.Interval)
}

// Cache stores computed series. Entries are versioned by a per-station
// generation that ingestion bumps whenever new readings land, so a series
// computed before an invalidation can never be served after it.
type Cache interface {
	Generation(ctx context.Context, station string) (int64, error)
	Get(ctx context.Context, key Key, gen int64) (*models.Series, bool, error)
	Set(ctx context.Context, key Key, gen int64, s *models.Series) error
	Invalidate(ctx context.Context, station string) error
}

// LRUCache is an in-process Cache bounded to maxEntries.
type LRUCache struct {
	mu          sync.Mutex
	generations map[string]int64
	lru         *lruCache
}

func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &LRUCache{
		generations: make(map[string]int64),
		lru:         newLRUCache(maxEntries),
	}
}

func (c *LRUCache) Generation(_ context.Context, station string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[station], nil
}

func (c *LRUCache) Get(_ context.Context, key Key, gen int64) (*models.Series, bool, error) {
	s, ok := c.lru.get(versioned(key, gen))
	return s, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key Key, gen int64, s *models.Series) error {
	c.lru.put(versioned(key, gen), s)
	return nil
}

func (c *LRUCache) Invalidate(_ context.Context, station string) error {
	c.mu.Lock()
	c.generations[station]++
	c.mu.Unlock()
	return nil
}

func versioned(key Key, gen int64) string {
	return fmt.Sprintf("%d|%s", gen, key)
}

// lruCache is a simple thread-safe LRU of computed series.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *models.Series
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (*models.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value *models.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
