package artifact

import (
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// CacheStats counts bundle cache lookups.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type cacheKey struct {
	path    string
	modTime int64
	size    int64
}

// Cache keeps recently loaded bundles. Entries are keyed by path and file
// modification time, so a retrained bundle is reloaded.
type Cache struct {
	bundles *lru.Cache[cacheKey, *Bundle]
	logger  *logrus.Logger

	mu    sync.Mutex
	stats CacheStats
}

// NewCache creates a cache holding at most size bundles.
func NewCache(size int, logger *logrus.Logger) (*Cache, error) {
	if size <= 0 {
		size = 1
	}
	bundles, err := lru.New[cacheKey, *Bundle](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle cache: %w", err)
	}
	return &Cache{bundles: bundles, logger: logger}, nil
}

// Get returns the bundle at path, loading it on a miss.
func (c *Cache) Get(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		// let Load produce the typed error
		return Load(path)
	}
	key := cacheKey{path: path, modTime: info.ModTime().UnixNano(), size: info.Size()}

	if b, ok := c.bundles.Get(key); ok {
		c.record(true)
		c.logger.WithField("path", path).Debug("Model bundle cache hit")
		return b, nil
	}
	c.record(false)

	b, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.bundles.Add(key, b)
	c.logger.WithFields(logrus.Fields{
		"path":   path,
		"trees":  len(b.Forest.Trees),
		"run_id": b.RunID,
	}).Debug("Model bundle loaded")
	return b, nil
}

// Purge drops every cached bundle.
func (c *Cache) Purge() {
	c.bundles.Purge()
}

// Len returns the number of cached bundles.
func (c *Cache) Len() int {
	return c.bundles.Len()
}

// Stats returns a snapshot of the hit counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) record(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}
