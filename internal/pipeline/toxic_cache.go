package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/ScarletRedJoker/Nebula-Command-sub006/internal/models"
)

// toxicCache memoizes a ToxicClassifier decision by exact lowercased text
// for ttl, per spec §4.2 step 4 ("decision cached by exact lowercased text
// for 1h").
type toxicCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]toxicCacheEntry
}

type toxicCacheEntry struct {
	severity models.Severity
	expires  time.Time
}

func newToxicCache(ttl time.Duration) *toxicCache {
	return &toxicCache{ttl: ttl, entries: make(map[string]toxicCacheEntry)}
}

func (c *toxicCache) get(text string) (models.Severity, bool) {
	key := strings.ToLower(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.severity, true
}

func (c *toxicCache) put(text string, sev models.Severity) {
	key := strings.ToLower(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = toxicCacheEntry{severity: sev, expires: time.Now().Add(c.ttl)}
}

// sweep drops every entry past its TTL. Entries also expire lazily on get,
// so sweep only matters for keys that are never looked up again (otherwise
// the map grows unbounded on streams with high message churn).
func (c *toxicCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}
