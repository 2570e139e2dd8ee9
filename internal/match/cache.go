package match

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// compositeAlgorithm marks cache entries scored by the current
// composite model. Entries without the marker come from the older
// single-signal matcher and are migrated on load.
const compositeAlgorithm = "composite"

// CacheEntry is a confident match persisted for reuse.
type CacheEntry struct {
	MatchID   string    `json:"match_id"`
	Score     float64   `json:"score"`
	Algorithm string    `json:"algorithm,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache persists confident matches keyed by normalized "artist:title".
type Cache struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewCache creates a match cache backed by the given file path.
func NewCache(path string, logger *log.Logger) *Cache {
	return &Cache{path: path, logger: logger}
}

// load reads and migrates the cache file. Legacy entries scored by the
// old single-signal matcher are kept only when they would also clear
// the current acceptance threshold; the rest are dropped so low-quality
// matches are re-resolved under the composite model.
func (c *Cache) load() map[string]CacheEntry {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return make(map[string]CacheEntry)
	}

	var entries map[string]CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("match cache is corrupt, starting fresh", "path", c.path, "error", err)
		return make(map[string]CacheEntry)
	}

	migrated := make(map[string]CacheEntry, len(entries))
	dropped := 0
	for key, entry := range entries {
		if entry.Algorithm != compositeAlgorithm {
			if entry.Score < AcceptThreshold {
				dropped++
				continue
			}
			entry.Algorithm = compositeAlgorithm
		}
		migrated[key] = entry
	}
	if dropped > 0 {
		c.logger.Info("dropped legacy match cache entries below acceptance", "count", dropped)
	}
	return migrated
}

func (c *Cache) save(entries map[string]CacheEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode match cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write match cache: %w", err)
	}
	return nil
}

// Get returns the cached entry for a key, if present.
func (c *Cache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.load()[key]
	return entry, ok
}

// Put stores a confident match under the given key.
func (c *Cache) Put(key, matchID string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load()
	entries[key] = CacheEntry{
		MatchID:   matchID,
		Score:     score,
		Algorithm: compositeAlgorithm,
		Timestamp: time.Now(),
	}
	return c.save(entries)
}

// Len reports the number of cached matches.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.load())
}

// Clear removes the cache file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear match cache: %w", err)
	}
	c.logger.Info("match cache cleared", "path", c.path)
	return nil
}

// RetryEntry is a low-confidence resolution queued for later review.
type RetryEntry struct {
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

// RetryQueue persists low-confidence resolutions so they can be
// revisited manually or after the candidate pool improves.
type RetryQueue struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewRetryQueue creates a retry queue backed by the given file path.
func NewRetryQueue(path string, logger *log.Logger) *RetryQueue {
	return &RetryQueue{path: path, logger: logger}
}

func (q *RetryQueue) load() map[string]RetryEntry {
	data, err := os.ReadFile(q.path)
	if err != nil {
		return make(map[string]RetryEntry)
	}

	var entries map[string]RetryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		q.logger.Warn("retry queue is corrupt, starting fresh", "path", q.path, "error", err)
		return make(map[string]RetryEntry)
	}
	return entries
}

func (q *RetryQueue) save(entries map[string]RetryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode retry queue: %w", err)
	}
	if err := os.WriteFile(q.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write retry queue: %w", err)
	}
	return nil
}

// Enqueue records a low-confidence resolution, bumping the attempt
// counter when the key is already queued.
func (q *RetryQueue) Enqueue(key, title, artist string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.load()
	entry, ok := entries[key]
	if !ok {
		entry = RetryEntry{Title: title, Artist: artist}
	}
	entry.Attempts++
	entry.LastAttempt = time.Now()
	entries[key] = entry

	return q.save(entries)
}

// Entries returns a copy of the queued entries keyed by cache key.
func (q *RetryQueue) Entries() map[string]RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.load()
	out := make(map[string]RetryEntry, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out
}

// Len reports the number of queued entries.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load())
}

// Clear removes the retry queue file.
func (q *RetryQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.Remove(q.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear retry queue: %w", err)
	}
	q.logger.Info("retry queue cleared", "path", q.path)
	return nil
}
