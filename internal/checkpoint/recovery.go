package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// CachedStem is one recovery cache entry. FileExists reflects the state
// at cache time; lookups re-check the filesystem before trusting it.
type CachedStem struct {
	FilePath   string    `json:"file_path"`
	CachedAt   time.Time `json:"cached_at"`
	FileExists bool      `json:"file_exists"`
}

// RecoveryCache remembers stem files produced by earlier runs so the
// pipeline can skip regeneration after a restart.
type RecoveryCache struct {
	mu     sync.Mutex
	path   string
	logger *log.Logger
}

// NewRecoveryCache creates a recovery cache backed by the given file path.
func NewRecoveryCache(path string, logger *log.Logger) *RecoveryCache {
	return &RecoveryCache{path: path, logger: logger}
}

func (c *RecoveryCache) load() map[string]CachedStem {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return make(map[string]CachedStem)
	}

	var entries map[string]CachedStem
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("recovery cache is corrupt, starting fresh", "path", c.path, "error", err)
		return make(map[string]CachedStem)
	}
	return entries
}

func (c *RecoveryCache) save(entries map[string]CachedStem) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recovery cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recovery cache: %w", err)
	}
	return nil
}

// CacheStemFile records a stem file under its stem key.
func (c *RecoveryCache) CacheStemFile(stemKey, filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.load()
	_, statErr := os.Stat(filePath)
	entries[stemKey] = CachedStem{
		FilePath:   filePath,
		CachedAt:   time.Now(),
		FileExists: statErr == nil,
	}

	if err := c.save(entries); err != nil {
		return err
	}
	c.logger.Debug("stem file cached", "stem", stemKey, "path", filePath)
	return nil
}

// CachedStemPath returns the cached file path for a stem key.
// The hit is only valid while the backing file still exists.
func (c *RecoveryCache) CachedStemPath(stemKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.load()[stemKey]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(entry.FilePath); err != nil {
		return "", false
	}
	return entry.FilePath, true
}

// Len reports the number of cached entries, existing or not.
func (c *RecoveryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.load())
}

// Clear removes the recovery cache file.
func (c *RecoveryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear recovery cache: %w", err)
	}
	c.logger.Info("recovery cache cleared", "path", c.path)
	return nil
}

// RecoverStemDir looks for an existing separation output directory for
// the given universal ID under any of the configured models, checking
// both the original and prepared basenames.
func RecoverStemDir(separatedRoot, universalID string, models []string) (string, bool) {
	for _, model := range models {
		for _, base := range []string{universalID, universalID + "__prep"} {
			dir := filepath.Join(separatedRoot, model, base)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				return dir, true
			}
		}
	}
	return "", false
}
