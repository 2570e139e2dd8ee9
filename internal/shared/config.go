package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Catalog    CatalogConfig    `toml:"catalog"`
	Search     SearchConfig     `toml:"search"`
	Analyzer   AnalyzerConfig   `toml:"analyzer"`
	Separation SeparationConfig `toml:"separation"`
	Processing ProcessingConfig `toml:"processing"`
	Database   DatabaseConfig   `toml:"database"`
	State      StateConfig      `toml:"state"`
}

// CatalogConfig contains track metadata provider credentials.
type CatalogConfig struct {
	BaseURL      string `toml:"base_url"`
	TokenURL     string `toml:"token_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// SearchConfig contains candidate provider settings.
type SearchConfig struct {
	ProxyURL      string  `toml:"proxy_url"`
	RateLimit     float64 `toml:"rate_limit"`
	MaxCandidates int     `toml:"max_candidates"`
}

// AnalyzerConfig contains the tempo/key analysis endpoint.
// An empty base URL disables enrichment; tracks proceed without tempo/key.
type AnalyzerConfig struct {
	BaseURL string `toml:"base_url"`
}

// SeparationConfig contains separation tool settings.
//
// Models is the ordered fallback chain, best quality first. Order is
// significant: the dispatcher attempts models exactly in this order.
type SeparationConfig struct {
	Models             []string `toml:"models"`
	Device             string   `toml:"device"`
	Shifts             int      `toml:"shifts"`
	SeparatedDir       string   `toml:"separated_dir"`
	MP3Dir             string   `toml:"mp3_dir"`
	MinStemBytes       int64    `toml:"min_stem_bytes"`
	MinStemSeconds     float64  `toml:"min_stem_seconds"`
	ToolTimeoutSeconds float64  `toml:"tool_timeout_seconds"`
}

// ProcessingConfig contains batch scheduling settings.
//
// The two-element second ranges are sampled uniformly at runtime.
type ProcessingConfig struct {
	MaxConcurrent       int       `toml:"max_concurrent"`
	OutputDir           string    `toml:"output_dir"`
	StartJitterSeconds  []float64 `toml:"start_jitter_seconds"`
	CooldownSeconds     []float64 `toml:"cooldown_seconds"`
	RetryBackoffSeconds []float64 `toml:"retry_backoff_seconds"`
	Channels            []string  `toml:"channels"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StateConfig names the persisted state files (checkpoint document, match
// cache, retry queue, recovery cache).
type StateConfig struct {
	CheckpointFile    string `toml:"checkpoint_file"`
	RecoveryCacheFile string `toml:"recovery_cache_file"`
	MatchCacheFile    string `toml:"match_cache_file"`
	RetryQueueFile    string `toml:"retry_queue_file"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
