package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./stemx.db" {
			t.Errorf("expected database path ./stemx.db, got %s", config.Database.Path)
		}

		if config.Search.ProxyURL != "http://127.0.0.1:8080" {
			t.Errorf("expected search proxy URL http://127.0.0.1:8080, got %s", config.Search.ProxyURL)
		}

		if len(config.Separation.Models) != 3 || config.Separation.Models[0] != "htdemucs_ft" {
			t.Errorf("expected quality-first model chain starting with htdemucs_ft, got %v", config.Separation.Models)
		}

		if config.Separation.MinStemBytes != 102400 {
			t.Errorf("expected min stem size 102400, got %d", config.Separation.MinStemBytes)
		}

		if config.Processing.MaxConcurrent != 2 {
			t.Errorf("expected max_concurrent 2, got %d", config.Processing.MaxConcurrent)
		}

		if config.State.CheckpointFile != "checkpoint.json" {
			t.Errorf("expected checkpoint file checkpoint.json, got %s", config.State.CheckpointFile)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[separation]
models = ["htdemucs"]
device = "cpu"
separated_dir = "out"

[processing]
max_concurrent = 4
start_jitter_seconds = [1.0, 3.0]
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected custom database path, got %s", config.Database.Path)
		}
		if config.Separation.Device != "cpu" {
			t.Errorf("expected device cpu, got %s", config.Separation.Device)
		}
		if len(config.Processing.StartJitterSeconds) != 2 || config.Processing.StartJitterSeconds[1] != 3.0 {
			t.Errorf("expected jitter range [1,3], got %v", config.Processing.StartJitterSeconds)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/config.toml"); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}
