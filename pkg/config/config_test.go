package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.K1 != 1.5 || cfg.Index.B != 0.75 {
		t.Errorf("expected k1=1.5 b=0.75, got k1=%v b=%v", cfg.Index.K1, cfg.Index.B)
	}
	if cfg.Index.Mode != "english" {
		t.Errorf("expected english mode, got %q", cfg.Index.Mode)
	}
	if cfg.Snapshot.Format != "binary" {
		t.Errorf("expected binary snapshot format, got %q", cfg.Snapshot.Format)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25.yaml")
	yamlDoc := `
index:
  mode: chinese
  k1: 1.2
tokenizer:
  chineseHMM: false
snapshot:
  format: json
  watchDebounce: 2s
search:
  defaultLimit: 5
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BM25_INDEX_B", "0.5")
	t.Setenv("BM25_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Index.Mode != "chinese" {
		t.Errorf("mode = %q, want chinese", cfg.Index.Mode)
	}
	if cfg.Index.K1 != 1.2 {
		t.Errorf("k1 = %v, want 1.2", cfg.Index.K1)
	}
	if cfg.Index.B != 0.5 {
		t.Errorf("b = %v, want 0.5 from env", cfg.Index.B)
	}
	if cfg.Tokenizer.ChineseHMM {
		t.Error("chineseHMM should be disabled by file")
	}
	if cfg.Snapshot.WatchDebounce != 2*time.Second {
		t.Errorf("watchDebounce = %v, want 2s", cfg.Snapshot.WatchDebounce)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Search.MaxResults != 100 {
		t.Errorf("unset fields should keep defaults, maxResults = %d", cfg.Search.MaxResults)
	}
}

func TestValidateRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative k1", func(c *Config) { c.Index.K1 = -1 }},
		{"b above one", func(c *Config) { c.Index.B = 1.5 }},
		{"empty mode", func(c *Config) { c.Index.Mode = "" }},
		{"zero limit", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"unknown backend", func(c *Config) { c.Snapshot.Backend = "s3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
