package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingValkeyAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = []string{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing valkey addrs")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "memcached"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	expected := `database.driver must be "valkey" or "redis", got "memcached"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"metric", func(c *Config) { c.Index.Metric = "HAMMING" }, "index.metric"},
		{"top_k", func(c *Config) { c.Search.DefaultTopK = 2000 }, "default_top_k"},
		{"page_size", func(c *Config) { c.Search.MaxPageSize = 10 }, "default_page_size"},
		{"embed batch", func(c *Config) { c.Ingest.EmbedBatchSize = 1000 }, "embed_batch_size"},
		{"duplicate field", func(c *Config) {
			c.Index.TagFields = []string{"location"}
			c.Index.NumericFields = []string{"location"}
		}, "declared twice"},
		{"empty field", func(c *Config) { c.Index.TagFields = []string{""} }, "non-empty"},
		{"reserved field", func(c *Config) { c.Index.TagFields = []string{"namespace"} }, "reserved"},
		{"budget action", func(c *Config) { c.Embedding.Budget.Action = "block" }, "embedding.budget.action"},
		{"negative budget", func(c *Config) { c.Embedding.Budget.DailyTokenLimit = -1 }, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.Driver != "valkey" {
		t.Errorf("expected Driver=valkey, got %q", cfg.Database.Driver)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Storage.KeyPrefix != "profdex:" {
		t.Errorf("expected KeyPrefix='profdex:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.LocalCacheSize != 4096 {
		t.Errorf("expected LocalCacheSize=4096, got %d", cfg.Embedding.LocalCacheSize)
	}
	if cfg.Index.Name != "profiles" || cfg.Index.Metric != "COSINE" {
		t.Errorf("unexpected index defaults: %+v", cfg.Index)
	}
	if cfg.Index.HNSWM != 16 || cfg.Index.HNSWEFConstruct != 200 {
		t.Errorf("unexpected HNSW defaults: %+v", cfg.Index)
	}

	s := cfg.Search
	if s.ChunkSize != 10 || s.PoolSize != 10 {
		t.Errorf("expected chunk/pool size 10/10, got %d/%d", s.ChunkSize, s.PoolSize)
	}
	if s.ChunkTimeoutSec != 30 || s.QueryTimeoutSec != 60 {
		t.Errorf("expected timeouts 30/60, got %d/%d", s.ChunkTimeoutSec, s.QueryTimeoutSec)
	}
	if s.FallbackScore == nil || *s.FallbackScore != -1 {
		t.Errorf("expected FallbackScore=-1, got %v", s.FallbackScore)
	}
	if s.FallbackScanLimit != 2000 || s.FallbackSimilarity != -1 {
		t.Errorf("unexpected fallback defaults: %+v", s)
	}
	if s.DefaultTopK != 100 || s.MaxTopK != 1000 {
		t.Errorf("expected top_k 100/1000, got %d/%d", s.DefaultTopK, s.MaxTopK)
	}
	if s.DefaultPageSize != 20 || s.MaxPageSize != 1000 {
		t.Errorf("expected page size 20/1000, got %d/%d", s.DefaultPageSize, s.MaxPageSize)
	}
	if cfg.Ingest.MaxBatchSize != 500 || cfg.Ingest.EmbedBatchSize != 64 {
		t.Errorf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	zero := 0.0
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Index:    IndexConfig{Name: "people", HNSWM: 32, HNSWEFConstruct: 400},
		Storage:  StorageConfig{KeyPrefix: "custom:"},
		Search:   SearchConfig{ChunkSize: 5, FallbackScore: &zero},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Index.HNSWM != 32 || cfg.Index.Name != "people" {
		t.Errorf("index overridden: %+v", cfg.Index)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Search.ChunkSize != 5 {
		t.Errorf("expected ChunkSize=5, got %d", cfg.Search.ChunkSize)
	}
	if *cfg.Search.FallbackScore != 0 {
		t.Errorf("explicit zero fallback score overridden: %v", *cfg.Search.FallbackScore)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("PROFDEX_TEST_KEY", "sk-test")

	data := []byte(`
http:
  port: ${PROFDEX_TEST_PORT:-9090}
database:
  addrs: ["localhost:6379"]
embedding:
  api_key: ${PROFDEX_TEST_KEY}
index:
  tag_fields: [location, seniority]
  numeric_fields: [years]
search:
  fallback_score: -2
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("expected api key from env, got %q", cfg.Embedding.APIKey)
	}
	if len(cfg.Index.TagFields) != 2 || cfg.Index.NumericFields[0] != "years" {
		t.Errorf("unexpected filter fields: %+v", cfg.Index)
	}
	if *cfg.Search.FallbackScore != -2 {
		t.Errorf("expected fallback score -2, got %v", *cfg.Search.FallbackScore)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Fatal("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Fatal("expected validation error for missing addrs")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("PROFDEX_SET", "value")

	got := string(expandEnvVars([]byte("a=${PROFDEX_SET} b=${PROFDEX_UNSET:-fallback} c=${PROFDEX_UNSET}")))
	want := "a=value b=fallback c="
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
