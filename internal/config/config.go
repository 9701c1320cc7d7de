package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the profdex API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds the embedding provider and cache settings.
type EmbeddingConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	Instruction    string `yaml:"instruction"`
	LocalCacheSize int    `yaml:"local_cache_size"`

	Budget BudgetConfig `yaml:"budget"`
}

// BudgetConfig caps embedding token spend. Zero limits disable the budget.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // "warn" (default) or "reject"
}

// GenerationConfig holds the chat completion provider used for rewriting and scoring.
type GenerationConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	MaxRetries   int     `yaml:"max_retries"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Name            string   `yaml:"name"`
	Metric          string   `yaml:"metric"` // COSINE, L2, IP
	HNSWM           int      `yaml:"hnsw_m"`
	HNSWEFConstruct int      `yaml:"hnsw_ef_construction"`
	TagFields       []string `yaml:"tag_fields"`
	NumericFields   []string `yaml:"numeric_fields"`
}

// SearchConfig tunes the retrieve/rerank pipeline.
type SearchConfig struct {
	ChunkSize          int      `yaml:"chunk_size"`
	PoolSize           int      `yaml:"pool_size"`
	ChunkTimeoutSec    int      `yaml:"chunk_timeout_sec"`
	QueryTimeoutSec    int      `yaml:"query_timeout_sec"`
	RewriteTimeoutSec  int      `yaml:"rewrite_timeout_sec"`
	FallbackScore      *float64 `yaml:"fallback_score"`
	FallbackScanLimit  int      `yaml:"fallback_scan_limit"`
	FallbackSimilarity float64  `yaml:"fallback_similarity"`
	DefaultTopK        int      `yaml:"default_top_k"`
	MaxTopK            int      `yaml:"max_top_k"`
	DefaultPageSize    int      `yaml:"default_page_size"`
	MaxPageSize        int      `yaml:"max_page_size"`
	RewriteDefault     bool     `yaml:"rewrite_default"`
}

// IngestConfig holds ingestion batch settings.
type IngestConfig struct {
	MaxBatchSize   int `yaml:"max_batch_size"`
	EmbedBatchSize int `yaml:"embed_batch_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes, expanding ${VAR} references and applying defaults.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// a full search may run for query_timeout_sec
		c.HTTP.WriteTimeoutSec = 75
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "profdex:"
	}
	c.applyEmbeddingDefaults()
	c.applyIndexDefaults()
	c.applySearchDefaults()
	if c.Ingest.MaxBatchSize <= 0 {
		c.Ingest.MaxBatchSize = 500
	}
	if c.Ingest.EmbedBatchSize <= 0 {
		c.Ingest.EmbedBatchSize = 64
	}
}

func (c *Config) applyEmbeddingDefaults() {
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.LocalCacheSize == 0 {
		c.Embedding.LocalCacheSize = 4096
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-4o-mini"
	}
	if c.Generation.MaxRetries < 0 {
		c.Generation.MaxRetries = 0
	}
}

func (c *Config) applyIndexDefaults() {
	if c.Index.Name == "" {
		c.Index.Name = "profiles"
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "COSINE"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
}

func (c *Config) applySearchDefaults() {
	s := &c.Search
	if s.ChunkSize <= 0 {
		s.ChunkSize = 10
	}
	if s.PoolSize <= 0 {
		s.PoolSize = 10
	}
	if s.ChunkTimeoutSec <= 0 {
		s.ChunkTimeoutSec = 30
	}
	if s.QueryTimeoutSec <= 0 {
		s.QueryTimeoutSec = 60
	}
	if s.RewriteTimeoutSec <= 0 {
		s.RewriteTimeoutSec = 10
	}
	if s.FallbackScore == nil {
		v := -1.0
		s.FallbackScore = &v
	}
	if s.FallbackScanLimit <= 0 {
		s.FallbackScanLimit = 2000
	}
	if s.FallbackSimilarity >= 0 {
		s.FallbackSimilarity = -1
	}
	if s.DefaultTopK <= 0 {
		s.DefaultTopK = 100
	}
	if s.MaxTopK <= 0 {
		s.MaxTopK = 1000
	}
	if s.DefaultPageSize <= 0 {
		s.DefaultPageSize = 20
	}
	if s.MaxPageSize <= 0 {
		s.MaxPageSize = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch strings.ToUpper(c.Index.Metric) {
	case "COSINE", "L2", "IP":
	default:
		return fmt.Errorf("index.metric must be COSINE, L2 or IP, got %q", c.Index.Metric)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action)
	}
	if c.Embedding.Budget.DailyTokenLimit < 0 || c.Embedding.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("embedding.budget token limits must not be negative")
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k (%d) exceeds search.max_top_k (%d)",
			c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size (%d) exceeds search.max_page_size (%d)",
			c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	if c.Ingest.EmbedBatchSize > c.Ingest.MaxBatchSize {
		return fmt.Errorf("ingest.embed_batch_size (%d) exceeds ingest.max_batch_size (%d)",
			c.Ingest.EmbedBatchSize, c.Ingest.MaxBatchSize)
	}
	seen := make(map[string]struct{}, len(c.Index.TagFields)+len(c.Index.NumericFields))
	for _, f := range append(append([]string{}, c.Index.TagFields...), c.Index.NumericFields...) {
		if f == "" {
			return fmt.Errorf("index filter field names must be non-empty")
		}
		if f == "namespace" || f == "vector" {
			return fmt.Errorf("index filter field %q is reserved", f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("index filter field %q declared twice", f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
