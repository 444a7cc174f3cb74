// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Index, Tokenizer, Snapshot, Search, Server, Redis, Postgres,
// Kafka, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IndexConfig controls how an index is built: the language mode recorded in
// the index, the BM25 parameters, and build-time parallelism.
type IndexConfig struct {
	Mode        string  `yaml:"mode" env:"BM25_INDEX_MODE"`
	K1          float64 `yaml:"k1" env:"BM25_INDEX_K1"`
	B           float64 `yaml:"b" env:"BM25_INDEX_B"`
	Workers     int     `yaml:"workers" env:"BM25_INDEX_WORKERS"`
	Fingerprint bool    `yaml:"fingerprint" env:"BM25_INDEX_FINGERPRINT"`
}

// TokenizerConfig controls normalisation, stop-word removal, stemming and
// Chinese segmentation.
type TokenizerConfig struct {
	MinTokenLength   int    `yaml:"minTokenLength" env:"BM25_TOKENIZER_MIN_TOKEN_LENGTH"`
	Stem             bool   `yaml:"stem" env:"BM25_TOKENIZER_STEM"`
	StopWords        bool   `yaml:"stopWords" env:"BM25_TOKENIZER_STOP_WORDS"`
	ChineseStopWords bool   `yaml:"chineseStopWords" env:"BM25_TOKENIZER_CHINESE_STOP_WORDS"`
	ChineseDict      string `yaml:"chineseDict" env:"BM25_TOKENIZER_CHINESE_DICT"`
	ChineseHMM       bool   `yaml:"chineseHMM" env:"BM25_TOKENIZER_CHINESE_HMM"`
}

// SnapshotConfig selects the persisted encoding and the durable store that
// holds snapshots.
type SnapshotConfig struct {
	Format        string        `yaml:"format" env:"BM25_SNAPSHOT_FORMAT"`
	Compression   string        `yaml:"compression" env:"BM25_SNAPSHOT_COMPRESSION"`
	Backend       string        `yaml:"backend" env:"BM25_SNAPSHOT_BACKEND"`
	Dir           string        `yaml:"dir" env:"BM25_SNAPSHOT_DIR"`
	Key           string        `yaml:"key" env:"BM25_SNAPSHOT_KEY"`
	SQLitePath    string        `yaml:"sqlitePath" env:"BM25_SNAPSHOT_SQLITE_PATH"`
	CorpusPath    string        `yaml:"corpusPath" env:"BM25_SNAPSHOT_CORPUS_PATH"`
	Watch         bool          `yaml:"watch" env:"BM25_SNAPSHOT_WATCH"`
	WatchDebounce time.Duration `yaml:"watchDebounce" env:"BM25_SNAPSHOT_WATCH_DEBOUNCE"`
	// StrictCorpus rejects a corpus that does not match the loaded index.
	// When false a mismatch is logged and the corpus is used for display only.
	StrictCorpus bool `yaml:"strictCorpus" env:"BM25_SNAPSHOT_STRICT_CORPUS"`
}

// SearchConfig controls query limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit" env:"BM25_SEARCH_DEFAULT_LIMIT"`
	MaxResults   int `yaml:"maxResults" env:"BM25_SEARCH_MAX_RESULTS"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"BM25_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"BM25_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"BM25_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"BM25_SERVER_SHUTDOWN_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" env:"BM25_POSTGRES_HOST"`
	Port            int           `yaml:"port" env:"BM25_POSTGRES_PORT"`
	Database        string        `yaml:"database" env:"BM25_POSTGRES_DATABASE"`
	User            string        `yaml:"user" env:"BM25_POSTGRES_USER"`
	Password        string        `yaml:"password" env:"BM25_POSTGRES_PASSWORD"`
	SSLMode         string        `yaml:"sslMode" env:"BM25_POSTGRES_SSLMODE"`
	MaxOpenConns    int           `yaml:"maxOpenConns" env:"BM25_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" env:"BM25_POSTGRES_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" env:"BM25_POSTGRES_CONN_MAX_LIFETIME"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for snapshot events.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled" env:"BM25_KAFKA_ENABLED"`
	Brokers       []string `yaml:"brokers" env:"BM25_KAFKA_BROKERS" envSeparator:","`
	ConsumerGroup string   `yaml:"consumerGroup" env:"BM25_KAFKA_CONSUMER_GROUP"`
	SnapshotTopic string   `yaml:"snapshotTopic" env:"BM25_KAFKA_SNAPSHOT_TOPIC"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" env:"BM25_REDIS_ENABLED"`
	Addr     string        `yaml:"addr" env:"BM25_REDIS_ADDR"`
	Password string        `yaml:"password" env:"BM25_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"BM25_REDIS_DB"`
	PoolSize int           `yaml:"poolSize" env:"BM25_REDIS_POOL_SIZE"`
	CacheTTL time.Duration `yaml:"cacheTTL" env:"BM25_REDIS_CACHE_TTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BM25_LOGGING_LEVEL"`
	Format string `yaml:"format" env:"BM25_LOGGING_FORMAT"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"BM25_METRICS_ENABLED"`
	Port    int  `yaml:"port" env:"BM25_METRICS_PORT"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values and rejects settings the engine cannot honour.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Mode:        "english",
			K1:          1.5,
			B:           0.75,
			Workers:     4,
			Fingerprint: true,
		},
		Tokenizer: TokenizerConfig{
			MinTokenLength: 2,
			Stem:           true,
			StopWords:      true,
			ChineseHMM:     true,
		},
		Snapshot: SnapshotConfig{
			Format:        "binary",
			Compression:   "zstd",
			Backend:       "file",
			Dir:           "data/snapshots",
			Key:           "corpus",
			SQLitePath:    "data/snapshots.db",
			WatchDebounce: 500 * time.Millisecond,
			StrictCorpus:  true,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   100,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bm25",
			User:            "bm25",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bm25-searcher",
			SnapshotTopic: "bm25.snapshots",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate checks cross-field constraints that YAML and env decoding cannot.
func (c *Config) Validate() error {
	if c.Index.Mode == "" {
		return fmt.Errorf("index.mode must not be empty")
	}
	if c.Index.K1 < 0 {
		return fmt.Errorf("index.k1 must be non-negative, got %v", c.Index.K1)
	}
	if c.Index.B < 0 || c.Index.B > 1 {
		return fmt.Errorf("index.b must be within [0, 1], got %v", c.Index.B)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.maxResults (%d) must be >= search.defaultLimit (%d)",
			c.Search.MaxResults, c.Search.DefaultLimit)
	}
	switch c.Snapshot.Backend {
	case "file", "redis", "postgres", "sqlite":
	default:
		return fmt.Errorf("snapshot.backend %q is not one of file, redis, postgres, sqlite", c.Snapshot.Backend)
	}
	return nil
}
