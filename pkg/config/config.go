// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, etc.).
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. When Enabled is false the
// indexer does not announce new blobs and the searcher does not listen for
// them.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexPublished string `yaml:"indexPublished"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

const (
	SourceJSON     = "json"
	SourcePostgres = "postgres"

	StoreFile  = "file"
	StoreRedis = "redis"
)

// IndexerConfig describes where documents come from, how they are tokenized,
// and where the serialized index is stored.
type IndexerConfig struct {
	Source        string   `yaml:"source"`
	SourcePath    string   `yaml:"sourcePath"`
	PostgresQuery string   `yaml:"postgresQuery"`
	IDField       string   `yaml:"idField"`
	PayloadField  string   `yaml:"payloadField"`
	Fields        []string `yaml:"fields"`
	Locales       []string `yaml:"locales"`
	Workers       int      `yaml:"workers"`
	Store         string   `yaml:"store"`
	DataDir       string   `yaml:"dataDir"`
	BlobKey       string   `yaml:"blobKey"`
}

// SearchConfig pins the ranking constants and default query options. Changing
// these alters ranking but not the index format.
type SearchConfig struct {
	Fuzzy         bool               `yaml:"fuzzy"`
	Prefix        bool               `yaml:"prefix"`
	Boost         map[string]float64 `yaml:"boost"`
	Order         string             `yaml:"order"`
	FuzzyRatio    float64            `yaml:"fuzzyRatio"`
	MaxFuzzy      int                `yaml:"maxFuzzy"`
	PrefixWeight  float64            `yaml:"prefixWeight"`
	FuzzyWeight   float64            `yaml:"fuzzyWeight"`
	K1            float64            `yaml:"k1"`
	B             float64            `yaml:"b"`
	D             float64            `yaml:"d"`
	DefaultLimit  int                `yaml:"defaultLimit"`
	MaxResults    int                `yaml:"maxResults"`
	ReloadTimeout time.Duration      `yaml:"reloadTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with defaults for local development. The
// field set, locales and boosts mirror the article site the index serves.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "articles",
			User:            "articles",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "article-search",
			Topics: KafkaTopics{
				IndexPublished: "index.published",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			Source:        SourceJSON,
			SourcePath:    "search-index.json",
			PostgresQuery: "SELECT id, title, abstract, authors, text, html FROM articles ORDER BY position, id",
			IDField:       "id",
			PayloadField:  "html",
			Fields:        []string{"title", "abstract", "authors", "text"},
			Locales:       []string{"en-SG", "en-US"},
			Workers:       4,
			Store:         StoreFile,
			DataDir:       "data",
			BlobKey:       "search-index.bin",
		},
		Search: SearchConfig{
			Fuzzy:  true,
			Prefix: true,
			Boost: map[string]float64{
				"title":    2.0,
				"abstract": 1.5,
				"authors":  0.5,
			},
			Order:         "desc",
			FuzzyRatio:    0.2,
			MaxFuzzy:      6,
			PrefixWeight:  0.375,
			FuzzyWeight:   0.45,
			K1:            1.2,
			B:             0.7,
			D:             0.5,
			DefaultLimit:  0,
			MaxResults:    1000,
			ReloadTimeout: 30 * time.Second,
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

// Validate checks cross-field consistency that YAML decoding cannot express.
func (c *Config) Validate() error {
	switch c.Indexer.Source {
	case SourceJSON, SourcePostgres:
	default:
		return fmt.Errorf("indexer.source must be %q or %q, got %q", SourceJSON, SourcePostgres, c.Indexer.Source)
	}
	switch c.Indexer.Store {
	case StoreFile, StoreRedis:
	default:
		return fmt.Errorf("indexer.store must be %q or %q, got %q", StoreFile, StoreRedis, c.Indexer.Store)
	}
	if len(c.Indexer.Fields) == 0 {
		return fmt.Errorf("indexer.fields must not be empty")
	}
	if len(c.Indexer.Locales) == 0 {
		return fmt.Errorf("indexer.locales must not be empty")
	}
	if c.Indexer.BlobKey == "" {
		return fmt.Errorf("indexer.blobKey must not be empty")
	}
	for field, weight := range c.Search.Boost {
		if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return fmt.Errorf("search.boost.%s must be a finite non-negative number", field)
		}
	}
	if c.Search.Order != "asc" && c.Search.Order != "desc" {
		return fmt.Errorf("search.order must be \"asc\" or \"desc\", got %q", c.Search.Order)
	}
	if c.Search.FuzzyRatio < 0 || c.Search.MaxFuzzy < 0 {
		return fmt.Errorf("search.fuzzyRatio and search.maxFuzzy must not be negative")
	}
	if c.Search.K1 < 0 || c.Search.B < 0 || c.Search.B > 1 || c.Search.D < 0 {
		return fmt.Errorf("search.k1, search.b (0..1) and search.d must be non-negative")
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_SOURCE"); v != "" {
		cfg.Indexer.Source = v
	}
	if v := os.Getenv("SP_INDEXER_SOURCE_PATH"); v != "" {
		cfg.Indexer.SourcePath = v
	}
	if v := os.Getenv("SP_INDEXER_STORE"); v != "" {
		cfg.Indexer.Store = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_LOCALES"); v != "" {
		cfg.Indexer.Locales = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
