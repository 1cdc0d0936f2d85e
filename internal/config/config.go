// Package config loads the ingestion pipeline configuration.
//
// Priority: environment variables > config file > defaults.
// Secrets (API keys, passwords) are read from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// Duration is a time.Duration written as a string in TOML, e.g. "500ms".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full application configuration.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Batch     BatchConfig     `toml:"batch"`
	Chunker   ChunkerConfig   `toml:"chunker"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Cache     CacheConfig     `toml:"cache"`
	Vector    VectorConfig    `toml:"vector"`
	Upload    UploadConfig    `toml:"upload"`
}

type LoggingConfig struct {
	Level    string   `toml:"level" validate:"oneof=debug info warn error"`
	Output   []string `toml:"output" validate:"dive,oneof=console stdout file"`
	FilePath string   `toml:"file_path"`
}

type KafkaConfig struct {
	Brokers         []string `toml:"brokers" validate:"min=1,dive,hostname_port"`
	GroupID         string   `toml:"group_id" validate:"required"`
	BookTopic       string   `toml:"book_topic" validate:"required"`
	ReviewTopic     string   `toml:"review_topic" validate:"required"`
	StartOffset     string   `toml:"start_offset" validate:"oneof=earliest latest"`
	PollTimeout     Duration `toml:"poll_timeout" validate:"gt=0"`
	MaxPollRecords  int      `toml:"max_poll_records" validate:"gt=0"`
	ConnectAttempts int      `toml:"connect_attempts" validate:"gt=0"`
}

// BatchConfig controls consumer flushing.
type BatchConfig struct {
	Size          int      `toml:"size" validate:"gt=0"`
	Timeout       Duration `toml:"timeout" validate:"gt=0"`
	CheckInterval Duration `toml:"check_interval" validate:"gte=0"` // 0 means timeout/5
}

type ChunkerConfig struct {
	Size    int `toml:"size" validate:"gt=0"`
	Overlap int `toml:"overlap" validate:"gte=0"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider     string   `toml:"provider" validate:"oneof=openai ollama gemini"`
	Model        string   `toml:"model"` // empty uses the provider default
	Dimensions   int      `toml:"dimensions" validate:"gt=0"` // must match the model
	BaseURL      string   `toml:"base_url" validate:"omitempty,url"`
	Timeout      Duration `toml:"timeout" validate:"gt=0"`
	MaxBatchSize int      `toml:"max_batch_size" validate:"gt=0"`
	RateLimit    int      `toml:"rate_limit" validate:"gt=0"`
	RatePeriod   Duration `toml:"rate_period" validate:"gt=0"`
	MaxAttempts  int      `toml:"max_attempts" validate:"gt=0"`

	// APIKey comes from SERCHA_EMBEDDING_API_KEY or the provider's usual variable.
	APIKey string `toml:"-"`
}

type CacheConfig struct {
	Backend string       `toml:"backend" validate:"oneof=redis badger none"`
	TTL     Duration     `toml:"ttl" validate:"gt=0"`
	Redis   RedisConfig  `toml:"redis"`
	Badger  BadgerConfig `toml:"badger"`
}

type RedisConfig struct {
	Addr     string   `toml:"addr"`
	DB       int      `toml:"db" validate:"gte=0"`
	Timeout  Duration `toml:"timeout"`
	Password string   `toml:"-"`
}

type BadgerConfig struct {
	Path string `toml:"path"` // empty keeps the cache in memory
}

// VectorConfig selects the index backend and its HNSW parameters.
type VectorConfig struct {
	Backend        string       `toml:"backend" validate:"oneof=milvus sqlite"`
	Collection     string       `toml:"collection" validate:"required,max=255"`
	Metric         string       `toml:"metric"`
	M              int          `toml:"m" validate:"gt=0"`
	EfConstruction int          `toml:"ef_construction" validate:"gt=0"`
	Ef             int          `toml:"ef" validate:"gt=0"`
	TopK           int          `toml:"top_k" validate:"gt=0"`
	Milvus         MilvusConfig `toml:"milvus"`
	SQLite         SQLiteConfig `toml:"sqlite"`
}

type MilvusConfig struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	DBName   string `toml:"db_name"`
	Password string `toml:"-"`
}

type SQLiteConfig struct {
	Path string `toml:"path"` // empty uses ~/.sercha/data/vectors.db
}

// UploadConfig controls the direct upload path and the inbox watcher.
type UploadConfig struct {
	MinTextLength int    `toml:"min_text_length" validate:"gt=0"`
	Source        string `toml:"source" validate:"required"`
	WatchDir      string `toml:"watch_dir"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			GroupID:         "rag-consumer-group",
			BookTopic:       "books.public.books",
			ReviewTopic:     "reviews.books_reviews.reviews",
			StartOffset:     "earliest",
			PollTimeout:     Duration(100 * time.Millisecond),
			MaxPollRecords:  100,
			ConnectAttempts: 10,
		},
		Batch: BatchConfig{
			Size:    50,
			Timeout: Duration(500 * time.Millisecond),
		},
		Chunker: ChunkerConfig{
			Size:    600,
			Overlap: 100,
		},
		Embedding: EmbeddingConfig{
			Provider:     "openai",
			Dimensions:   1536,
			Timeout:      Duration(30 * time.Second),
			MaxBatchSize: 100,
			RateLimit:    50,
			RatePeriod:   Duration(time.Second),
			MaxAttempts:  3,
		},
		Cache: CacheConfig{
			Backend: "redis",
			TTL:     Duration(604800 * time.Second),
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Timeout: Duration(2 * time.Second),
			},
		},
		Vector: VectorConfig{
			Backend:        "milvus",
			Collection:     "book_embeddings",
			Metric:         string(domain.MetricIP),
			M:              16,
			EfConstruction: 200,
			Ef:             64,
			TopK:           5,
			Milvus: MilvusConfig{
				Address: "localhost:19530",
			},
		},
		Upload: UploadConfig{
			MinTextLength: 10,
			Source:        domain.SourcePDF,
		},
	}
}

// DefaultPath returns ~/.sercha/ingest.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ingest.toml"
	}
	return filepath.Join(home, ".sercha", "ingest.toml")
}

// Load reads defaults, then the TOML file at path, then a .env file in the
// working directory, then SERCHA_* environment overrides, and validates the
// result. An empty path loads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: config: %v", domain.ErrInvalidInput, err)
	}

	if c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("%w: config: chunker overlap %d must be smaller than size %d",
			domain.ErrInvalidInput, c.Chunker.Overlap, c.Chunker.Size)
	}
	if _, ok := domain.ParseMetric(c.Vector.Metric); !ok {
		return fmt.Errorf("%w: config: unknown metric %q", domain.ErrInvalidInput, c.Vector.Metric)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("%w: config: cache.redis.addr is required", domain.ErrInvalidInput)
	}
	return nil
}

// applyEnvOverrides applies SERCHA_* environment variables.
func applyEnvOverrides(c *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("SERCHA_LOG_LEVEL", &c.Logging.Level)
	str("SERCHA_LOG_FILE", &c.Logging.FilePath)

	if v := os.Getenv("SERCHA_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("SERCHA_KAFKA_GROUP_ID", &c.Kafka.GroupID)
	str("SERCHA_KAFKA_BOOK_TOPIC", &c.Kafka.BookTopic)
	str("SERCHA_KAFKA_REVIEW_TOPIC", &c.Kafka.ReviewTopic)
	str("SERCHA_KAFKA_START_OFFSET", &c.Kafka.StartOffset)

	str("SERCHA_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("SERCHA_EMBEDDING_MODEL", &c.Embedding.Model)
	str("SERCHA_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	c.Embedding.APIKey = firstEnv("SERCHA_EMBEDDING_API_KEY", providerKeyEnv(c.Embedding.Provider))

	str("SERCHA_CACHE_BACKEND", &c.Cache.Backend)
	str("SERCHA_REDIS_ADDR", &c.Cache.Redis.Addr)
	str("SERCHA_REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("SERCHA_BADGER_PATH", &c.Cache.Badger.Path)

	str("SERCHA_VECTOR_BACKEND", &c.Vector.Backend)
	str("SERCHA_VECTOR_COLLECTION", &c.Vector.Collection)
	str("SERCHA_MILVUS_ADDRESS", &c.Vector.Milvus.Address)
	str("SERCHA_MILVUS_USERNAME", &c.Vector.Milvus.Username)
	str("SERCHA_MILVUS_PASSWORD", &c.Vector.Milvus.Password)
	str("SERCHA_SQLITE_PATH", &c.Vector.SQLite.Path)

	str("SERCHA_UPLOAD_WATCH_DIR", &c.Upload.WatchDir)
}

func providerKeyEnv(provider string) string {
	switch provider {
	case "gemini":
		return "GEMINI_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
