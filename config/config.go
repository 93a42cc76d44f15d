package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/ann"
)

// Config is the complete engine configuration.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Index     IndexConfig     `koanf:"index"`
	Ranking   RankingConfig   `koanf:"ranking"`
	Service   ServiceConfig   `koanf:"service"`
	HTTP      HTTPConfig      `koanf:"http"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Log       LogConfig       `koanf:"log"`
}

// StoreConfig locates the metadata store.
type StoreConfig struct {
	Path     string `koanf:"path" validate:"required_without=InMemory"`
	InMemory bool   `koanf:"in_memory"` // Volatile store, for demos and tests
}

// IndexConfig holds vector index parameters.
type IndexConfig struct {
	Path           string `koanf:"path" validate:"required"`
	Dim            int    `koanf:"dim" validate:"gt=0"`
	Capacity       int    `koanf:"capacity" validate:"gt=0"`
	M              int    `koanf:"m" validate:"gte=2"`
	EfConstruction int    `koanf:"ef_construction" validate:"gt=0"`
	EfSearch       int    `koanf:"ef_search" validate:"gt=0"`
	Compression    string `koanf:"compression" validate:"oneof=none zstd lz4"`
	Seed           uint64 `koanf:"seed"` // 0 picks a random seed
}

// RankingConfig holds scoring pipeline parameters.
type RankingConfig struct {
	Alpha        float64 `koanf:"alpha" validate:"gte=0,lte=1"`
	RecallMargin int     `koanf:"recall_margin" validate:"gte=0"`
	RRFK         int     `koanf:"rrf_k" validate:"gt=0"`
	DefaultK     int     `koanf:"default_k" validate:"gt=0"`
	MaxK         int     `koanf:"max_k" validate:"gtefield=DefaultK"`
}

// ServiceConfig holds request execution and lifecycle parameters.
type ServiceConfig struct {
	Workers          int           `koanf:"workers" validate:"gte=0"`    // 0 = runtime.NumCPU()
	RateLimit        float64       `koanf:"rate_limit" validate:"gte=0"` // Requests per second, 0 = unlimited
	RateBurst        int           `koanf:"rate_burst" validate:"gte=0"`
	DrainTimeout     time.Duration `koanf:"drain_timeout" validate:"gt=0"`
	HydrateBatchSize int           `koanf:"hydrate_batch_size" validate:"gt=0"`
	MaxRetries       int           `koanf:"max_retries" validate:"gt=0"`
	RetryDelay       time.Duration `koanf:"retry_delay" validate:"gte=0"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `koanf:"cors_origins" validate:"dive,required"` // Empty disables CORS
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `koanf:"provider" validate:"oneof=anchor openai"`
	Host      string `koanf:"host"`
	Model     string `koanf:"model"`
	Token     string `koanf:"token"`
	BatchSize int    `koanf:"batch_size" validate:"gt=0"`
	Workers   int    `koanf:"workers" validate:"gte=0"` // 0 = runtime.NumCPU() / 2
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Store: StoreConfig{
			Path: "data/store",
		},
		Index: IndexConfig{
			Path:           "data/items.idx",
			Dim:            64,
			Capacity:       10000,
			M:              ann.DefaultM,
			EfConstruction: ann.DefaultEfConstruction,
			EfSearch:       50,
			Compression:    "zstd",
		},
		Ranking: RankingConfig{
			Alpha:        0.7,
			RecallMargin: 40,
			RRFK:         60,
			DefaultK:     10,
			MaxK:         100,
		},
		Service: ServiceConfig{
			Workers:          0,
			RateLimit:        0,
			RateBurst:        50,
			DrainTimeout:     10 * time.Second,
			HydrateBatchSize: 500,
			MaxRetries:       3,
			RetryDelay:       200 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  ai.ProviderAnchor,
			Host:      aiDefaults.EmbeddingHost,
			Model:     aiDefaults.EmbeddingModel,
			Token:     aiDefaults.Token,
			BatchSize: 32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-section rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Index.EfSearch > c.Index.Capacity {
		return fmt.Errorf("%w: index.ef_search %d exceeds index.capacity %d", ErrInvalidConfig, c.Index.EfSearch, c.Index.Capacity)
	}
	if err := c.AI().Validate(); err != nil {
		return fmt.Errorf("%w: embedding: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AI returns the embedding provider configuration.
func (c *Config) AI() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithProvider(c.Embedding.Provider),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithToken(c.Embedding.Token),
		ai.WithDimensions(c.Index.Dim),
	)
	cfg.Normalize()
	return cfg
}

// Compression returns the parsed index compression codec.
func (c *Config) Compression() ann.Compression {
	codec, err := ann.ParseCompression(c.Index.Compression)
	if err != nil {
		return ann.CompressionZstd
	}
	return codec
}
