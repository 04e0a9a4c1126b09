// Package config loads the gateway configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultListen    = ":8080"
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 10 * time.Minute
	DefaultTimeout   = 30 * time.Second
	DefaultService   = "fusion"
	DefaultLogLevel  = "info"
)

type Config struct {
	Listen    string    `yaml:"listen" validate:"required,hostname_port"`
	Schema    string    `yaml:"schema" validate:"required"`
	Sources   []Source  `yaml:"sources" validate:"required,min=1,unique=Name,dive"`
	Cache     Cache     `yaml:"cache"`
	Execution Execution `yaml:"execution"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

// Source is a backend GraphQL service named by @source directives.
type Source struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
	// MaxBatchSize caps the operations sent in one request, 0 means unbounded.
	MaxBatchSize int           `yaml:"maxBatchSize" validate:"min=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"min=0"`
}

type Cache struct {
	Disabled bool          `yaml:"disabled"`
	Size     int           `yaml:"size" validate:"min=0"`
	TTL      time.Duration `yaml:"ttl" validate:"min=0"`
}

type Execution struct {
	// MaxConcurrency limits the nodes of one operation running at once, 0 means unbounded.
	MaxConcurrency int  `yaml:"maxConcurrency" validate:"min=0"`
	Trace          bool `yaml:"trace"`
}

type Telemetry struct {
	// Endpoint of the OTLP gRPC collector. Tracing is off when empty.
	Endpoint    string `yaml:"endpoint" validate:"omitempty,hostname_port"`
	Service     string `yaml:"service" validate:"required"`
	Environment string `yaml:"environment"`
}

type Log struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config: %w", err)
	}
	return Parse(bytes.NewReader(b))
}

// Parse decodes a configuration, applies defaults and validates it.
// Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	var c Config

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	c.setDefaults()

	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	for i := range c.Sources {
		if c.Sources[i].Timeout == 0 {
			c.Sources[i].Timeout = DefaultTimeout
		}
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Telemetry.Service == "" {
		c.Telemetry.Service = DefaultService
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// CacheSize is the plan cache size to use, 0 when caching is disabled.
func (c Cache) CacheSize() int {
	if c.Disabled {
		return 0
	}
	return c.Size
}

// Logger builds the zap logger described by l.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level

	return cfg.Build()
}
