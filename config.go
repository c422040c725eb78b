package dalcore

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// MaxParallelism bounds the number of goroutines populating one result.
const MaxParallelism = 8

// Config is the file form of the engine options.
//
// Example:
//
//	logLevel: info
//	parallelism: 4
//	populateDefaults: true
type Config struct {
	LogLevel         string `yaml:"logLevel"`
	Parallelism      int    `yaml:"parallelism"`
	PopulateDefaults bool   `yaml:"populateDefaults"`
}

// LoadConfig decodes a YAML config. An empty document yields the zero Config.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("dalcore: decode config: %w", err)
	}
	if cfg.LogLevel != "" {
		if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
			return Config{}, err
		}
	}
	if cfg.Parallelism < 0 {
		return Config{}, fmt.Errorf("dalcore: parallelism must not be negative, got %d", cfg.Parallelism)
	}
	return cfg, nil
}

// Options control population behaviour of an Engine.
type Options struct {
	// Parallelism is the number of row ranges populated concurrently.
	// Values <= 1 populate sequentially; values above MaxParallelism are clamped.
	Parallelism int
	// PopulateDefaults assigns annotated defaults to properties whose column is
	// absent from the result.
	PopulateDefaults bool
}

// Option mutates Options.
type Option func(*Options)

func WithParallelism(n int) Option {
	return func(o *Options) { o.Parallelism = n }
}

func WithPopulateDefaults(enabled bool) Option {
	return func(o *Options) { o.PopulateDefaults = enabled }
}

// WithConfig applies a loaded Config. A configured log level is applied to
// the package logger.
func WithConfig(cfg Config) Option {
	return func(o *Options) {
		o.Parallelism = cfg.Parallelism
		o.PopulateDefaults = cfg.PopulateDefaults
		if cfg.LogLevel != "" {
			if lv, err := ParseLogLevel(cfg.LogLevel); err == nil {
				SetLogLevel(lv)
			}
		}
	}
}

func (o Options) parallelism() int {
	switch {
	case o.Parallelism <= 1:
		return 1
	case o.Parallelism > MaxParallelism:
		return MaxParallelism
	default:
		return o.Parallelism
	}
}
