package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TransformBackend selects which resampling implementation backs the default
// transform engine.
type TransformBackend string

const (
	// BackendDraw uses golang.org/x/image/draw interpolators.
	BackendDraw TransformBackend = "draw"
	// BackendImaging uses github.com/disintegration/imaging filters.
	BackendImaging TransformBackend = "imaging"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Config{} and override only what they need.
type Config struct {
	// Streaming / memory limits for the file entry point.
	MaxImageBytes int64 `yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size"`      // streaming chunk size in bytes; default 32 KiB

	// Transform engine selection.
	Transform TransformBackend `yaml:"transform"` // default: draw
	// Resampler quality for the draw backend: "nearest", "bilinear",
	// "catmullrom".  The imaging backend always uses Lanczos.
	Resampler string `yaml:"resampler"`

	// Logging.
	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		ChunkSize: 32 * 1024,
		Transform: BackendDraw,
		Resampler: "bilinear",
		LogLevel:  "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	switch c.Transform {
	case BackendDraw, BackendImaging:
	default:
		return fmt.Errorf("config: unknown transform backend %q", c.Transform)
	}
	switch c.Resampler {
	case "nearest", "bilinear", "catmullrom":
	default:
		return fmt.Errorf("config: unknown resampler %q", c.Resampler)
	}
	return nil
}

// LoadYAML reads a YAML config file, layering it over Default().
func LoadYAML(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
