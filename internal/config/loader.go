package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"npud/internal/sampler"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr                = "127.0.0.1:11434"
	DefaultModelsDir           = "~/.npud/models"
	DefaultModel               = "llama3.2:1b"
	DefaultDriver              = "xrt"
	DefaultMaxBodyBytes  int64 = 1 << 20
	DefaultStreamTimeout       = 5 * time.Minute
)

// CORS configures cross-origin access to the HTTP API.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Catalog is a model list file; without one, ModelsDir is scanned.
	Catalog      string `json:"catalog" yaml:"catalog" toml:"catalog"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	// Driver selects the accelerator backend: "xrt" or "sim".
	Driver   string `json:"driver" yaml:"driver" toml:"driver"`
	DeviceID int    `json:"device_id" yaml:"device_id" toml:"device_id"`
	// MaxContext overrides the context length of every model when > 0.
	MaxContext int `json:"max_context" yaml:"max_context" toml:"max_context"`
	// SystemPrompt is appended to the built-in system prompt.
	SystemPrompt       string          `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
	MaxBodyBytes       int64           `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	StreamWriteTimeout Duration        `json:"stream_write_timeout" yaml:"stream_write_timeout" toml:"stream_write_timeout"`
	Preload            bool            `json:"preload" yaml:"preload" toml:"preload"`
	CORS               CORS            `json:"cors" yaml:"cors" toml:"cors"`
	Sampler            *sampler.Config `json:"sampler,omitempty" yaml:"sampler,omitempty" toml:"sampler,omitempty"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NPUD_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("NPUD_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("NPUD_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := getenv("NPUD_CATALOG"); v != "" {
		c.Catalog = v
	}
	if v := getenv("NPUD_DRIVER"); v != "" {
		c.Driver = v
	}
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.StreamWriteTimeout <= 0 {
		c.StreamWriteTimeout = Duration(DefaultStreamTimeout)
	}
	if c.Sampler == nil {
		d := sampler.DefaultConfig()
		c.Sampler = &d
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Driver {
	case "xrt", "sim":
	default:
		return fmt.Errorf("config: unknown driver %q (want xrt or sim)", c.Driver)
	}
	if c.MaxContext < 0 {
		return fmt.Errorf("config: max_context must be >= 0")
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("config: device_id must be >= 0")
	}
	return nil
}
