package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llmserve/internal/common/fsutil"
)

// Config holds runtime parameters for the service. It is read once at
// startup and passed down explicitly.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`

	Threads       int     `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize   int     `json:"context_size" yaml:"context_size" toml:"context_size"`
	BatchSize     int     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP          float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	RepeatPenalty float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	// Temperature is a pointer so an explicit 0 (greedy) survives defaults.
	Temperature *float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	RepeatLastN int      `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
	NumPredict  int      `json:"num_predict" yaml:"num_predict" toml:"num_predict"`
	Seed        int64    `json:"seed" yaml:"seed" toml:"seed"`
	Float16     bool     `json:"float16" yaml:"float16" toml:"float16"`

	RestorePrompt  string `json:"restore_prompt" yaml:"restore_prompt" toml:"restore_prompt"`
	PollIntervalMs int    `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	InferTimeoutSeconds int64    `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`
	MaxBodyBytes        int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled         bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Backends.
const (
	BackendLlama = "llama"
	BackendToy   = "toy"
)

// Defaults.
const (
	DefaultAddr          = ":8080"
	DefaultContextSize   = 2048
	DefaultBatchSize     = 8
	DefaultTopK          = 40
	DefaultTopP          = 0.95
	DefaultRepeatPenalty = 1.30
	DefaultTemperature   = 0.80
	DefaultRepeatLastN   = 64
	DefaultMaxBodyBytes  = 1 << 20
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills every unspecified field.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Backend == "" {
		c.Backend = BackendLlama
	}
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.ContextSize <= 0 {
		c.ContextSize = DefaultContextSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.TopP <= 0 {
		c.TopP = DefaultTopP
	}
	if c.RepeatPenalty <= 0 {
		c.RepeatPenalty = DefaultRepeatPenalty
	}
	if c.Temperature == nil {
		t := float32(DefaultTemperature)
		c.Temperature = &t
	}
	if c.RepeatLastN <= 0 {
		c.RepeatLastN = DefaultRepeatLastN
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Validate checks the config after ApplyDefaults and expands '~' in paths.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLlama, BackendToy:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLlama, BackendToy)
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return errors.New("model_path is required")
	}
	p, err := fsutil.RegularFile(c.ModelPath)
	if err != nil {
		return fmt.Errorf("model_path: %w", err)
	}
	c.ModelPath = p
	if c.RestorePrompt != "" {
		p, err := fsutil.RegularFile(c.RestorePrompt)
		if err != nil {
			return fmt.Errorf("restore_prompt: %w", err)
		}
		c.RestorePrompt = p
	}
	if c.TopP > 1 {
		return fmt.Errorf("top_p must be in (0,1], got %v", c.TopP)
	}
	if c.Temperature != nil && *c.Temperature < 0 {
		return fmt.Errorf("temperature must not be negative, got %v", *c.Temperature)
	}
	if c.NumPredict < 0 || c.PollIntervalMs < 0 || c.InferTimeoutSeconds < 0 {
		return errors.New("num_predict, poll_interval_ms and infer_timeout_seconds must not be negative")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
