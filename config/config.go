// Package config loads easyread settings from an optional YAML file, a
// .env file and EASYREAD_* environment variables, in increasing priority.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/gaurav-prasanna/easyread/core/chunk"
	"github.com/gaurav-prasanna/easyread/core/collect"
	"github.com/gaurav-prasanna/easyread/core/locate"
	"github.com/gaurav-prasanna/easyread/core/rewrite"
)

// DefaultPath is read when no --config flag is given. It may be missing.
const DefaultPath = "easyread.yaml"

type Config struct {
	API struct {
		Endpoint    string        `yaml:"endpoint"`
		Model       string        `yaml:"model"`
		Key         string        `yaml:"key"`
		Temperature float64       `yaml:"temperature"`
		MaxTokens   int           `yaml:"max_tokens"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxRetries  int           `yaml:"max_retries"`
	} `yaml:"api"`
	Pipeline struct {
		BatchSize        int  `yaml:"batch_size"`
		MinContentLength int  `yaml:"min_content_length"`
		MinTextLength    int  `yaml:"min_text_length"`
		DedupeNested     bool `yaml:"dedupe_nested"`
		SkipProcessed    bool `yaml:"skip_processed"`
	} `yaml:"pipeline"`
	Prefs struct {
		Path string `yaml:"path"`
	} `yaml:"prefs"`
	Fetch struct {
		// Render loads pages through headless Chrome.
		Render    bool   `yaml:"render"`
		RemoteURL string `yaml:"remote_url"`
	} `yaml:"fetch"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	var cfg Config
	cfg.API.Endpoint = rewrite.DefaultEndpoint
	cfg.API.Model = rewrite.DefaultModel
	cfg.API.Temperature = rewrite.DefaultTemperature
	cfg.API.MaxTokens = rewrite.DefaultMaxTokens
	cfg.API.Timeout = rewrite.DefaultTimeout
	cfg.API.MaxRetries = rewrite.DefaultMaxRetries
	cfg.Pipeline.BatchSize = chunk.DefaultSize
	cfg.Pipeline.MinContentLength = locate.DefaultMinLength
	cfg.Pipeline.MinTextLength = collect.DefaultMinLength
	cfg.Prefs.Path = "easyread.db"
	cfg.Server.Addr = ":8080"
	cfg.Log.Level = "info"
	return &cfg
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error when path is DefaultPath.
func Load(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, errors.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, errors.Errorf("reading %s: %w", path, err)
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("EASYREAD_API_KEY"); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv("EASYREAD_API_ENDPOINT"); v != "" {
		cfg.API.Endpoint = v
	}
	if v := os.Getenv("EASYREAD_MODEL"); v != "" {
		cfg.API.Model = v
	}
	if v := os.Getenv("EASYREAD_PREFS"); v != "" {
		cfg.Prefs.Path = v
	}
	if v := os.Getenv("EASYREAD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EASYREAD_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Errorf("EASYREAD_BATCH_SIZE: %w", err)
		}
		cfg.Pipeline.BatchSize = n
	}

	return cfg, nil
}

// ClientOptions maps the api section onto rewrite client options. key is
// the credential to use; callers resolve it against stored preferences.
func (c *Config) ClientOptions(key string) rewrite.Options {
	return rewrite.Options{
		Endpoint:    c.API.Endpoint,
		Model:       c.API.Model,
		APIKey:      key,
		Temperature: c.API.Temperature,
		MaxTokens:   c.API.MaxTokens,
		Timeout:     c.API.Timeout,
		MaxRetries:  c.API.MaxRetries,
	}
}
