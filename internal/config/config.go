// Package config loads the colindex YAML configuration, .env files, and COLINDEX_* overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/colindex/internal/upload"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvEnvironment  = "ENVIRONMENT"
	EnvHost         = "COLINDEX_HOST"
	EnvPort         = "COLINDEX_PORT"
	EnvDatabasePath = "COLINDEX_DATABASE_PATH"
	EnvDebug        = "COLINDEX_DEBUG"
	EnvServerURL    = "COLINDEX_SERVER_URL"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Extract   ExtractConfig   `yaml:"extract"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig points CLI commands at a running server instead of the local database.
type ClientConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// UploadConfig holds batching, concurrency, and retry settings plus progress reporting.
type UploadConfig struct {
	upload.Options   `yaml:",inline"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	// TextFuzziness is the edit distance allowed per term in payload text filters.
	TextFuzziness int `yaml:"text_fuzziness"`
}

// EmbeddingConfig holds settings of the text embedder used for text queries and indexing.
type EmbeddingConfig struct {
	Dimensions int `yaml:"dimensions"`
	MaxTokens  int `yaml:"max_tokens"`
	CacheSize  int `yaml:"cache_size"`
}

// ExtractConfig holds chunking settings for plain-text files, in words.
type ExtractConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Collection  string        `yaml:"collection"`
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Enabled reports whether the watcher should run.
func (w *WatchConfig) Enabled() bool {
	return w.Collection != "" && len(w.Directories) > 0
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, applies defaults, and then
// applies environment overrides. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults plus environment
// overrides otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}
	cfg := Default()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env and .env.{ENVIRONMENT} from dir into the process environment. Missing
// files are ignored; variables already set are kept.
func LoadDotEnv(dir string) error {
	files := []string{filepath.Join(dir, ".env")}
	if env := os.Getenv(EnvEnvironment); env != "" {
		files = append([]string{filepath.Join(dir, ".env."+env)}, files...)
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with COLINDEX_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDebug, v, err)
		}
		cfg.Debug = debug
	}
	if v := os.Getenv(EnvServerURL); v != "" {
		cfg.Client.URL = v
	}
	return nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if err := c.Upload.Options.Validate(); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("search: max_top_k %d is below default_top_k %d", c.Search.MaxTopK, c.Search.DefaultTopK)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
