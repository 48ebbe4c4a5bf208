package config

import (
	"time"

	"github.com/hyperjump/colindex/internal/retry"
	"github.com/hyperjump/colindex/internal/upload"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 6380
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/colindex/data/colindex.db"
	}

	def := upload.DefaultOptions()
	if cfg.Upload.BatchSize == 0 {
		cfg.Upload.BatchSize = def.BatchSize
	}
	if cfg.Upload.MaxConcurrentBatches == 0 {
		cfg.Upload.MaxConcurrentBatches = def.MaxConcurrentBatches
	}
	if cfg.Upload.CallTimeout == 0 {
		cfg.Upload.CallTimeout = def.CallTimeout
	}
	if cfg.Upload.Retry == (retry.Policy{}) {
		cfg.Upload.Retry = def.Retry
	}
	if cfg.Upload.ProgressInterval == 0 {
		cfg.Upload.ProgressInterval = 30 * time.Second
	}

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}

	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.Extract.ChunkSize == 0 {
		cfg.Extract.ChunkSize = 200
	}
	if cfg.Extract.ChunkOverlap == 0 {
		cfg.Extract.ChunkOverlap = 20
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
