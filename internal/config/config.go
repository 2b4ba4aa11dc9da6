// Package config provides configuration management for go-nzbidx.
// Compiled-in defaults only; runtime settings live in the database
// and are read through the settings resolver.
package config

import (
	"time"
)

var AppVersion = "-unset-" // will be set at build time

const (
	// DefaultConnectTimeout bounds NNTP dials.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultNNTPPort is the cleartext NNTP port.
	DefaultNNTPPort = 119
	// DefaultNNTPSSLPort is the NNTP-over-TLS port.
	DefaultNNTPSSLPort = 563

	// DefaultPrefixBytes caps how much of an article body the yEnc/archive
	// parsers will ever decode.
	DefaultPrefixBytes = 10240

	// DefaultHTTPTimeout bounds every PreDB/newznab request.
	DefaultHTTPTimeout = 10 * time.Second

	// Scheduler tick periods
	UpdateTickInterval   = 60 * time.Second
	BackfillTickInterval = 300 * time.Second

	// Batch sizing: normal OVER batches and the reduced size used while a
	// server keeps rejecting OVER and we walk HEAD per article.
	DefaultBatchSize      = 100
	HeadFallbackBatchSize = 10

	// Backfill cursor bounds
	MaxBackfillDistance = 200000
	MinTargetArticles   = 1000
	MaxTargetArticles   = 100000
)

// Provider represents an NNTP server configuration.
type Provider struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	SSL      bool   `json:"ssl"`
	Username string `json:"username"`
	Password string `json:"password"`
	MaxConns int    `json:"max_connections"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"` // Lower numbers = higher priority
}

// MainConfig holds the static configuration for go-nzbidx.
type MainConfig struct {
	DataDir    string `json:"data_dir"`
	NZBDir     string `json:"nzb_dir"`
	MainDB     string `json:"main_db"`
	WebPort    int    `json:"web_listen_port"`
	AppVersion string `json:"app_version"`
}

// NewDefaultConfig returns a configuration with sensible defaults.
func NewDefaultConfig() *MainConfig {
	return &MainConfig{
		DataDir:    "data",
		NZBDir:     "data/nzb",
		MainDB:     "data/nzbidx.sq3",
		WebPort:    11984,
		AppVersion: AppVersion,
	}
}
