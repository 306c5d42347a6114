// Package config defines the top-level configuration for the trade scanner
// and provides validation helpers.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYSCAN_* environment variables.
type Config struct {
	Polygon  PolygonConfig  `toml:"polygon"`
	Wallets  WalletsConfig  `toml:"wallets"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Download DownloadConfig `toml:"download"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	LogLevel string         `toml:"log_level"`
}

// PolygonConfig holds the Polygon JSON-RPC endpoints and request policy.
type PolygonConfig struct {
	// WSSURL is the WebSocket endpoint used for the newHeads subscription.
	WSSURL string `toml:"wss_url"`
	// HTTPURL is the HTTP endpoint for request/response JSON-RPC calls.
	// When empty it is derived from WSSURL by swapping the scheme.
	HTTPURL           string `toml:"http_url"`
	RequestTimeoutSec int    `toml:"request_timeout_sec"`
	MaxRetries        int    `toml:"max_retries"`
	RetryDelayMS      int    `toml:"retry_delay_ms"`
}

// WalletsConfig holds the wallet list source.
type WalletsConfig struct {
	// File is the path to a text file with one address per line. Missing or
	// empty file means every trade is tracked.
	File string `toml:"file"`
}

// MonitorConfig holds live-monitor behavior.
type MonitorConfig struct {
	// Reconnect enables automatic reconnection with capped backoff after a
	// transport failure. When false a drop ends the session.
	Reconnect                bool `toml:"reconnect"`
	MaxReconnectDelaySec     int  `toml:"max_reconnect_delay_sec"`
	InitialReconnectDelaySec int  `toml:"initial_reconnect_delay_sec"`
}

// DownloadConfig holds historical-download defaults.
type DownloadConfig struct {
	// MaxRPS bounds concurrent block workers; batch size is 2*MaxRPS.
	MaxRPS    int    `toml:"max_rps"`
	MaxBlocks uint64 `toml:"max_blocks"`
	Output    string `toml:"output"`
}

// PostgresConfig holds the optional Postgres trade sink. Enabled when DSN is
// non-empty.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds the optional Redis live-trade publisher. Enabled when
// Addr is non-empty.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	Channel    string `toml:"channel"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the optional S3-compatible upload target for finished
// download output files. Enabled when Bucket is non-empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Defaults returns a Config pre-populated with sensible defaults. Loaded TOML
// values are merged on top of this.
func Defaults() Config {
	return Config{
		Polygon: PolygonConfig{
			RequestTimeoutSec: 30,
			MaxRetries:        3,
			RetryDelayMS:      1000,
		},
		Wallets: WalletsConfig{
			File: filepath.Join("config", "wallets.txt"),
		},
		Monitor: MonitorConfig{
			Reconnect:                true,
			InitialReconnectDelaySec: 2,
			MaxReconnectDelaySec:     60,
		},
		Download: DownloadConfig{
			MaxRPS:    5,
			MaxBlocks: 1000,
			Output:    "trades.csv",
		},
		Redis: RedisConfig{
			Channel: "polyscan:trades",
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Polygon.WSSURL) == "" && strings.TrimSpace(c.Polygon.HTTPURL) == "" {
		return fmt.Errorf("config: polygon.wss_url or polygon.http_url is required")
	}
	if c.Polygon.MaxRetries < 1 {
		return fmt.Errorf("config: polygon.max_retries must be >= 1, got %d", c.Polygon.MaxRetries)
	}
	if c.Polygon.RequestTimeoutSec < 1 {
		return fmt.Errorf("config: polygon.request_timeout_sec must be >= 1, got %d", c.Polygon.RequestTimeoutSec)
	}
	if c.Download.MaxRPS < 1 {
		return fmt.Errorf("config: download.max_rps must be >= 1, got %d", c.Download.MaxRPS)
	}
	if c.S3.Bucket != "" && c.S3.Region == "" {
		return fmt.Errorf("config: s3.region is required when s3.bucket is set")
	}
	return nil
}

// HTTPURL returns the effective HTTP JSON-RPC endpoint, deriving it from the
// WebSocket URL when not configured explicitly.
func (c *PolygonConfig) EffectiveHTTPURL() string {
	if strings.TrimSpace(c.HTTPURL) != "" {
		return strings.TrimRight(c.HTTPURL, "/")
	}
	u := c.WSSURL
	u = strings.Replace(u, "wss://", "https://", 1)
	u = strings.Replace(u, "ws://", "http://", 1)
	return strings.TrimRight(u, "/")
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *PolygonConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// RetryDelay returns the base backoff delay as a duration.
func (c *PolygonConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// InitialReconnectDelay returns the starting reconnect backoff.
func (c *MonitorConfig) InitialReconnectDelay() time.Duration {
	return time.Duration(c.InitialReconnectDelaySec) * time.Second
}

// MaxReconnectDelay returns the backoff cap.
func (c *MonitorConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelaySec) * time.Second
}
