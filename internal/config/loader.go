package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYSCAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing file is not an error when path is empty: the defaults plus
// environment overrides are returned, which is enough to run with just
// POLYSCAN_POLYGON_WSS_URL set.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject endpoints and credentials at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polygon ──
	setStr(&cfg.Polygon.WSSURL, "POLYSCAN_POLYGON_WSS_URL")
	setStr(&cfg.Polygon.WSSURL, "POLYGON_WSS_URL") // compatibility alias
	setStr(&cfg.Polygon.HTTPURL, "POLYSCAN_POLYGON_HTTP_URL")
	setInt(&cfg.Polygon.RequestTimeoutSec, "POLYSCAN_POLYGON_REQUEST_TIMEOUT_SEC")
	setInt(&cfg.Polygon.MaxRetries, "POLYSCAN_POLYGON_MAX_RETRIES")
	setInt(&cfg.Polygon.RetryDelayMS, "POLYSCAN_POLYGON_RETRY_DELAY_MS")

	// ── Wallets ──
	setStr(&cfg.Wallets.File, "POLYSCAN_WALLETS_FILE")
	setStr(&cfg.Wallets.File, "WALLETS_FILE") // compatibility alias

	// ── Monitor ──
	setBool(&cfg.Monitor.Reconnect, "POLYSCAN_MONITOR_RECONNECT")
	setInt(&cfg.Monitor.MaxReconnectDelaySec, "POLYSCAN_MONITOR_MAX_RECONNECT_DELAY_SEC")
	setInt(&cfg.Monitor.InitialReconnectDelaySec, "POLYSCAN_MONITOR_INITIAL_RECONNECT_DELAY_SEC")

	// ── Download ──
	setInt(&cfg.Download.MaxRPS, "POLYSCAN_DOWNLOAD_MAX_RPS")
	setUint64(&cfg.Download.MaxBlocks, "POLYSCAN_DOWNLOAD_MAX_BLOCKS")
	setStr(&cfg.Download.Output, "POLYSCAN_DOWNLOAD_OUTPUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYSCAN_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxConns, "POLYSCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "POLYSCAN_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSCAN_REDIS_DB")
	setStr(&cfg.Redis.Channel, "POLYSCAN_REDIS_CHANNEL")
	setBool(&cfg.Redis.TLSEnabled, "POLYSCAN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYSCAN_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "POLYSCAN_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "POLYSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYSCAN_S3_FORCE_PATH_STYLE")

	// ── Misc ──
	setStr(&cfg.LogLevel, "POLYSCAN_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
