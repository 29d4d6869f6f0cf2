package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXPIPE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// A missing file is not an error: defaults plus environment overrides are
// enough to run the memory drivers.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXPIPE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "DEXPIPE_MODE")
	setStr(&cfg.LogLevel, "DEXPIPE_LOG_LEVEL")

	// ── Server ──
	setInt(&cfg.Server.Port, "DEXPIPE_SERVER_PORT")

	// ── Store ──
	setStr(&cfg.Store.Driver, "DEXPIPE_STORE_DRIVER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXPIPE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DEXPIPE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXPIPE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXPIPE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXPIPE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXPIPE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXPIPE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXPIPE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXPIPE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXPIPE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXPIPE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXPIPE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXPIPE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXPIPE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXPIPE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXPIPE_REDIS_TLS_ENABLED")

	// ── Queue ──
	setStr(&cfg.Queue.Driver, "DEXPIPE_QUEUE_DRIVER")
	setStr(&cfg.Queue.Name, "DEXPIPE_QUEUE_NAME")
	setInt(&cfg.Queue.MaxAttempts, "DEXPIPE_QUEUE_MAX_ATTEMPTS")
	setDuration(&cfg.Queue.InitialDelay, "DEXPIPE_QUEUE_INITIAL_DELAY")
	setFloat64(&cfg.Queue.BackoffMultiplier, "DEXPIPE_QUEUE_BACKOFF_MULTIPLIER")
	setInt(&cfg.Queue.Concurrency, "DEXPIPE_QUEUE_CONCURRENCY")
	setDuration(&cfg.Queue.PollInterval, "DEXPIPE_QUEUE_POLL_INTERVAL")

	// ── Bus ──
	setStr(&cfg.Bus.Driver, "DEXPIPE_BUS_DRIVER")
	setStr(&cfg.Bus.Channel, "DEXPIPE_BUS_CHANNEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
