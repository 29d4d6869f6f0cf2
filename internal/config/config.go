// Package config defines the top-level configuration for dexpipe and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DEXPIPE_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Queue    QueueConfig    `toml:"queue"`
	Bus      BusConfig      `toml:"bus"`
	Venues   []VenueConfig  `toml:"venue"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StoreConfig selects the order store backend: "postgres" (durable) or
// "memory" (in-process, for local runs without a database).
type StoreConfig struct {
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters for the order store.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// QueueConfig holds job queue parameters. Driver selects the backing
// implementation: "redis" (durable) or "memory" (in-process).
type QueueConfig struct {
	Driver            string   `toml:"driver"`
	Name              string   `toml:"name"`
	MaxAttempts       int      `toml:"max_attempts"`
	InitialDelay      duration `toml:"initial_delay"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	Concurrency       int      `toml:"concurrency"`
	PollInterval      duration `toml:"poll_interval"`
}

// BusConfig holds status bus parameters. Driver selects "redis" or "memory";
// Channel is the pub/sub channel name used by the redis driver.
type BusConfig struct {
	Driver  string `toml:"driver"`
	Channel string `toml:"channel"`
}

// VenueConfig describes one simulated liquidity venue. Quote prices are
// drawn from BasePrice * [PriceFloor, PriceFloor+PriceBand) per unit.
type VenueConfig struct {
	Name       string   `toml:"name"`
	BasePrice  float64  `toml:"base_price"`
	PriceFloor float64  `toml:"price_floor"`
	PriceBand  float64  `toml:"price_band"`
	FeeBps     int      `toml:"fee_bps"`
	QuoteDelay duration `toml:"quote_delay"`
	SettleMin  duration `toml:"settle_min"`
	SettleMax  duration `toml:"settle_max"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("1s", "250ms", ...).
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. The
// two default venues mirror the simulated Raydium and Meteora pools.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Store: StoreConfig{
			Driver: "postgres",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dexpipe",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Queue: QueueConfig{
			Driver:            "redis",
			Name:              "order-execution",
			MaxAttempts:       3,
			InitialDelay:      duration{time.Second},
			BackoffMultiplier: 2,
			Concurrency:       10,
			PollInterval:      duration{100 * time.Millisecond},
		},
		Bus: BusConfig{
			Driver:  "redis",
			Channel: "orders:status",
		},
		Venues: []VenueConfig{
			{
				Name:       "Raydium",
				BasePrice:  150,
				PriceFloor: 0.98,
				PriceBand:  0.04,
				FeeBps:     30,
				QuoteDelay: duration{time.Second},
				SettleMin:  duration{2 * time.Second},
				SettleMax:  duration{3 * time.Second},
			},
			{
				Name:       "Meteora",
				BasePrice:  150,
				PriceFloor: 0.97,
				PriceBand:  0.05,
				FeeBps:     20,
				QuoteDelay: duration{time.Second},
				SettleMin:  duration{2 * time.Second},
				SettleMax:  duration{3 * time.Second},
			},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Validate checks the configuration for consistency and returns a combined
// error describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Mode) {
	case "api", "worker", "full":
	default:
		problems = append(problems, fmt.Sprintf("mode: unsupported %q (want api, worker, or full)", c.Mode))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port: %d out of range", c.Server.Port))
	}

	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("store.driver: unsupported %q", c.Store.Driver))
	}

	switch c.Queue.Driver {
	case "redis", "memory":
	default:
		problems = append(problems, fmt.Sprintf("queue.driver: unsupported %q", c.Queue.Driver))
	}
	if c.Queue.MaxAttempts < 1 {
		problems = append(problems, "queue.max_attempts: must be at least 1")
	}
	if c.Queue.InitialDelay.Duration < 0 {
		problems = append(problems, "queue.initial_delay: must not be negative")
	}
	if c.Queue.BackoffMultiplier < 1 {
		problems = append(problems, "queue.backoff_multiplier: must be at least 1")
	}
	if c.Queue.Concurrency < 1 {
		problems = append(problems, "queue.concurrency: must be at least 1")
	}

	switch c.Bus.Driver {
	case "redis", "memory":
	default:
		problems = append(problems, fmt.Sprintf("bus.driver: unsupported %q", c.Bus.Driver))
	}
	if c.Bus.Channel == "" {
		problems = append(problems, "bus.channel: must not be empty")
	}

	// Split deployments need Redis to carry jobs and events between the api
	// and worker processes; the memory drivers only work in-process.
	if mode := strings.ToLower(c.Mode); mode == "api" || mode == "worker" {
		if c.Queue.Driver != "redis" {
			problems = append(problems, fmt.Sprintf("queue.driver: %q mode requires the redis driver", mode))
		}
		if c.Bus.Driver != "redis" {
			problems = append(problems, fmt.Sprintf("bus.driver: %q mode requires the redis driver", mode))
		}
	}

	if c.Queue.Driver == "redis" || c.Bus.Driver == "redis" {
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr: required when a redis driver is selected")
		}
	}

	if len(c.Venues) == 0 {
		problems = append(problems, "venue: at least one venue must be configured")
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		if v.Name == "" {
			problems = append(problems, fmt.Sprintf("venue[%d].name: must not be empty", i))
			continue
		}
		if seen[v.Name] {
			problems = append(problems, fmt.Sprintf("venue[%d].name: duplicate %q", i, v.Name))
		}
		seen[v.Name] = true
		if v.BasePrice <= 0 {
			problems = append(problems, fmt.Sprintf("venue[%d].base_price: must be positive", i))
		}
		if v.SettleMax.Duration < v.SettleMin.Duration {
			problems = append(problems, fmt.Sprintf("venue[%d]: settle_max below settle_min", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns a copy of cfg with sensitive fields replaced by "***" so
// the active configuration can be logged safely.
func Redacted(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)

	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Venues != nil {
		out.Venues = append([]VenueConfig(nil), cfg.Venues...)
	}
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
