package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "redis", cfg.Queue.Driver)
	require.Equal(t, 3, cfg.Queue.MaxAttempts)
	require.Equal(t, time.Second, cfg.Queue.InitialDelay.Duration)
	require.Equal(t, 2.0, cfg.Queue.BackoffMultiplier)
	require.Equal(t, 10, cfg.Queue.Concurrency)
	require.Equal(t, "orders:status", cfg.Bus.Channel)
	require.Len(t, cfg.Venues, 2)
	require.Equal(t, "Raydium", cfg.Venues[0].Name)
	require.Equal(t, "Meteora", cfg.Venues[1].Name)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "worker"

[server]
port = 8080

[queue]
max_attempts = 5
initial_delay = "250ms"

[[venue]]
name = "Orca"
base_price = 99.5
fee_bps = 25
quote_delay = "10ms"
settle_min = "20ms"
settle_max = "40ms"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "worker", cfg.Mode)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5, cfg.Queue.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.Queue.InitialDelay.Duration)
	// A venue table in the file replaces the default venue list.
	require.Len(t, cfg.Venues, 1)
	require.Equal(t, "Orca", cfg.Venues[0].Name)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEXPIPE_MODE", "api")
	t.Setenv("DEXPIPE_SERVER_PORT", "9090")
	t.Setenv("DEXPIPE_QUEUE_INITIAL_DELAY", "3s")
	t.Setenv("DEXPIPE_STORE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	require.Equal(t, "api", cfg.Mode)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 3*time.Second, cfg.Queue.InitialDelay.Duration)
	require.Equal(t, "memory", cfg.Store.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Mode = "hybrid" },
			wantErr: "mode",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "bad queue driver",
			mutate:  func(c *Config) { c.Queue.Driver = "sqs" },
			wantErr: "queue.driver",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Queue.MaxAttempts = 0 },
			wantErr: "queue.max_attempts",
		},
		{
			name: "split mode needs redis queue",
			mutate: func(c *Config) {
				c.Mode = "api"
				c.Queue.Driver = "memory"
			},
			wantErr: "requires the redis driver",
		},
		{
			name: "redis driver needs addr",
			mutate: func(c *Config) {
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
		{
			name:    "no venues",
			mutate:  func(c *Config) { c.Venues = nil },
			wantErr: "at least one venue",
		},
		{
			name: "duplicate venue",
			mutate: func(c *Config) {
				c.Venues = append(c.Venues, c.Venues[0])
			},
			wantErr: "duplicate",
		},
		{
			name: "settle window inverted",
			mutate: func(c *Config) {
				c.Venues[0].SettleMin = duration{3 * time.Second}
				c.Venues[0].SettleMax = duration{time.Second}
			},
			wantErr: "settle_max below settle_min",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Postgres.DSN = "postgres://user:hunter2@db/dexpipe"
	cfg.Redis.Password = "hunter2"

	out := Redacted(&cfg)
	require.Equal(t, "***", out.Postgres.Password)
	require.Equal(t, "***", out.Postgres.DSN)
	require.Equal(t, "***", out.Redis.Password)

	// The original is untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}
