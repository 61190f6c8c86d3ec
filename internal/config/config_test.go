package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intake.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Autosave.Interval)
	assert.Equal(t, 30*24*time.Hour, cfg.Store.RecordTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10000, cfg.Sessions.Max)
	assert.Empty(t, cfg.Submit.Endpoint)
	assert.False(t, cfg.Log.Source)
	assert.Equal(t, uint64(1<<30), cfg.MaxHeapBytes)
}

func TestLoad_FileEnvFlags(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
store:
  driver: sqlite
  path: /var/lib/intake/intake.db
autosave:
  interval: 1m
submit:
  endpoint: https://forms.example.com/intake
log:
  level: debug
  format: json
max_heap_bytes: 536870912
allowed_origins:
  - https://example.com
`)
	t.Setenv("INTAKE_ADDR", ":9100")
	t.Setenv("INTAKE_SESSIONS_MAX", "50")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=warn", "--log-source"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr, "env beats file")
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/intake/intake.db", cfg.Store.Path)
	assert.Equal(t, time.Minute, cfg.Autosave.Interval)
	assert.Equal(t, "https://forms.example.com/intake", cfg.Submit.Endpoint)
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Log.Source)
	assert.Equal(t, uint64(512<<20), cfg.MaxHeapBytes)
	assert.Equal(t, 50, cfg.Sessions.Max)
	assert.Equal(t, []string{"https://example.com"}, cfg.AllowedOrigins)
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	path := writeConfig(t, "addr: \":7000\"\n")
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.Path = "" }},
		{"short interval", func(c *Config) { c.Autosave.Interval = 100 * time.Millisecond }},
		{"bad endpoint", func(c *Config) { c.Submit.Endpoint = "ftp://example.com" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative ttl", func(c *Config) { c.Store.RecordTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg, err := Load("", nil)
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
