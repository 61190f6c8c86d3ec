// Package config loads the server configuration using Viper.
//
// Precedence, lowest first: defaults, the YAML file (intake.yml in the
// working directory unless a path is given), INTAKE_* environment
// variables, command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gabrielmiguelok/liveintake/pkg/logging"
	"github.com/gabrielmiguelok/liveintake/pkg/security"
)

// DefaultPath is the config file looked up when no path is given.
const DefaultPath = "intake.yml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INTAKE"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all server settings.
type Config struct {
	Addr     string `mapstructure:"addr"`
	FormPath string `mapstructure:"form_path"`

	Store    StoreConfig    `mapstructure:"store"`
	Autosave AutosaveConfig `mapstructure:"autosave"`
	Submit   SubmitConfig   `mapstructure:"submit"`
	Log      LogConfig      `mapstructure:"log"`
	Sessions SessionConfig  `mapstructure:"sessions"`

	// MaxHeapBytes fails the readiness check above this heap size. Zero
	// disables the check.
	MaxHeapBytes uint64 `mapstructure:"max_heap_bytes"`

	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the durable store of saved progress.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	// RecordTTL expires saved progress. Zero keeps it forever.
	RecordTTL time.Duration `mapstructure:"record_ttl"`
}

// AutosaveConfig controls interval saves.
type AutosaveConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SubmitConfig configures where completed forms go. Without an endpoint
// submissions are kept in the store.
type SubmitConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// KeepFor expires submissions kept in the store.
	KeepFor time.Duration `mapstructure:"keep_for"`
}

// LogConfig configures the server logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Source adds the calling file and line to every record.
	Source bool `mapstructure:"source"`
}

// SessionConfig limits live connections.
type SessionConfig struct {
	Max         int           `mapstructure:"max"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"addr":              "addr",
	"form":              "form_path",
	"store":             "store.driver",
	"store-path":        "store.path",
	"record-ttl":        "store.record_ttl",
	"autosave-interval": "autosave.interval",
	"submit-endpoint":   "submit.endpoint",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"log-source":        "log.source",
	"allowed-origins":   "allowed_origins",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("form_path", "")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.path", "intake.db")
	v.SetDefault("store.record_ttl", 30*24*time.Hour)
	v.SetDefault("autosave.interval", 30*time.Second)
	v.SetDefault("submit.endpoint", "")
	v.SetDefault("submit.timeout", time.Minute)
	v.SetDefault("submit.keep_for", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.source", false)
	v.SetDefault("max_heap_bytes", uint64(1<<30))
	v.SetDefault("sessions.max", 10000)
	v.SetDefault("sessions.idle_timeout", 30*time.Minute)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("rate_limit", 20)
	v.SetDefault("cookie_secure", false)
	v.SetDefault("shutdown_timeout", 30*time.Second)
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "listen address")
	fs.String("form", "", "form definition file (default: built-in project form)")
	fs.String("store", DriverMemory, "saved progress store: memory or sqlite")
	fs.String("store-path", "intake.db", "SQLite database path")
	fs.Duration("record-ttl", 30*24*time.Hour, "how long saved progress is kept, 0 keeps it forever")
	fs.Duration("autosave-interval", 30*time.Second, "interval between automatic saves")
	fs.String("submit-endpoint", "", "URL completed forms are posted to (default: keep them in the store)")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.Bool("log-source", false, "add source file and line to log records")
	fs.StringSlice("allowed-origins", nil, "origins allowed to open the websocket and read health endpoints")
}

// Load reads the configuration. path may be empty to use DefaultPath if
// it exists. fs may be nil; only flags the user set override other
// sources.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if explicit || fileExists(path) {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: addr is empty", ErrInvalid))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("%w: store.path is required for sqlite", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver))
	}
	if c.Autosave.Interval < time.Second {
		errs = append(errs, fmt.Errorf("%w: autosave.interval %s is below one second", ErrInvalid, c.Autosave.Interval))
	}
	if c.Store.RecordTTL < 0 {
		errs = append(errs, fmt.Errorf("%w: store.record_ttl is negative", ErrInvalid))
	}
	if c.Submit.Endpoint != "" && !security.IsValidURL(c.Submit.Endpoint) {
		errs = append(errs, fmt.Errorf("%w: submit.endpoint %q is not an http(s) URL", ErrInvalid, c.Submit.Endpoint))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: rate_limit is negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// Logger builds the server logger from the log settings.
func (c *Config) Logger() logging.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	opts := []logging.LoggerOption{
		logging.WithLevel(level),
		logging.WithFormat(c.Log.Format),
		logging.WithOutput(os.Stderr),
	}
	if c.Log.Source {
		opts = append(opts, logging.WithSource())
	}
	return logging.NewSlogLogger(opts...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
