// Package config loads gh-actionboard settings from a YAML file, ACTIONBOARD_
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/engine"
	"github.com/kyleking/gh-actionboard/internal/logger"
	"github.com/kyleking/gh-actionboard/internal/server"
)

// AppName names config and cache directories.
const AppName = "gh-actionboard"

// EnvPrefix prefixes environment overrides, e.g. ACTIONBOARD_CLIENT_TOKEN.
const EnvPrefix = "ACTIONBOARD"

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	UserTTL         time.Duration `mapstructure:"user_ttl"`
	FanOut          int           `mapstructure:"fan_out"`
}

type GitHub struct {
	Host   string `mapstructure:"host"`
	APIURL string `mapstructure:"api_url"`
	Org    string `mapstructure:"org"`
}

type Billing struct {
	Enabled        bool   `mapstructure:"enabled"`
	DSN            string `mapstructure:"dsn"`
	billing.Limits `mapstructure:",squash"`
}

type Client struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Cache struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

type Engine struct {
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	SyncInterval    time.Duration `mapstructure:"sync_interval"`
	ActiveInterval  time.Duration `mapstructure:"active_interval"`
	RerunDelay      time.Duration `mapstructure:"rerun_delay"`
	SyncConcurrency int           `mapstructure:"sync_concurrency"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// Config is the full application configuration.
type Config struct {
	Server  Server  `mapstructure:"server"`
	GitHub  GitHub  `mapstructure:"github"`
	Billing Billing `mapstructure:"billing"`
	Client  Client  `mapstructure:"client"`
	Cache   Cache   `mapstructure:"cache"`
	Engine  Engine  `mapstructure:"engine"`
	Log     Log     `mapstructure:"log"`

	// TokenSource describes where Client.Token came from.
	TokenSource string `mapstructure:"-"`
}

// New returns a viper instance with every default set and environment
// overrides enabled. Flags are bound onto it by the CLI before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "10s")
	v.SetDefault("server.user_ttl", "5m")
	v.SetDefault("server.fan_out", 10)

	v.SetDefault("github.host", "github.com")
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.org", "")

	v.SetDefault("billing.enabled", false)
	v.SetDefault("billing.dsn", "")
	v.SetDefault("billing.free_days", billing.DefaultLimits.FreeDays)
	v.SetDefault("billing.free_batches", billing.DefaultLimits.FreeBatches)
	v.SetDefault("billing.paid_days", billing.DefaultLimits.PaidDays)
	v.SetDefault("billing.paid_batches", billing.DefaultLimits.PaidBatches)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.timeout", "30s")

	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.dir", defaultDir(os.UserCacheDir))

	v.SetDefault("engine.batch_delay", "3s")
	v.SetDefault("engine.sync_interval", "15s")
	v.SetDefault("engine.active_interval", "5s")
	v.SetDefault("engine.rerun_delay", "2s")
	v.SetDefault("engine.sync_concurrency", 8)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(defaultDir(os.UserConfigDir), "config.yaml")
}

func defaultDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(dir, AppName)
}

// Load reads the config file at path into v and decodes the result. A
// missing file at the default path is not an error; a missing explicit path
// is.
func Load(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Cache.Dir = expandPath(cfg.Cache.Dir)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Billing.DSN = expandPath(cfg.Billing.DSN)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("invalid cache.backend %q (want %s or %s)", c.Cache.Backend, BackendFile, BackendSQLite)
	}
	if c.Engine.SyncConcurrency < 1 {
		return fmt.Errorf("engine.sync_concurrency must be positive, got %d", c.Engine.SyncConcurrency)
	}
	return nil
}

// ResolveToken fills Client.Token from the gh CLI credentials when it was
// not configured.
func (c *Config) ResolveToken() error {
	if c.Client.Token != "" {
		c.TokenSource = "config"
		return nil
	}
	token, source := auth.TokenForHost(c.GitHub.Host)
	if token == "" {
		return fmt.Errorf("no token configured for %s: set client.token, %s_CLIENT_TOKEN, or run 'gh auth login'",
			c.GitHub.Host, EnvPrefix)
	}
	c.Client.Token, c.TokenSource = token, source
	return nil
}

// ServerConfig returns the API server settings.
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Addr:            c.Server.Addr,
		ReadTimeout:     c.Server.ReadTimeout,
		WriteTimeout:    c.Server.WriteTimeout,
		GracefulTimeout: c.Server.GracefulTimeout,
		APIURL:          c.GitHub.APIURL,
		Org:             c.GitHub.Org,
		BillingEnabled:  c.Billing.Enabled,
		Limits:          c.Billing.Limits,
		UserTTL:         c.Server.UserTTL,
		FanOut:          c.Server.FanOut,
	}
}

// EngineOptions returns the engine schedules.
func (c *Config) EngineOptions(log *zap.Logger) engine.Options {
	return engine.Options{
		BatchDelay:     c.Engine.BatchDelay,
		SyncInterval:   c.Engine.SyncInterval,
		ActiveInterval: c.Engine.ActiveInterval,
		RerunDelay:     c.Engine.RerunDelay,
		Concurrency:    c.Engine.SyncConcurrency,
		Logger:         log,
	}
}

// LoggerConfig returns the logger settings for app.
func (c *Config) LoggerConfig(app string) logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    app,
		File:   c.Log.File,
	}
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
