// Package cmd implements the gh-actionboard command line.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/config"
	"github.com/kyleking/gh-actionboard/internal/logger"
)

var (
	cfgFile string
	v       = config.New()
	rootCmd = &cobra.Command{
		Use:           "gh-actionboard",
		Short:         "GitHub Actions workflow dashboard",
		Long:          `A dashboard of GitHub Actions runs across every repository you can access, backed by a small API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultPath()+")")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.Bool("log-pretty", false, "human-readable log output")
	pf.String("log-file", "", "write logs to this file")
	pf.String("base-url", "", "dashboard API base URL")
	pf.String("cache-backend", "", "cache backend (file or sqlite)")
	pf.String("cache-dir", "", "cache directory")

	if err := bindFlags(pf, map[string]string{
		"log.level":       "log-level",
		"log.pretty":      "log-pretty",
		"log.file":        "log-file",
		"client.base_url": "base-url",
		"cache.backend":   "cache-backend",
		"cache.dir":       "cache-dir",
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// bindFlags binds config keys to flags. Unset flags leave the file, env
// and default values in place. A key holds one binding, so commands sharing
// a key bind their flags when they run rather than in init.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, app string) (*zap.Logger, error) {
	log, err := logger.New(cfg.LoggerConfig(app))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func openDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dsn, err)
	}
	return db, nil
}

// openStore opens the configured durable cache. The returned func releases it.
func openStore(cfg *config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Cache.Dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		db, err := openDB(filepath.Join(cfg.Cache.Dir, "cache.db"))
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		store, err := cache.NewSQLStore(db)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return store, func() { _ = sqlDB.Close() }, nil
	default:
		store, err := cache.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
