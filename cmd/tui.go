package cmd

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/app"
	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/engine"
	"github.com/kyleking/gh-actionboard/internal/frecency"
	"github.com/kyleking/gh-actionboard/internal/logger"
	"github.com/kyleking/gh-actionboard/internal/logs"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the workflow dashboard",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	rootCmd.RunE = runTUI
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// The terminal owns stdout, so logs always go to a file.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.Cache.Dir, "actionboard.log")
	}
	log, err := newLogger(cfg, "actionboard")
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	c, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	info, err := signIn(ctx, c, cache.NewUserCache(store, cfg.Client.Token), log)
	if err != nil {
		return err
	}
	log.Info("signed in", zap.String("user", info.Username), zap.String("token_source", cfg.TokenSource))

	logCache := logs.NewCache(store)
	if err := logCache.Prune(); err != nil {
		log.Warn("failed to prune log cache", zap.Error(err))
	}

	eng := engine.New(c, cache.NewWorkflowCache(store, log.Named("cache")), cfg.EngineOptions(log.Named("engine")))
	if err := eng.Start(ctx, info.Username, billingFor(info, cfg.Billing.Limits)); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer eng.Stop()

	model := app.New(ctx, app.Options{
		Engine:         eng,
		Logs:           logs.NewFetcher(c, logCache, log.Named("logs")),
		History:        frecency.NewTracker(store, log.Named("history")),
		StreamInterval: cfg.Engine.ActiveInterval,
		Logger:         log.Named("ui"),
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("dashboard exited: %w", err)
	}
	return nil
}
