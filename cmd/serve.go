package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/logger"
	"github.com/kyleking/gh-actionboard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API server",
	Long:  `Serve the dashboard API. Requests are authorized with the caller's GitHub token and forwarded to the GitHub REST API.`,
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"server.addr":     "addr",
			"github.org":      "org",
			"billing.enabled": "billing",
			"billing.dsn":     "billing-dsn",
		})
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().String("org", "", "only list repositories of this organization")
	serveCmd.Flags().Bool("billing", false, "enforce billing tiers")
	serveCmd.Flags().String("billing-dsn", "", "SQLite database holding subscriptions")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "actionboard-api")
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tiers server.TierSource
	if cfg.Billing.Enabled && cfg.Billing.DSN != "" {
		store, err := openSubscriptions(ctx, cfg.Billing.DSN)
		if err != nil {
			return err
		}
		tiers = store
		log.Info("billing enabled", zap.String("dsn", cfg.Billing.DSN))
	}

	srv := server.New(cfg.ServerConfig(), tiers, log)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func openSubscriptions(ctx context.Context, dsn string) (*billing.SubscriptionStore, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	store := billing.NewSubscriptionStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate subscriptions: %w", err)
	}
	return store, nil
}
