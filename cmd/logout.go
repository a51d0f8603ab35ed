package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/frecency"
	"github.com/kyleking/gh-actionboard/internal/logs"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete cached runs, logs and user info",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := clearAll(store); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared cached data from %s (%s backend)\n", cfg.Cache.Dir, cfg.Cache.Backend)
	return nil
}

// clearAll drops every workflow snapshot and cached log, the signed-in user
// and the picker history.
func clearAll(store cache.Store) error {
	return errors.Join(
		cache.Logout(store, store),
		logs.NewCache(store).Clear(),
		store.Clear(frecency.Key),
	)
}
