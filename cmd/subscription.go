package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyleking/gh-actionboard/internal/billing"
)

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage billing subscriptions",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{"billing.dsn": "billing-dsn"})
	},
}

var subscriptionSetCmd = &cobra.Command{
	Use:   "set <github-user-id> <status>",
	Short: "Create or update a user's subscription",
	Long:  `Create or update a subscription. A status of "active" grants the paid tier.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSubscriptionSet,
}

var subscriptionGetCmd = &cobra.Command{
	Use:   "get <github-user-id>",
	Short: "Show a user's billing tier",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscriptionGet,
}

func init() {
	rootCmd.AddCommand(subscriptionCmd)
	subscriptionCmd.AddCommand(subscriptionSetCmd)
	subscriptionCmd.AddCommand(subscriptionGetCmd)
	subscriptionCmd.PersistentFlags().String("billing-dsn", "", "SQLite database holding subscriptions")
}

func subscriptions(cmd *cobra.Command) (*billing.SubscriptionStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Billing.DSN == "" {
		return nil, errors.New("billing.dsn is not configured")
	}
	return openSubscriptions(cmd.Context(), cfg.Billing.DSN)
}

func runSubscriptionSet(cmd *cobra.Command, args []string) error {
	store, err := subscriptions(cmd)
	if err != nil {
		return err
	}
	if err := store.Upsert(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subscription of %s set to %s\n", args[0], args[1])
	return nil
}

func runSubscriptionGet(cmd *cobra.Command, args []string) error {
	store, err := subscriptions(cmd)
	if err != nil {
		return err
	}
	tier, err := store.Tier(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read subscription: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], tier)
	return nil
}
