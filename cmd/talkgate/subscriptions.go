package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/talkgate/internal/config"
	"github.com/goodtune/talkgate/internal/storage"
	"github.com/goodtune/talkgate/internal/subscriptions"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var subscriptionsCmd = &cobra.Command{
	Use:     "subscriptions",
	Aliases: []string{"subs"},
	Short:   "Manage the user to plan directory",
	Long:    `Assign, inspect and remove the plan tier stored for a user.`,
}

var subscriptionsAssignCmd = &cobra.Command{
	Use:     "assign USER_ID PLAN_ID",
	Short:   "Assign a plan tier to a user",
	Example: `  talkgate -c config.yaml subscriptions assign user-123 PLAN_599`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, d *subscriptions.Directory) error {
			if err := d.Assign(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Assigned %s to %s\n", args[1], args[0])
			return nil
		})
	},
}

var subscriptionsShowCmd = &cobra.Command{
	Use:   "show USER_ID",
	Short: "Show the plan tier stored for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, d *subscriptions.Directory) error {
			sub, err := d.Get(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				yellow := color.New(color.FgYellow)
				_, _ = yellow.Printf("%s has no stored plan (the default tier applies)\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("User:    %s\nPlan:    %s\nUpdated: %s\n", sub.UserID, sub.PlanID, sub.UpdatedAt.Format(time.RFC3339))
			return nil
		})
	},
}

var subscriptionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, d *subscriptions.Directory) error {
			subs, err := d.List(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tPLAN\tUPDATED")
			for _, sub := range subs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", sub.UserID, sub.PlanID, sub.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

var subscriptionsRemoveCmd = &cobra.Command{
	Use:   "remove USER_ID",
	Short: "Remove the stored plan for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDirectory(func(ctx context.Context, d *subscriptions.Directory) error {
			if err := d.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed subscription for %s\n", args[0])
			return nil
		})
	},
}

func init() {
	subscriptionsCmd.AddCommand(subscriptionsAssignCmd)
	subscriptionsCmd.AddCommand(subscriptionsShowCmd)
	subscriptionsCmd.AddCommand(subscriptionsListCmd)
	subscriptionsCmd.AddCommand(subscriptionsRemoveCmd)
	rootCmd.AddCommand(subscriptionsCmd)
}

// withDirectory opens the configured storage and runs fn against a
// subscription directory. Only the redis backend outlives the process.
func withDirectory(fn func(context.Context, *subscriptions.Directory) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	if cfg.Storage.Type != "redis" {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintln(os.Stderr, "⚠️  storage.type is memory; changes are lost when this command exits")
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("failed to build plan catalog: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	directory := subscriptions.NewDirectory(store.Subscriptions(), catalog, subscriptions.Config{}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return fn(ctx, directory)
}
