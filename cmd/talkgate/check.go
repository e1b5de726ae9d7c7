package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/talkgate/internal/config"
	"github.com/goodtune/talkgate/internal/plans"
	"github.com/goodtune/talkgate/internal/policy"
	"github.com/goodtune/talkgate/internal/policy/opa"
	"github.com/goodtune/talkgate/internal/subscriptions"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkPlan string
	checkUser string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check policy decisions interactively",
	Long:  `Check what policy decisions talkgate would make for a plan tier or user.`,
}

var checkFeatureCmd = &cobra.Command{
	Use:   "feature [flags] FEATURE",
	Short: "Check feature policy decision",
	Long:  `Check whether a plan tier, or the tier a user is subscribed to, may use a feature.`,
	Example: `  talkgate -c config.yaml check feature --plan PLAN_699 screen_explain
  talkgate check feature --user user-123 screen_explain`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckFeature,
}

func init() {
	checkFeatureCmd.Flags().StringVar(&checkPlan, "plan", "", "Plan tier id")
	checkFeatureCmd.Flags().StringVar(&checkUser, "user", "", "User id, resolved through the subscription directory")
	checkFeatureCmd.MarkFlagsMutuallyExclusive("plan", "user")

	checkCmd.AddCommand(checkFeatureCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckFeature(cmd *cobra.Command, args []string) error {
	feature := plans.Feature(strings.TrimSpace(args[0]))
	if feature == "" {
		return fmt.Errorf("feature name is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("failed to build plan catalog: %w", err)
	}

	ctx := context.Background()
	hint := checkPlan
	if checkUser != "" {
		store, err := openStorage(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		directory := subscriptions.NewDirectory(store.Subscriptions(), catalog, subscriptions.Config{}, logger)
		hint = directory.PlanHint(ctx, checkUser, "")
	}

	tier := plans.NewResolver(catalog).Resolve(hint)

	engine, err := opa.NewEngine(cfg.Policy.PolicyDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	allowed, err := policy.NewFeaturePolicy(engine, logger).AllowFeature(ctx, tier, feature)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	printFeatureResult(hint, tier, feature, allowed)
	return nil
}

// printFeatureResult prints the feature check result with colors
func printFeatureResult(hint string, tier plans.Tier, feature plans.Feature, allowed bool) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Println("FEATURE POLICY CHECK")
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	if checkUser != "" {
		fmt.Printf("User:       %s\n", checkUser)
	}
	fmt.Printf("Feature:    %s\n", feature)
	fmt.Printf("Plan:       %s\n", tier.ID)
	if hint != "" && hint != tier.ID {
		_, _ = yellow.Printf("            (%q is not a known plan, default tier used)\n", hint)
	}
	fmt.Printf("Quota:      %d conversations/day, %ds per conversation\n",
		tier.DailyConversationLimit, tier.MaxSecondsPerConversation)
	fmt.Println()

	_, _ = cyan.Print("Decision:   ")
	if allowed {
		_, _ = green.Println("ALLOW")
		fmt.Println("            → Requests for this feature will be answered")
	} else {
		_, _ = red.Println("DENY")
		fmt.Println("            → Requests will be rejected with feature_not_available")
	}

	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
