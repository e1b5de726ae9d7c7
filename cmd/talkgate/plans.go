package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goodtune/talkgate/internal/config"
	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show the plan catalog",
	Long:  `Print every plan tier with its daily conversation quota and per-conversation time budget.`,
	RunE:  runPlans,
}

func init() {
	rootCmd.AddCommand(plansCmd)
}

func runPlans(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		return fmt.Errorf("failed to build plan catalog: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	_, _ = cyan.Println("PLAN CATALOG")
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRICE\tCONVOS/DAY\tMAX SECONDS\tPRIORITY\tINTERRUPTIONS\tFEATURES")
	for _, t := range catalog.Tiers() {
		features := strings.Join(t.FeatureStrings(), ",")
		if features == "" {
			features = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			t.ID, t.Price, t.DailyConversationLimit, t.MaxSecondsPerConversation,
			t.Priority, t.InterruptionLimit, features)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Print("Default plan: ")
	_, _ = green.Println(catalog.Default().ID)

	return nil
}
