package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelrelay/relay/internal/service"
)

func newUsageCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "usage <key-id>",
		Short: "Show aggregate usage for an API key",
		Long:  "Print total requests, tokens, and cost for one API key, broken down by provider.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUsage(keyID string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	meter := service.NewMeter(st, nil)
	summary, err := meter.Summary(context.Background(), keyID)
	if err != nil {
		return fmt.Errorf("summarize usage: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("Usage for %s:\n", keyID)
	fmt.Println()
	fmt.Printf("  Requests: %d\n", summary.TotalRequests)
	fmt.Printf("  Tokens:   %d\n", summary.TotalTokens)
	fmt.Printf("  Cost:     $%.6f\n", summary.TotalCost)

	if len(summary.ProviderBreakdown) > 0 {
		fmt.Println()
		fmt.Printf("  %-16s %-10s %-12s %-12s\n", "PROVIDER", "REQUESTS", "TOKENS", "COST")
		for name, p := range summary.ProviderBreakdown {
			fmt.Printf("  %-16s %-10d %-12d $%.6f\n", name, p.Requests, p.Tokens, p.Cost)
		}
	}

	return nil
}
