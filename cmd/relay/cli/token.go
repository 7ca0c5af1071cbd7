package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/modelrelay/relay/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
		Long:  "Issue short-lived bearer tokens from an API key without going through the HTTP endpoint.",
	}

	cmd.AddCommand(newTokenIssueCmd())

	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		apiKey       string
		expiresHours int
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token from an API key",
		Long: `Exchange an API key for a short-lived HS256 bearer token.

The API key can be passed with --key; when omitted it is prompted for
without echo, so the secret stays out of shell history.`,
		Example: `  relay token issue
  relay token issue --expires-hours 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(apiKey, expiresHours)
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "Raw API key to exchange (prompted if omitted)")
	cmd.Flags().IntVar(&expiresHours, "expires-hours", 24, "Token lifetime in hours (1-168)")

	return cmd
}

func runTokenIssue(apiKey string, expiresHours int) error {
	if expiresHours < 1 || expiresHours > 168 {
		return fmt.Errorf("expires-hours must be between 1 and 168, got %d", expiresHours)
	}

	// Prompt for the key if not provided
	if apiKey == "" {
		fmt.Print("API key: ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		fmt.Println()
		apiKey = string(keyBytes)
	}
	if apiKey == "" {
		return fmt.Errorf("no API key provided")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	keys := service.NewKeys(st, nil, cfg.Auth.KeyPrefix, nil)
	key, err := keys.Verify(ctx, apiKey)
	if err != nil {
		return fmt.Errorf("invalid API key")
	}

	tokens := service.NewTokens(st, jwtSecret(cfg), "relay")
	issued, err := tokens.Issue(ctx, key.ID, time.Duration(expiresHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println("Bearer token issued:")
	fmt.Println()
	fmt.Printf("  Token:   %s\n", issued.AccessToken)
	fmt.Printf("  Key:     %s (%s)\n", key.Name, key.ID)
	fmt.Printf("  Expires: %s\n", issued.ExpiresAt.Format(time.RFC3339))
	return nil
}
