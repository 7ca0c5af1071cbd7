package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelrelay/relay/internal/service"
	"github.com/modelrelay/relay/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke API keys used to authenticate against the Relay gateway.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// openKeys opens the store and wraps it in a key manager. The CLI skips the
// cache: one-shot commands gain nothing from it.
func openKeys() (*service.Keys, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return service.NewKeys(st, nil, cfg.Auth.KeyPrefix, logger), st, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  relay key create "CI pipeline"
  relay key create staging --description "Staging environment"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(args[0], description)
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Human-readable description for the key")

	return cmd
}

func runKeyCreate(name, description string) error {
	keys, st, err := openKeys()
	if err != nil {
		return err
	}
	defer st.Close()

	raw, key, err := keys.Create(context.Background(), name, description)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  ID:   %s\n", key.ID)
	fmt.Printf("  Key:  %s\n", raw)
	fmt.Printf("  Name: %s\n", key.Name)
	if description != "" {
		fmt.Printf("  Desc: %s\n", description)
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	keys, err := st.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		infos := make([]interface{}, len(keys))
		for i := range keys {
			infos[i] = keys[i].Info()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'relay key create' to create one.")
		return nil
	}

	fmt.Printf("%-24s %-20s %-8s %-10s\n", "ID", "NAME", "ACTIVE", "REQUESTS")
	fmt.Printf("%-24s %-20s %-8s %-10s\n", "--", "----", "------", "--------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		fmt.Printf("%-24s %-20s %-8s %-10d\n", k.ID, k.Name, active, k.UsageCount)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key by its ID",
		Long:  "Deactivate an API key, preventing any further authenticated requests using that key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(id string) error {
	keys, st, err := openKeys()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	key, err := st.GetAPIKey(ctx, id)
	if err != nil {
		return fmt.Errorf("no API key found with ID %q", id)
	}

	if err := keys.Revoke(ctx, key); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q (%s)\n", key.Name, key.ID)
	return nil
}
