package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/model"
	"github.com/keywarden/keywarden/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, inspect, revoke, and rotate API keys. Secrets are shown once at creation or rotation and cannot be retrieved afterwards.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyInfoCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyCleanupCmd())

	return cmd
}

// openKeyService builds a KeyService over the configured store. The caller
// owns closing the returned store.
func openKeyService() (*service.KeyService, *config.Store, error) {
	store, err := openKeyStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open key store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return service.NewKeyService(store, 5*time.Minute, logger), store, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		role        string
		expiresDays int
		description string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The plaintext secret is shown once and cannot be retrieved again.",
		Example: `  keywarden key create "CI pipeline" --role readonly
  keywarden key create deploy-bot --role user --expires-days 90`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(args[0], role, expiresDays, description)
		},
	}

	cmd.Flags().StringVar(&role, "role", "user", "Role for the key: admin, user, or readonly")
	cmd.Flags().IntVar(&expiresDays, "expires-days", -1, "Days until the key expires (-1 = never)")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")

	return cmd
}

func runKeyCreate(name, roleName string, expiresDays int, description string) error {
	parsedRole, err := model.ParseRole(roleName)
	if err != nil {
		return err
	}

	keys, store, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	params := service.GenerateParams{
		Name:        name,
		Role:        parsedRole,
		CreatedBy:   "cli",
		Description: description,
	}
	if expiresDays >= 0 {
		params.ExpiresIn = &expiresDays
	}

	generated, err := keys.Generate(context.Background(), params)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key ID: %s\n", generated.KeyID)
	fmt.Printf("  Secret: %s\n", generated.Secret)
	fmt.Printf("  Role:   %s\n", parsedRole)
	if generated.Info.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", generated.Info.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  " + model.SecretWarning)
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput      bool
		includeInactive bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput, includeInactive)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&includeInactive, "include-inactive", false, "Include revoked and deactivated keys")

	return cmd
}

func runKeyList(jsonOutput, includeInactive bool) error {
	keys, store, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	infos := keys.ListKeys(context.Background(), includeInactive)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Println("No API keys found. Use 'keywarden key create' to create one.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-10s %-8s %-20s\n", "KEY ID", "NAME", "ROLE", "ACTIVE", "EXPIRES")
	fmt.Printf("%-38s %-20s %-10s %-8s %-20s\n", "------", "----", "----", "------", "-------")
	for _, k := range infos {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-38s %-20s %-10s %-8s %-20s\n", k.KeyID, k.Name, k.Role, active, expires)
	}

	return nil
}

// ---------- key info ----------

func newKeyInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <key-id>",
		Short: "Show metadata for one API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyInfo(args[0])
		},
	}
	return cmd
}

func runKeyInfo(keyID string) error {
	keys, store, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	info := keys.GetKeyInfo(context.Background(), keyID)
	if info == nil {
		return fmt.Errorf("no API key with ID %q", keyID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Deactivate an API key, preventing any further authenticated requests. Revocation is permanent; revoked keys cannot be reactivated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runKeyRevoke(keyID string, force bool) error {
	if !force && !confirm(fmt.Sprintf("Permanently revoke key %s?", keyID)) {
		fmt.Println("Aborted.")
		return nil
	}

	keys, store, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	found, err := keys.Revoke(context.Background(), keyID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if !found {
		return fmt.Errorf("no API key with ID %q", keyID)
	}

	fmt.Printf("Revoked API key %s\n", keyID)
	return nil
}

// ---------- key rotate ----------

func newKeyRotateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Rotate an API key's secret",
		Long:  "Replace the secret of an active key. The key ID and metadata are unchanged; the old secret stops working immediately.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRotate(args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runKeyRotate(keyID string, force bool) error {
	if !force && !confirm(fmt.Sprintf("Rotate key %s? The current secret stops working immediately.", keyID)) {
		fmt.Println("Aborted.")
		return nil
	}

	keys, store, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	generated, ok, err := keys.Rotate(context.Background(), keyID)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}
	if !ok {
		return fmt.Errorf("no active API key with ID %q (revoked keys cannot be rotated)", keyID)
	}

	fmt.Println("API key rotated:")
	fmt.Println()
	fmt.Printf("  Key ID:     %s\n", generated.KeyID)
	fmt.Printf("  New secret: %s\n", generated.Secret)
	fmt.Println()
	fmt.Println("  " + model.SecretWarning)
	return nil
}

// ---------- key cleanup ----------

func newKeyCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Deactivate expired API keys",
		Long:  "Deactivate every active key whose expiry has passed. Expired keys already fail validation; cleanup makes their state explicit in listings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCleanup()
		},
	}
	return cmd
}

func runKeyCleanup() error {
	keys, store, err := openKeyService()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := keys.CleanupExpired(context.Background())
	if err != nil {
		return fmt.Errorf("cleanup expired keys: %w", err)
	}

	fmt.Printf("Deactivated %d expired key(s)\n", n)
	return nil
}
