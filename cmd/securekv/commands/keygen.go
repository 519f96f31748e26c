package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	kverrors "github.com/systmms/securekv/internal/errors"
	"github.com/systmms/securekv/internal/keysource"
)

func NewKeygenCommand(rt *Runtime) *cobra.Command {
	var (
		hexOutput bool
		salt      bool
		storeItem string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random encryption key",
		Long: `Generate a random 32-byte key for the encrypted fallback and print it
base64 encoded.

With --store-item the key is written to the configured vault under that item
name instead of being printed, for use with a 'vault' key source.
With --salt a random salt for the 'passphrase' key source is printed.

Examples:
  export SECUREKV_KEY=$(securekv keygen)
  securekv keygen > ~/.config/securekv/key && chmod 600 ~/.config/securekv/key
  securekv keygen --store-item securekv-master`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if salt {
				buf := make([]byte, 16)
				if _, err := rand.Read(buf); err != nil {
					return fmt.Errorf("failed to generate salt: %w", err)
				}
				_, err := fmt.Fprintln(out, hex.EncodeToString(buf))
				return err
			}

			key, err := keysource.Generate()
			if err != nil {
				return err
			}
			encoded := keysource.Encode(key)
			if hexOutput {
				encoded = hex.EncodeToString(key)
			}

			if storeItem == "" {
				_, err = fmt.Fprintln(out, encoded)
				return err
			}

			ctx := cmd.Context()
			cfg, err := rt.Config()
			if err != nil {
				return err
			}
			v, err := rt.builder().Vault(ctx, cfg)
			if err != nil {
				return err
			}
			if v == nil {
				return kverrors.UserError{
					Message:    "--store-item needs a vault",
					Suggestion: "Set vault.type in the configuration",
				}
			}
			defer closeQuietly(v)

			if _, exists, err := v.GetItem(ctx, storeItem); err != nil {
				return kverrors.VaultError(cfg.Vault.Type, "get", err)
			} else if exists {
				return kverrors.UserError{
					Message:    fmt.Sprintf("Vault item %q already exists", storeItem),
					Suggestion: "Replacing the key makes existing fallback entries unreadable. Pick another item name",
				}
			}
			if err := v.SetItem(ctx, storeItem, encoded); err != nil {
				return kverrors.VaultError(cfg.Vault.Type, "set", err)
			}
			rt.Logger.Info("Stored new key in %s item %q", cfg.Vault.Type, storeItem)
			return nil
		},
	}

	cmd.Flags().BoolVar(&hexOutput, "hex", false, "Print the key hex encoded")
	cmd.Flags().BoolVar(&salt, "salt", false, "Print a random passphrase salt instead of a key")
	cmd.Flags().StringVar(&storeItem, "store-item", "", "Store the key in the configured vault under this item name")
	cmd.MarkFlagsMutuallyExclusive("salt", "store-item")

	return cmd
}
