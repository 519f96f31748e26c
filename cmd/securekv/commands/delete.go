package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	kverrors "github.com/systmms/securekv/internal/errors"
)

func NewDeleteCommand(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "delete KEY",
		Aliases: []string{"rm"},
		Short:   "Remove the value stored under a key",
		Long: `Remove a key from the backend currently in use. Deleting a key that
does not exist succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			ctx := cmd.Context()

			store, cfg, err := rt.Store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, key); err != nil {
				return kverrors.StoreFailure(err, cfg.Vault.Type)
			}
			rt.Logger.Info("Deleted %q", key)
			return nil
		},
	}
}

func NewExistsCommand(rt *Runtime) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "exists KEY",
		Short: "Report whether a key has a stored value",
		Long: `Print true or false depending on whether KEY has an entry on the
backend currently in use. With --quiet nothing is printed and the exit status
carries the answer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			ctx := cmd.Context()

			store, cfg, err := rt.Store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			found, err := store.Exists(ctx, key)
			if err != nil {
				return kverrors.StoreFailure(err, cfg.Vault.Type)
			}
			if quiet {
				if !found {
					return ErrSilent
				}
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), found)
			return err
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Exit non-zero instead of printing false")

	return cmd
}
