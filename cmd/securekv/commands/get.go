package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	kverrors "github.com/systmms/securekv/internal/errors"
	"github.com/systmms/securekv/pkg/securekv"
)

func NewGetCommand(rt *Runtime) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under a key",
		Long: `Retrieve and print a single value.

Strings are printed raw with no trailing newline, which makes the command
suitable for scripting. Other values are printed as JSON. With --json the
output also names the kind and the backend that served the read.

Examples:
  export TOKEN=$(securekv get session)
  securekv get profile --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			ctx := cmd.Context()

			store, cfg, err := rt.Store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			backend := store.Backend(ctx)
			value, err := store.Get(ctx, key)
			if err != nil {
				return kverrors.StoreFailure(err, cfg.Vault.Type)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				output := map[string]interface{}{
					"key":     key,
					"kind":    value.Kind().String(),
					"value":   value,
					"backend": backend.String(),
				}
				if err := encoder.Encode(output); err != nil {
					return fmt.Errorf("failed to encode JSON: %w", err)
				}
				return nil
			}

			if value.IsNull() {
				return kverrors.UserError{
					Message:    fmt.Sprintf("No value stored under %q", key),
					Suggestion: fmt.Sprintf("Store one with 'securekv put %s VALUE'", key),
				}
			}
			return printValue(out, value)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format with metadata")

	return cmd
}

func printValue(w io.Writer, v securekv.Value) error {
	if s, ok := v.AsString(); ok {
		_, err := fmt.Fprint(w, s)
		return err
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
