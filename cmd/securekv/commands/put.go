package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	kverrors "github.com/systmms/securekv/internal/errors"
	"github.com/systmms/securekv/pkg/securekv"
)

func NewPutCommand(rt *Runtime) *cobra.Command {
	var (
		asJSON   bool
		asNumber bool
		asBool   bool
		stdin    bool
	)

	cmd := &cobra.Command{
		Use:   "put KEY [VALUE]",
		Short: "Store a value under a key",
		Long: `Store a value in the vault, or in the encrypted fallback when the
vault is unavailable.

The value is stored as a string unless one of --json, --number or --bool
is given. Use --stdin to keep the value out of shell history.

Examples:
  securekv put session "s3cr3t-token"
  securekv put retries 3 --number
  securekv put profile '{"user":"ada"}' --json
  pass show api-token | securekv put api-token --stdin`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var raw string
			switch {
			case stdin && len(args) == 2:
				return kverrors.UserError{
					Message:    "VALUE and --stdin are mutually exclusive",
					Suggestion: "Pass the value either as an argument or on stdin",
				}
			case stdin:
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				raw = strings.TrimSuffix(string(data), "\n")
			case len(args) == 2:
				raw = args[1]
			default:
				return kverrors.UserError{
					Message:    "A value is required",
					Suggestion: fmt.Sprintf("securekv put %s VALUE, or pipe it with --stdin", key),
				}
			}

			value, err := parseValue(raw, asJSON, asNumber, asBool)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, cfg, err := rt.Store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Put(ctx, key, value); err != nil {
				return kverrors.StoreFailure(err, cfg.Vault.Type)
			}
			rt.Logger.Info("Stored %q (%s)", key, value.Kind())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Parse VALUE as JSON")
	cmd.Flags().BoolVar(&asNumber, "number", false, "Parse VALUE as a number")
	cmd.Flags().BoolVar(&asBool, "bool", false, "Parse VALUE as true or false")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Read VALUE from stdin")
	cmd.MarkFlagsMutuallyExclusive("json", "number", "bool")

	return cmd
}

func parseValue(raw string, asJSON, asNumber, asBool bool) (securekv.Value, error) {
	switch {
	case asJSON:
		var v securekv.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return securekv.Value{}, kverrors.UserError{
				Message:    "VALUE is not valid JSON",
				Details:    err.Error(),
				Suggestion: "Quote the JSON document so the shell passes it as one argument",
			}
		}
		return v, nil
	case asNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return securekv.Value{}, kverrors.UserError{
				Message: fmt.Sprintf("%q is not a number", raw),
			}
		}
		return securekv.Number(f), nil
	case asBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return securekv.Value{}, kverrors.UserError{
				Message:    fmt.Sprintf("%q is not a boolean", raw),
				Suggestion: "Use true or false",
			}
		}
		return securekv.Bool(b), nil
	default:
		return securekv.String(raw), nil
	}
}
