package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/securekv/internal/config"
	kverrors "github.com/systmms/securekv/internal/errors"
	"github.com/systmms/securekv/pkg/securekv"
)

// Check statuses
const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusDisabled = "disabled"
	statusError    = "error"
)

// CheckResult is one row of the doctor report.
type CheckResult struct {
	Name       string
	Status     string
	Message    string
	Suggestion string
}

type validator interface {
	Validate(ctx context.Context) error
}

func NewDoctorCommand(rt *Runtime) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check vault, fallback and key configuration",
		Long: `Verify that the store can be used and report which backend it would
pick right now.

This command checks:
- Configuration file validity
- Vault reachability and authentication
- Fallback storage
- Encryption key loading

An unreachable vault is reported as degraded when the encrypted fallback can
take over.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt.Logger.Info("Checking securekv configuration...")
			cfg, err := rt.Config()
			if err != nil {
				rt.Logger.Error("Configuration error: %v", err)
				return err
			}

			results, selected := runChecks(cmd.Context(), rt, cfg)
			displayCheckResults(cmd.OutOrStdout(), results, verbose)

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nSelected backend: %s\n", selected)

			failed := 0
			for _, r := range results {
				if r.Status == statusError {
					failed++
				}
			}
			if failed > 0 || selected == securekv.BackendNone {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			rt.Logger.Info("All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failed checks")

	return cmd
}

func runChecks(ctx context.Context, rt *Runtime, cfg *config.Config) ([]CheckResult, securekv.BackendKind) {
	b := rt.builder()
	results := []CheckResult{{
		Name:    "config",
		Status:  statusHealthy,
		Message: fmt.Sprintf("namespace %q", cfg.Namespace),
	}}

	vaultResult := CheckResult{Name: "vault (" + cfg.Vault.Type + ")"}
	v, err := b.Vault(ctx, cfg)
	switch {
	case err != nil:
		vaultResult.Status = statusError
		vaultResult.Message = shortMessage(err)
		vaultResult.Suggestion = suggestionOf(err)
	case v == nil:
		vaultResult.Status = statusDisabled
	default:
		defer closeQuietly(v)
		if err := checkVault(ctx, v); err != nil {
			vaultResult.Status = statusDegraded
			vaultResult.Message = err.Error()
			vaultResult.Suggestion = suggestionOf(kverrors.VaultError(cfg.Vault.Type, "probe", err))
		} else {
			vaultResult.Status = statusHealthy
			vaultResult.Message = "reachable"
		}
	}
	results = append(results, vaultResult)

	fallbackResult := CheckResult{Name: "fallback (" + cfg.Fallback.Type + ")"}
	keyResult := CheckResult{Name: "encryption key (" + cfg.Encryption.Key.Type + ")"}
	m, err := b.Fallback(ctx, cfg)
	switch {
	case err != nil:
		fallbackResult.Status = statusError
		fallbackResult.Message = shortMessage(err)
		fallbackResult.Suggestion = suggestionOf(err)
		keyResult.Status = statusDisabled
	case m == nil:
		fallbackResult.Status = statusDisabled
		keyResult.Status = statusDisabled
	default:
		defer closeQuietly(m)
		fallbackResult.Status = statusHealthy
		fallbackResult.Message = "opened"

		c, err := b.Cipher(ctx, cfg, v)
		if err != nil {
			keyResult.Status = statusError
			keyResult.Message = shortMessage(err)
			keyResult.Suggestion = suggestionOf(err)
		} else {
			keyResult.Status = statusHealthy
			keyResult.Message = c.Algorithm().String()
			_ = c.Close()
		}
	}
	results = append(results, fallbackResult, keyResult)

	selected := securekv.BackendNone
	switch {
	case vaultResult.Status == statusHealthy:
		selected = securekv.BackendVault
	case fallbackResult.Status == statusHealthy && keyResult.Status == statusHealthy:
		selected = securekv.BackendEncryptedFallback
	}
	return results, selected
}

func checkVault(ctx context.Context, v securekv.Vault) error {
	if val, ok := v.(validator); ok {
		return val.Validate(ctx)
	}
	if !v.IsAvailable(ctx) {
		return errors.New("vault reports itself unavailable")
	}
	return nil
}

func suggestionOf(err error) string {
	var ue kverrors.UserError
	if errors.As(err, &ue) {
		return ue.Suggestion
	}
	var ce kverrors.ConfigError
	if errors.As(err, &ce) {
		return ce.Suggestion
	}
	return ""
}

// shortMessage keeps table rows on one line; suggestions are shown
// separately with --verbose.
func shortMessage(err error) string {
	var ue kverrors.UserError
	if errors.As(err, &ue) {
		if ue.Details != "" {
			return ue.Message + ": " + ue.Details
		}
		return ue.Message
	}
	var ce kverrors.ConfigError
	if errors.As(err, &ce) {
		return ce.Field + ": " + ce.Message
	}
	return err.Error()
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// displayCheckResults shows check results in a formatted table
func displayCheckResults(out io.Writer, results []CheckResult, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case statusHealthy:
			status = "✓ " + status
		case statusDegraded:
			status = "⚠ " + status
		case statusError:
			status = "✗ " + status
		default:
			status = "- " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", result.Name, status, result.Message)
	}
	_ = w.Flush()

	if !verbose {
		return
	}
	for _, result := range results {
		if result.Suggestion != "" {
			_, _ = fmt.Fprintf(out, "\n%s:\n  💡 %s\n", result.Name, result.Suggestion)
		}
	}
}
