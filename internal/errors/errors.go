package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/securekv/pkg/securekv"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreFailure turns a store error into a UserError carrying a suggestion
// that fits its kind and backend. Other errors pass through SimplifyError.
func StoreFailure(err error, vaultType string) error {
	if err == nil {
		return nil
	}
	var se *securekv.StoreError
	if !errors.As(err, &se) {
		return SimplifyError(err)
	}

	ue := UserError{
		Message: fmt.Sprintf("Failed to %s %q", se.Op, se.Key),
		Err:     err,
	}
	if se.Err != nil {
		ue.Details = se.Err.Error()
	}

	switch se.Kind {
	case securekv.InvalidKey:
		ue.Message = "Key must not be empty"
		ue.Suggestion = "Pass a non-empty key name"
		if errors.Is(se.Err, securekv.ErrReservedKey) {
			ue.Message = fmt.Sprintf("Key %q holds the fallback encryption key", se.Key)
			ue.Suggestion = "Pick another key name. Changing this item makes fallback entries unreadable"
		}
	case securekv.SerializationError:
		ue.Suggestion = "Only strings, numbers, booleans and JSON objects or arrays can be stored"
	case securekv.CryptoError:
		ue.Suggestion = "Check the encryption key: it must be 32 bytes, base64 or hex encoded. Generate one with 'securekv keygen'"
	case securekv.BackendUnavailable:
		if se.Backend == securekv.BackendVault {
			ue.Suggestion = getVaultSuggestion(vaultType, se.Err)
		}
		if ue.Suggestion == "" && IsRetryable(se.Err) {
			ue.Suggestion = fmt.Sprintf("The %s looks temporarily unreachable. Try again in a moment", se.Backend)
		}
		if ue.Suggestion == "" {
			ue.Suggestion = "Run 'securekv doctor' to see which backend is reachable"
		}
	}
	return ue
}

// VaultError enhances vault-specific errors with context
func VaultError(vaultType string, operation string, err error) error {
	ue := UserError{
		Message:    fmt.Sprintf("%s vault error during %s", vaultType, operation),
		Suggestion: getVaultSuggestion(vaultType, err),
		Err:        err,
	}
	if err != nil {
		ue.Details = err.Error()
	}
	return ue
}

// getVaultSuggestion returns helpful suggestions based on vault type and error
func getVaultSuggestion(vaultType string, err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	switch vaultType {
	case "keychain":
		if strings.Contains(errStr, "GUI environment") {
			return "The keychain is unavailable over SSH or in CI. Set vault.allow_headless or rely on the encrypted fallback"
		}
		if strings.Contains(errStr, "access denied") {
			return "Allow securekv in the keychain access prompt, or unlock the login keychain"
		}
		if strings.Contains(errStr, "not supported") {
			return "Use a cloud vault or set vault.type to none on this platform"
		}
		if strings.Contains(errStr, "dbus") || strings.Contains(errStr, "org.freedesktop.secrets") {
			return "Start a Secret Service provider such as gnome-keyring-daemon"
		}

	case "gcp-secretmanager":
		if strings.Contains(errStr, "PermissionDenied") {
			return "Grant roles/secretmanager.admin (or secretAccessor plus secretVersionAdder) on the project"
		}
		if strings.Contains(errStr, "Unauthenticated") || strings.Contains(errStr, "credentials") {
			return "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
		}

	case "aws-secretsmanager", "aws-ssm":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			if vaultType == "aws-ssm" {
				return "Check IAM permissions for ssm:GetParameter, ssm:PutParameter and ssm:DeleteParameter"
			}
			return "Check IAM permissions for secretsmanager:GetSecretValue, PutSecretValue, CreateSecret and DeleteSecret"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "azure-keyvault":
		if strings.Contains(errStr, "403") || strings.Contains(errStr, "Forbidden") {
			return "Assign the 'Key Vault Secrets Officer' role to the identity in use"
		}
		if strings.Contains(errStr, "soft-deleted") {
			return "Set vault.purge_on_delete: true, or recover the secret with 'az keyvault secret recover'"
		}
		if strings.Contains(errStr, "DefaultAzureCredential") {
			return "Run 'az login' or configure a managed identity"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and vault configuration"
	}

	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}
	var ce ConfigError
	if errors.As(err, &ce) {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
