package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	kverrors "github.com/systmms/securekv/internal/errors"
)

// CurrentVersion is the only configuration version understood.
const CurrentVersion = 1

// Vault types
const (
	VaultNone              = "none"
	VaultKeychain          = "keychain"
	VaultGCPSecretManager  = "gcp-secretmanager"
	VaultAWSSecretsManager = "aws-secretsmanager"
	VaultAWSParameterStore = "aws-ssm"
	VaultAzureKeyVault     = "azure-keyvault"
)

// Fallback types
const (
	FallbackNone     = "none"
	FallbackMemory   = "memory"
	FallbackDir      = "dir"
	FallbackBolt     = "bolt"
	FallbackPostgres = "postgres"
	FallbackMySQL    = "mysql"
	FallbackS3       = "s3"
)

// Key source types
const (
	KeyEnv        = "env"
	KeyFile       = "file"
	KeyPassphrase = "passphrase"
	KeyVault      = "vault"
)

// Config is the parsed securekv.yaml.
type Config struct {
	Version    int              `yaml:"version"`
	Namespace  string           `yaml:"namespace"`
	Vault      VaultConfig      `yaml:"vault"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Encoding   EncodingConfig   `yaml:"encoding"`
}

// VaultConfig selects and configures the preferred backend. Only the
// fields of the selected type are read.
type VaultConfig struct {
	Type     string        `yaml:"type"`
	Prefix   string        `yaml:"prefix,omitempty"`
	ProbeTTL time.Duration `yaml:"probe_ttl,omitempty"`

	// keychain
	Probe         bool   `yaml:"probe"`
	AllowHeadless bool   `yaml:"allow_headless,omitempty"`
	Service       string `yaml:"service,omitempty"`

	// gcp-secretmanager
	ProjectID          string            `yaml:"project_id,omitempty"`
	CredentialsFile    string            `yaml:"credentials_file,omitempty"`
	ImpersonateAccount string            `yaml:"impersonate_service_account,omitempty"`
	Labels             map[string]string `yaml:"labels,omitempty"`

	// aws-secretsmanager, aws-ssm
	Region     string `yaml:"region,omitempty"`
	Profile    string `yaml:"profile,omitempty"`
	RoleARN    string `yaml:"role_arn,omitempty"`
	ExternalID string `yaml:"external_id,omitempty"`
	KMSKeyID   string `yaml:"kms_key_id,omitempty"`
	Path       string `yaml:"path,omitempty"`

	// azure-keyvault
	VaultURL           string `yaml:"vault_url,omitempty"`
	TenantID           string `yaml:"tenant_id,omitempty"`
	ClientID           string `yaml:"client_id,omitempty"`
	ClientSecretEnv    string `yaml:"client_secret_env,omitempty"`
	CertificatePath    string `yaml:"certificate_path,omitempty"`
	UseManagedIdentity bool   `yaml:"use_managed_identity,omitempty"`
	UserAssignedID     string `yaml:"user_assigned_id,omitempty"`
	PurgeOnDelete      bool   `yaml:"purge_on_delete,omitempty"`

	// Endpoint overrides the service endpoint (emulators, LocalStack).
	Endpoint string `yaml:"endpoint,omitempty"`
}

// FallbackConfig selects the persistent map behind the encrypted fallback.
type FallbackConfig struct {
	Type   string `yaml:"type"`
	Path   string `yaml:"path,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	DSNEnv string `yaml:"dsn_env,omitempty"`
	Table  string `yaml:"table,omitempty"`

	// s3
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Profile  string `yaml:"profile,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// EncryptionConfig configures the fallback cipher.
type EncryptionConfig struct {
	Algorithm string    `yaml:"algorithm"`
	Key       KeyConfig `yaml:"key"`
}

// KeyConfig says where the fallback key comes from.
type KeyConfig struct {
	Type          string `yaml:"type"`
	Env           string `yaml:"env,omitempty"`
	File          string `yaml:"file,omitempty"`
	PassphraseEnv string `yaml:"passphrase_env,omitempty"`
	Salt          string `yaml:"salt,omitempty"`
	Item          string `yaml:"item,omitempty"`
	// Derive runs the key material through HKDF with the namespace.
	Derive bool `yaml:"derive,omitempty"`
}

// EncodingConfig controls the payload format.
type EncodingConfig struct {
	Tagged     bool `yaml:"tagged"`
	LegacyRead bool `yaml:"legacy_read"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version:   CurrentVersion,
		Namespace: "securekv",
		Vault: VaultConfig{
			Type:  VaultKeychain,
			Probe: true,
		},
		Fallback: FallbackConfig{
			Type: FallbackDir,
		},
		Encryption: EncryptionConfig{
			Algorithm: "aes-256-gcm",
			Key: KeyConfig{
				Type: KeyEnv,
				Env:  "SECUREKV_KEY",
			},
		},
		Encoding: EncodingConfig{
			Tagged:     true,
			LegacyRead: true,
		},
	}
}

// DefaultPath returns $SECUREKV_CONFIG or securekv.yaml in the working
// directory.
func DefaultPath() string {
	if p := os.Getenv("SECUREKV_CONFIG"); p != "" {
		return p
	}
	return "securekv.yaml"
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kverrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Create securekv.yaml or pass --config",
			}
		}
		return nil, kverrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns Default when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// Parse decodes YAML, checks it against the schema, fills defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, kverrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, kverrors.ConfigError{
			Message:    err.Error(),
			Suggestion: "Compare the file against the documented securekv.yaml layout",
		}
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks rules the schema can't express.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return kverrors.ConfigError{
			Field:      "version",
			Value:      c.Version,
			Message:    "unsupported configuration version",
			Suggestion: fmt.Sprintf("Set 'version: %d'", CurrentVersion),
		}
	}

	if c.Vault.Type == VaultNone && c.Fallback.Type == FallbackNone {
		return kverrors.ConfigError{
			Field:      "fallback.type",
			Value:      c.Fallback.Type,
			Message:    "vault and fallback can't both be none",
			Suggestion: "Configure a vault, a fallback, or both",
		}
	}

	if c.Fallback.Type == FallbackPostgres || c.Fallback.Type == FallbackMySQL {
		if c.Fallback.DSN == "" && c.Fallback.DSNEnv == "" {
			return kverrors.ConfigError{
				Field:      "fallback.dsn",
				Message:    fmt.Sprintf("%s fallback needs a connection string", c.Fallback.Type),
				Suggestion: "Set fallback.dsn_env to the variable holding the DSN",
			}
		}
	}

	if c.Fallback.Type == FallbackS3 && c.Fallback.Bucket == "" {
		return kverrors.ConfigError{
			Field:      "fallback.bucket",
			Message:    "s3 fallback needs a bucket",
			Suggestion: "Set fallback.bucket to an existing bucket",
		}
	}

	if c.Fallback.Type != FallbackNone {
		if err := c.validateKey(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateKey() error {
	k := c.Encryption.Key
	switch k.Type {
	case KeyEnv:
		if k.Env == "" {
			return kverrors.ConfigError{Field: "encryption.key.env", Message: "environment variable name is required"}
		}
	case KeyFile:
		if k.File == "" {
			return kverrors.ConfigError{Field: "encryption.key.file", Message: "key file path is required"}
		}
	case KeyPassphrase:
		if k.PassphraseEnv == "" {
			return kverrors.ConfigError{Field: "encryption.key.passphrase_env", Message: "passphrase variable name is required"}
		}
		if len(k.Salt) < 16 {
			return kverrors.ConfigError{
				Field:      "encryption.key.salt",
				Message:    "salt must be at least 16 characters",
				Suggestion: "Generate one with 'securekv keygen' and keep it with the config",
			}
		}
	case KeyVault:
		if c.Vault.Type == VaultNone {
			return kverrors.ConfigError{
				Field:      "encryption.key.type",
				Value:      k.Type,
				Message:    "a vault key source needs vault.type to be set",
				Suggestion: "Pick another key source or configure a vault",
			}
		}
		if k.Item == "" {
			return kverrors.ConfigError{Field: "encryption.key.item", Message: "vault item name is required"}
		}
	}
	return nil
}

// BoltPath returns the bbolt file, defaulting to store.db under dir.
func (f FallbackConfig) BoltPath(dir string) string {
	if f.Path != "" {
		return f.Path
	}
	return filepath.Join(dir, "store.db")
}

// ResolveDSN returns the inline DSN or the value of DSNEnv.
func (f FallbackConfig) ResolveDSN() (string, error) {
	if f.DSN != "" {
		return f.DSN, nil
	}
	dsn := os.Getenv(f.DSNEnv)
	if dsn == "" {
		return "", kverrors.ConfigError{
			Field:      "fallback.dsn_env",
			Value:      f.DSNEnv,
			Message:    "environment variable is empty",
			Suggestion: fmt.Sprintf("export %s=<connection string>", f.DSNEnv),
		}
	}
	return dsn, nil
}

func (c *Config) expandPaths() {
	c.Fallback.Path = expandHome(c.Fallback.Path)
	c.Encryption.Key.File = expandHome(c.Encryption.Key.File)
	c.Vault.CredentialsFile = expandHome(c.Vault.CredentialsFile)
	c.Vault.CertificatePath = expandHome(c.Vault.CertificatePath)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
