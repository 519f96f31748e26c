// Package builder assembles a securekv.Store from a parsed configuration.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/securekv/internal/config"
	kverrors "github.com/systmms/securekv/internal/errors"
	"github.com/systmms/securekv/internal/keysource"
	"github.com/systmms/securekv/internal/logging"
	"github.com/systmms/securekv/internal/metrics"
	"github.com/systmms/securekv/internal/persist"
	"github.com/systmms/securekv/internal/sealer"
	"github.com/systmms/securekv/internal/vault"
	"github.com/systmms/securekv/pkg/securekv"
)

// VaultFactory creates the vault for a vault type.
type VaultFactory func(ctx context.Context, cfg *config.Config) (securekv.Vault, error)

// FallbackFactory creates the persistent map for a fallback type.
type FallbackFactory func(ctx context.Context, cfg *config.Config) (securekv.PersistentMap, error)

// Builder turns configuration into store collaborators.
type Builder struct {
	vaults     map[string]VaultFactory
	fallbacks  map[string]FallbackFactory
	logger     *logging.Logger
	registerer prometheus.Registerer
	metrics    *metrics.Metrics
}

// New creates a Builder with the built-in vault and fallback types.
func New(logger *logging.Logger) *Builder {
	b := &Builder{
		vaults:    make(map[string]VaultFactory),
		fallbacks: make(map[string]FallbackFactory),
		logger:    logger,
	}

	b.RegisterVault(config.VaultKeychain, newKeychain)
	b.RegisterVault(config.VaultGCPSecretManager, newGCPSecretManager)
	b.RegisterVault(config.VaultAWSSecretsManager, newAWSSecretsManager)
	b.RegisterVault(config.VaultAWSParameterStore, newAWSParameterStore)
	b.RegisterVault(config.VaultAzureKeyVault, newAzureKeyVault)

	b.RegisterFallback(config.FallbackMemory, newMemory)
	b.RegisterFallback(config.FallbackDir, newDir)
	b.RegisterFallback(config.FallbackBolt, newBolt)
	b.RegisterFallback(config.FallbackPostgres, newSQL(persist.Postgres))
	b.RegisterFallback(config.FallbackMySQL, newSQL(persist.MySQL))
	b.RegisterFallback(config.FallbackS3, newS3)

	return b
}

// RegisterVault registers (or replaces) the factory for a vault type.
func (b *Builder) RegisterVault(vaultType string, f VaultFactory) {
	b.vaults[vaultType] = f
}

// RegisterFallback registers (or replaces) the factory for a fallback type.
func (b *Builder) RegisterFallback(fallbackType string, f FallbackFactory) {
	b.fallbacks[fallbackType] = f
}

// WithRegisterer makes built stores report to reg. The collectors are
// registered once and shared by every store the Builder builds.
func (b *Builder) WithRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	b.metrics = nil
	return b
}

// Metrics returns the shared collectors, or nil without a registerer.
func (b *Builder) Metrics() *metrics.Metrics {
	if b.metrics == nil && b.registerer != nil {
		b.metrics = metrics.New(b.registerer)
	}
	return b.metrics
}

// VaultTypes returns the registered vault types, sorted.
func (b *Builder) VaultTypes() []string {
	types := make([]string, 0, len(b.vaults))
	for t := range b.vaults {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Vault creates the configured vault. It returns nil for type none.
func (b *Builder) Vault(ctx context.Context, cfg *config.Config) (securekv.Vault, error) {
	if cfg.Vault.Type == config.VaultNone {
		return nil, nil
	}
	f, ok := b.vaults[cfg.Vault.Type]
	if !ok {
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Vault.Type)
	}
	v, err := f(ctx, cfg)
	if err != nil {
		return nil, kverrors.VaultError(cfg.Vault.Type, "setup", err)
	}
	return v, nil
}

// Fallback creates the configured persistent map. It returns nil for type
// none.
func (b *Builder) Fallback(ctx context.Context, cfg *config.Config) (securekv.PersistentMap, error) {
	if cfg.Fallback.Type == config.FallbackNone {
		return nil, nil
	}
	f, ok := b.fallbacks[cfg.Fallback.Type]
	if !ok {
		return nil, fmt.Errorf("unknown fallback type: %s", cfg.Fallback.Type)
	}
	m, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s fallback: %w", cfg.Fallback.Type, err)
	}
	return m, nil
}

// Cipher loads the key and creates the sealer. v is only consulted for the
// vault key source.
func (b *Builder) Cipher(ctx context.Context, cfg *config.Config, v securekv.Vault) (*sealer.Sealer, error) {
	alg, err := sealer.ParseAlgorithm(cfg.Encryption.Algorithm)
	if err != nil {
		return nil, kverrors.ConfigError{
			Field:   "encryption.algorithm",
			Value:   cfg.Encryption.Algorithm,
			Message: err.Error(),
		}
	}

	src, err := KeySource(cfg, v)
	if err != nil {
		return nil, err
	}
	key, err := src.Key(ctx)
	if err != nil {
		return nil, kverrors.UserError{
			Message:    "Failed to load the encryption key",
			Details:    err.Error(),
			Suggestion: keySuggestion(cfg.Encryption.Key),
			Err:        err,
		}
	}
	return sealer.New(alg, key)
}

// KeySource maps the key configuration to a keysource.Source.
func KeySource(cfg *config.Config, v securekv.Vault) (keysource.Source, error) {
	k := cfg.Encryption.Key
	var src keysource.Source
	switch k.Type {
	case config.KeyEnv:
		src = keysource.Env{Name: k.Env}
	case config.KeyFile:
		src = keysource.File{Path: k.File}
	case config.KeyPassphrase:
		src = keysource.Passphrase{Env: k.PassphraseEnv, Salt: []byte(k.Salt)}
	case config.KeyVault:
		if v == nil {
			return nil, kverrors.ConfigError{
				Field:   "encryption.key.type",
				Value:   k.Type,
				Message: "no vault is configured to read the key from",
			}
		}
		src = keysource.VaultItem{Vault: v, Item: k.Item}
	default:
		return nil, kverrors.ConfigError{
			Field:   "encryption.key.type",
			Value:   k.Type,
			Message: "unknown key source",
		}
	}
	if k.Derive {
		src = keysource.Derived{Source: src, Namespace: cfg.Namespace}
	}
	return src, nil
}

func keySuggestion(k config.KeyConfig) string {
	switch k.Type {
	case config.KeyEnv:
		return fmt.Sprintf("export %s=$(securekv keygen)", k.Env)
	case config.KeyFile:
		return fmt.Sprintf("securekv keygen > %s && chmod 600 %s", k.File, k.File)
	case config.KeyPassphrase:
		return fmt.Sprintf("export %s with the store passphrase", k.PassphraseEnv)
	case config.KeyVault:
		return fmt.Sprintf("securekv keygen --store-item %s", k.Item)
	}
	return ""
}

// Build assembles the store described by cfg.
func (b *Builder) Build(ctx context.Context, cfg *config.Config) (*securekv.Store, error) {
	opts := securekv.Options{
		DisableLegacyRead: !cfg.Encoding.LegacyRead,
	}
	if cfg.Encryption.Key.Type == config.KeyVault && cfg.Encryption.Key.Item != "" {
		opts.ReservedKeys = []string{cfg.Encryption.Key.Item}
	}
	if !cfg.Encoding.Tagged {
		opts.Encoding = securekv.EncodingLegacy
	}
	if b.logger != nil {
		opts.Logger = b.logger.With("namespace", cfg.Namespace)
	}
	if m := b.Metrics(); m != nil {
		opts.Observer = m
	}

	var cleanup []any
	fail := func(err error) (*securekv.Store, error) {
		for _, c := range cleanup {
			if closer, ok := c.(io.Closer); ok {
				_ = closer.Close()
			}
		}
		return nil, err
	}

	v, err := b.Vault(ctx, cfg)
	if err != nil {
		// A vault that can't be set up counts as unavailable, unless there
		// is no fallback or the fallback key lives in that vault.
		if cfg.Fallback.Type == config.FallbackNone || cfg.Encryption.Key.Type == config.KeyVault {
			return fail(err)
		}
		if b.logger != nil {
			b.logger.Warn("Vault %s unavailable, using the encrypted fallback: %v", cfg.Vault.Type, err)
		}
		v = &unavailableVault{err: err}
	}
	if v != nil {
		opts.Vault = v
		cleanup = append(cleanup, v)
	}

	m, err := b.Fallback(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if m != nil {
		opts.Fallback = m
		cleanup = append(cleanup, m)

		c, err := b.Cipher(ctx, cfg, v)
		if err != nil {
			return fail(err)
		}
		opts.Cipher = c
		cleanup = append(cleanup, c)
	}

	store, err := securekv.New(opts)
	if err != nil {
		return fail(err)
	}
	if b.logger != nil {
		b.logger.Debug("store %q built: vault=%s fallback=%s", cfg.Namespace, cfg.Vault.Type, cfg.Fallback.Type)
	}
	return store, nil
}

func newKeychain(_ context.Context, cfg *config.Config) (securekv.Vault, error) {
	service := cfg.Vault.Service
	if service == "" {
		service = cfg.Namespace
	}
	return vault.NewKeychain(vault.KeychainOptions{
		Service:       service,
		Probe:         cfg.Vault.Probe,
		AllowHeadless: cfg.Vault.AllowHeadless,
	})
}

func vaultPrefix(cfg *config.Config) string {
	if cfg.Vault.Prefix != "" {
		return cfg.Vault.Prefix
	}
	return cfg.Namespace
}

func newGCPSecretManager(ctx context.Context, cfg *config.Config) (securekv.Vault, error) {
	return vault.NewGCPSecretManager(ctx, vault.GCPConfig{
		ProjectID:             cfg.Vault.ProjectID,
		Prefix:                vaultPrefix(cfg),
		ServiceAccountKeyPath: cfg.Vault.CredentialsFile,
		ImpersonateAccount:    cfg.Vault.ImpersonateAccount,
		Endpoint:              cfg.Vault.Endpoint,
		Labels:                cfg.Vault.Labels,
		ProbeTTL:              cfg.Vault.ProbeTTL,
	})
}

func awsConfig(cfg *config.Config) vault.AWSConfig {
	return vault.AWSConfig{
		Region:      cfg.Vault.Region,
		Profile:     cfg.Vault.Profile,
		Endpoint:    cfg.Vault.Endpoint,
		RoleARN:     cfg.Vault.RoleARN,
		ExternalID:  cfg.Vault.ExternalID,
		SessionName: "securekv-" + cfg.Namespace,
	}
}

func newAWSSecretsManager(ctx context.Context, cfg *config.Config) (securekv.Vault, error) {
	return vault.NewAWSSecretsManager(ctx, vault.AWSSecretsManagerConfig{
		AWS:      awsConfig(cfg),
		Prefix:   vaultPrefix(cfg),
		KMSKeyID: cfg.Vault.KMSKeyID,
		ProbeTTL: cfg.Vault.ProbeTTL,
	})
}

func newAWSParameterStore(ctx context.Context, cfg *config.Config) (securekv.Vault, error) {
	path := cfg.Vault.Path
	if path == "" {
		path = "/securekv/" + cfg.Namespace
	}
	return vault.NewAWSParameterStore(ctx, vault.AWSParameterStoreConfig{
		AWS:      awsConfig(cfg),
		Path:     path,
		KMSKeyID: cfg.Vault.KMSKeyID,
		ProbeTTL: cfg.Vault.ProbeTTL,
	})
}

func newAzureKeyVault(_ context.Context, cfg *config.Config) (securekv.Vault, error) {
	var secret string
	if cfg.Vault.ClientSecretEnv != "" {
		secret = os.Getenv(cfg.Vault.ClientSecretEnv)
	}
	return vault.NewAzureKeyVault(vault.AzureConfig{
		VaultURL:           cfg.Vault.VaultURL,
		Prefix:             vaultPrefix(cfg),
		TenantID:           cfg.Vault.TenantID,
		ClientID:           cfg.Vault.ClientID,
		ClientSecret:       secret,
		CertificatePath:    cfg.Vault.CertificatePath,
		UseManagedIdentity: cfg.Vault.UseManagedIdentity,
		UserAssignedID:     cfg.Vault.UserAssignedID,
		PurgeOnDelete:      cfg.Vault.PurgeOnDelete,
		ProbeTTL:           cfg.Vault.ProbeTTL,
	})
}

func newMemory(_ context.Context, _ *config.Config) (securekv.PersistentMap, error) {
	return persist.NewMemory(), nil
}

func fallbackDir(cfg *config.Config) string {
	if cfg.Fallback.Path != "" {
		return cfg.Fallback.Path
	}
	return persist.DefaultDir(cfg.Namespace)
}

func newDir(_ context.Context, cfg *config.Config) (securekv.PersistentMap, error) {
	return persist.NewDir(fallbackDir(cfg))
}

func newBolt(_ context.Context, cfg *config.Config) (securekv.PersistentMap, error) {
	path := cfg.Fallback.BoltPath(persist.DefaultDir(cfg.Namespace))
	return persist.OpenBolt(path, cfg.Fallback.Bucket)
}

func newSQL(dialect persist.Dialect) FallbackFactory {
	return func(ctx context.Context, cfg *config.Config) (securekv.PersistentMap, error) {
		dsn, err := cfg.Fallback.ResolveDSN()
		if err != nil {
			return nil, err
		}
		return persist.OpenSQL(ctx, dialect, dsn, cfg.Fallback.Table)
	}
}

func newS3(ctx context.Context, cfg *config.Config) (securekv.PersistentMap, error) {
	awsCfg, err := vault.LoadAWSConfig(ctx, vault.AWSConfig{
		Region:  cfg.Fallback.Region,
		Profile: cfg.Fallback.Profile,
	})
	if err != nil {
		return nil, err
	}
	prefix := cfg.Fallback.Prefix
	if prefix == "" {
		prefix = "securekv/" + cfg.Namespace
	}
	return persist.OpenS3(ctx, awsCfg, cfg.Fallback.Endpoint, persist.S3Config{
		Bucket:   cfg.Fallback.Bucket,
		Prefix:   prefix,
		KMSKeyID: cfg.Fallback.KMSKeyID,
	})
}
