// Package vault provides the secure vault backends a store prefers when they
// are reachable: the OS keychain and the managed secret services of GCP, AWS
// and Azure. Every type here implements securekv.Vault.
//
// Store keys are opaque strings. The keychain uses them directly as account
// names; cloud vaults hex-encode them under a configurable prefix so any key
// satisfies the service's naming rules.
package vault
