// Package fakes provides test doubles for securekv collaborators and the
// cloud SDK clients the vault backends wrap.
//
// Fakes are manually implemented (not generated) and keep real state, so a
// value written through one call is visible to the next. Error injection
// hooks let tests drive the failure paths.
//
// Usage:
//
//	client := fakes.NewFakeGCPSecretManagerClient()
//	v, _ := vault.NewGCPSecretManager(ctx, vault.GCPConfig{ProjectID: "p"},
//	    vault.WithGCPClient(client))
//	// Test vault methods...
package fakes
