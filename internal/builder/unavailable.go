package builder

import (
	"context"

	"github.com/systmms/securekv/pkg/securekv"
)

// unavailableVault stands in for a vault whose client could not be set up.
// The store sees it as unreachable and uses the fallback.
type unavailableVault struct {
	err error
}

// Validate returns the setup failure.
func (u *unavailableVault) Validate(context.Context) error { return u.err }

func (u *unavailableVault) IsAvailable(context.Context) bool { return false }

func (u *unavailableVault) SetItem(context.Context, string, string) error { return u.err }

func (u *unavailableVault) GetItem(context.Context, string) (string, bool, error) {
	return "", false, u.err
}

func (u *unavailableVault) DeleteItem(context.Context, string) error { return u.err }

var _ securekv.Vault = (*unavailableVault)(nil)
