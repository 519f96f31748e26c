package commands

import "errors"

// ErrSilent makes main exit non-zero without printing anything.
var ErrSilent = errors.New("silent failure")
