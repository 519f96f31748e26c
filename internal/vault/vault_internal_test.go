package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestItemName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{prefix: "securekv", key: "session", want: "securekv-" + hex.EncodeToString([]byte("session"))},
		{prefix: "", key: "a/b", want: "612f62"},
		{prefix: "x", key: "../escape", want: "x-2e2e2f657363617065"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, itemName(tt.prefix, tt.key))
	}
}

func TestItemNameLongKey(t *testing.T) {
	t.Parallel()

	key := strings.Repeat("k", 500)
	name := itemName("securekv", key)
	assert.LessOrEqual(t, len(name), 127)
	assert.True(t, strings.HasPrefix(name, "securekv-h"))
	assert.NotEqual(t, name, itemName("securekv", key+"x"))
	assert.Equal(t, "/securekv/"+encodeKey(key), parameterName("/securekv", key))

	exact := strings.Repeat("k", maxHexName/2)
	assert.Equal(t, hex.EncodeToString([]byte(exact)), encodeKey(exact))
}

func TestParameterName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{path: "/securekv", want: "/securekv/6b"},
		{path: "securekv/", want: "/securekv/6b"},
		{path: "/a/b/", want: "/a/b/6b"},
		{path: "/", want: "/6b"},
		{path: "", want: "/6b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parameterName(tt.path, "k"), tt.path)
	}
}

func TestProbeCache(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	calls := 0
	var result error
	c := newProbeCache(time.Minute, func(context.Context) error {
		calls++
		return result
	})
	c.now = func() time.Time { return now }
	ctx := context.Background()

	assert.NoError(t, c.check(ctx))
	assert.NoError(t, c.check(ctx))
	assert.Equal(t, 1, calls, "second check within ttl is cached")

	result = errors.New("unreachable")
	now = now.Add(2 * time.Minute)
	assert.Error(t, c.check(ctx))
	assert.Equal(t, 2, calls)

	result = nil
	c.invalidate()
	assert.NoError(t, c.check(ctx))
	assert.Equal(t, 3, calls)
}

func TestProbeCacheNonPositiveTTL(t *testing.T) {
	t.Parallel()

	calls := 0
	c := newProbeCache(-1, func(context.Context) error {
		calls++
		return nil
	})
	for i := 0; i < 3; i++ {
		_ = c.check(context.Background())
	}
	assert.Equal(t, 3, calls)
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := &Error{Vault: "keychain", Op: "get", Name: "svc/acct", Err: ErrAccessDenied}
	assert.Equal(t, "keychain get error for svc/acct: vault access denied", err.Error())
	assert.ErrorIs(t, err, ErrAccessDenied)

	bare := &Error{Vault: "aws-ssm", Op: "probe", Name: "/securekv"}
	assert.Equal(t, "aws-ssm probe error for /securekv", bare.Error())
}
