package metrics_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/internal/metrics"
	"github.com/systmms/securekv/internal/sealer"
	"github.com/systmms/securekv/pkg/securekv"
	"github.com/systmms/securekv/tests/fakes"
)

func TestMetricsRecordsObservations(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveOperation("put", securekv.BackendVault, securekv.ResultOK, 2*time.Millisecond)
	m.ObserveOperation("put", securekv.BackendVault, securekv.ResultOK, 3*time.Millisecond)
	m.ObserveOperation("get", securekv.BackendEncryptedFallback, securekv.ResultSoftFailure, time.Millisecond)
	m.ObserveSoftFailure(securekv.ReasonDecrypt)
	m.ObserveBackendSelected(securekv.BackendEncryptedFallback)

	expected := `
# HELP securekv_operations_total Total number of store operations by outcome
# TYPE securekv_operations_total counter
securekv_operations_total{backend="encrypted-fallback",op="get",result="soft_failure"} 1
securekv_operations_total{backend="vault",op="put",result="ok"} 2
# HELP securekv_soft_failures_total Reads that returned null or a raw string instead of failing
# TYPE securekv_soft_failures_total counter
securekv_soft_failures_total{reason="decrypt"} 1
# HELP securekv_backend_selected_total Number of times each backend was selected
# TYPE securekv_backend_selected_total counter
securekv_backend_selected_total{backend="encrypted-fallback"} 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"securekv_operations_total", "securekv_soft_failures_total", "securekv_backend_selected_total")
	require.NoError(t, err)

	series, err := testutil.GatherAndCount(reg, "securekv_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestMetricsDoubleRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}

func TestMetricsAsStoreObserver(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c, err := sealer.New(sealer.AES256GCM, bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	vault := fakes.NewFakeVault()
	fallback := fakes.NewFakePersistentMap()

	store, err := securekv.New(securekv.Options{
		Vault:    vault,
		Fallback: fallback,
		Cipher:   c,
		Observer: m,
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "session", securekv.String("token")))

	vault.SetAvailable(false)
	require.NoError(t, store.Put(ctx, "session", securekv.String("token")))
	fallback.Tamper("session", "garbage")

	v, err := store.Get(ctx, "session")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SoftFailures(securekv.ReasonDecrypt)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendSelected(securekv.BackendVault)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BackendSelected(securekv.BackendEncryptedFallback)))
}
