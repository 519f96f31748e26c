package securekv_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/internal/sealer"
	"github.com/systmms/securekv/pkg/securekv"
	"github.com/systmms/securekv/tests/fakes"
	"github.com/systmms/securekv/tests/testutil"
)

func newSealer(t *testing.T, fill byte) *sealer.Sealer {
	t.Helper()
	s, err := sealer.New(sealer.AES256GCM, testutil.TestKey(fill))
	require.NoError(t, err)
	return s
}

type harness struct {
	vault    *fakes.FakeVault
	fallback *fakes.FakePersistentMap
	obs      *recordingObserver
	store    *securekv.Store
}

func newHarness(t *testing.T, vaultAvailable bool, opts ...func(*securekv.Options)) *harness {
	t.Helper()
	h := &harness{
		vault:    fakes.NewFakeVault(),
		fallback: fakes.NewFakePersistentMap(),
		obs:      &recordingObserver{},
	}
	h.vault.SetAvailable(vaultAvailable)

	o := securekv.Options{
		Vault:    h.vault,
		Fallback: h.fallback,
		Cipher:   newSealer(t, 7),
		Observer: h.obs,
	}
	for _, opt := range opts {
		opt(&o)
	}
	store, err := securekv.New(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.store = store
	return h
}

func mustRecord(t *testing.T, v any) securekv.Value {
	t.Helper()
	r, err := securekv.NewRecord(v)
	require.NoError(t, err)
	return r
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	values := map[string]securekv.Value{
		"string":       securekv.String("s3cr3t-token"),
		"empty string": securekv.String(""),
		"json-looking": securekv.String(`{"not":"a record"}`),
		"digits":       securekv.String("42"),
		"number":       securekv.Number(42),
		"fraction":     securekv.Number(-0.125),
		"bool":         securekv.Bool(true),
		"false":        securekv.Bool(false),
		"object":       mustRecord(t, map[string]any{"userId": 42, "active": true}),
		"array":        mustRecord(t, []any{"a", 1, map[string]any{"nested": []int{1, 2}}}),
	}

	for _, vaultAvailable := range []bool{true, false} {
		for name, want := range values {
			vaultAvailable, name, want := vaultAvailable, name, want
			t.Run(fmt.Sprintf("vault=%v/%s", vaultAvailable, name), func(t *testing.T) {
				t.Parallel()
				ctx := context.Background()
				h := newHarness(t, vaultAvailable)

				require.NoError(t, h.store.Put(ctx, "k", want))
				got, err := h.store.Get(ctx, "k")
				require.NoError(t, err)
				assert.True(t, want.Equal(got), "got %s", got.Kind())
				assert.Equal(t, want.Kind(), got.Kind())
			})
		}
	}
}

func TestStoreSessionScenario(t *testing.T) {
	t.Parallel()

	for _, vaultAvailable := range []bool{true, false} {
		vaultAvailable := vaultAvailable
		t.Run(fmt.Sprintf("vault=%v", vaultAvailable), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := newHarness(t, vaultAvailable)

			require.NoError(t, h.store.PutAny(ctx, "session", map[string]any{"userId": 42, "active": true}))

			got, err := h.store.Get(ctx, "session")
			require.NoError(t, err)
			require.Equal(t, securekv.KindRecord, got.Kind())

			var session struct {
				UserID int  `json:"userId"`
				Active bool `json:"active"`
			}
			require.NoError(t, got.Decode(&session))
			assert.Equal(t, 42, session.UserID)
			assert.True(t, session.Active)

			require.NoError(t, h.store.Delete(ctx, "session"))
			got, err = h.store.Get(ctx, "session")
			require.NoError(t, err)
			assert.True(t, got.IsNull())
		})
	}
}

func TestStoreMissingKeyIsNull(t *testing.T) {
	t.Parallel()

	for _, vaultAvailable := range []bool{true, false} {
		h := newHarness(t, vaultAvailable)
		got, err := h.store.Get(context.Background(), "never-set")
		require.NoError(t, err)
		assert.True(t, got.IsNull())
		assert.Equal(t, securekv.ResultNotFound, h.obs.lastResult("get"))
	}
}

func TestStoreFallbackConfidentiality(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, false)

	secrets := map[string]securekv.Value{
		"token":   securekv.String("offline-secret-value"),
		"profile": mustRecord(t, map[string]any{"email": "ada@example.com", "plan": "enterprise"}),
	}
	for k, v := range secrets {
		require.NoError(t, h.store.Put(ctx, k, v))
	}

	for _, needle := range []string{"offline-secret-value", "ada@example.com", "enterprise", "kv1:"} {
		for k := range secrets {
			raw, ok := h.fallback.Raw(k)
			require.True(t, ok)
			assert.NotContains(t, raw, needle)
		}
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, vaultAvailable := range []bool{true, false} {
		ctx := context.Background()
		h := newHarness(t, vaultAvailable)

		require.NoError(t, h.store.Put(ctx, "k", securekv.String("v")))
		require.NoError(t, h.store.Delete(ctx, "k"))
		require.NoError(t, h.store.Delete(ctx, "k"))
		require.NoError(t, h.store.Delete(ctx, "never-set"))

		got, err := h.store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, got.IsNull())
	}
}

func TestStoreTamperedEntryIsNull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, false)

	require.NoError(t, h.store.Put(ctx, "victim", securekv.String("one")))
	require.NoError(t, h.store.Put(ctx, "bystander", securekv.String("two")))

	raw, _ := h.fallback.Raw("victim")
	flipped := []byte(raw)
	mid := len(flipped) / 2
	if flipped[mid] == 'A' {
		flipped[mid] = 'B'
	} else {
		flipped[mid] = 'A'
	}

	for name, token := range map[string]string{
		"flipped":   string(flipped),
		"truncated": raw[:len(raw)/2],
		"garbage":   "not a token at all!",
		"empty":     "",
	} {
		h.fallback.Tamper("victim", token)

		got, err := h.store.Get(ctx, "victim")
		require.NoError(t, err, name)
		assert.True(t, got.IsNull(), name)

		other, err := h.store.Get(ctx, "bystander")
		require.NoError(t, err, name)
		assert.Equal(t, securekv.String("two"), other, name)
	}
	assert.Equal(t, 4, h.obs.softFailures[securekv.ReasonDecrypt])
}

func TestStoreTokensAreBoundToTheirKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, false)

	require.NoError(t, h.store.Put(ctx, "admin-token", securekv.String("root")))
	raw, _ := h.fallback.Raw("admin-token")
	h.fallback.Tamper("guest-token", raw)

	got, err := h.store.Get(ctx, "guest-token")
	require.NoError(t, err)
	assert.True(t, got.IsNull())

	found, err := h.store.Exists(ctx, "guest-token")
	require.NoError(t, err)
	assert.True(t, found, "exists does not decrypt")
}

func TestStoreWrongKeyIsNull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fallback := fakes.NewFakePersistentMap()

	writer, err := securekv.New(securekv.Options{Fallback: fallback, Cipher: newSealer(t, 1)})
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Put(ctx, "k", securekv.String("v")))

	reader, err := securekv.New(securekv.Options{Fallback: fallback, Cipher: newSealer(t, 2)})
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, got.IsNull())
}

func TestStoreBackendSwitch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("vault available", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)

		require.NoError(t, h.store.Put(ctx, "k", securekv.String("v")))
		_, err := h.store.Get(ctx, "k")
		require.NoError(t, err)

		assert.Equal(t, 0, h.fallback.Len())
		assert.Equal(t, map[string]string{"k": "kv1:s:v"}, h.vault.Items())
		assert.Equal(t, securekv.BackendVault, h.store.Backend(ctx))
	})

	t.Run("vault unavailable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)

		require.NoError(t, h.store.Put(ctx, "k", securekv.String("v")))
		_, err := h.store.Get(ctx, "k")
		require.NoError(t, err)

		assert.Empty(t, h.vault.Items())
		assert.Equal(t, 0, h.vault.CallCount("SetItem"))
		assert.Equal(t, 0, h.vault.CallCount("GetItem"))
		raw, ok := h.fallback.Raw("k")
		require.True(t, ok)
		assert.NotEqual(t, "kv1:s:v", raw)
		assert.Equal(t, securekv.BackendEncryptedFallback, h.store.Backend(ctx))
	})

	t.Run("reselected on every call", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)

		require.NoError(t, h.store.Put(ctx, "k", securekv.String("in-vault")))
		h.vault.SetAvailable(false)

		got, err := h.store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, got.IsNull(), "fallback has no entry yet")

		require.NoError(t, h.store.Put(ctx, "k", securekv.String("in-fallback")))
		h.vault.SetAvailable(true)

		got, err = h.store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, securekv.String("in-vault"), got)
		assert.Equal(t, 4, h.vault.CallCount("IsAvailable"))
	})
}

func TestStoreVaultOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vault := fakes.NewFakeVault()

	store, err := securekv.New(securekv.Options{Vault: vault})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(ctx, "k", securekv.Number(1)))

	vault.SetAvailable(false)
	assert.Equal(t, securekv.BackendNone, store.Backend(ctx))

	err = store.Put(ctx, "k", securekv.Number(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, securekv.ErrBackendUnavailable))

	var se *securekv.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "put", se.Op)
	assert.Equal(t, securekv.BackendNone, se.Backend)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, securekv.ErrBackendUnavailable)
	assert.ErrorIs(t, store.Delete(ctx, "k"), securekv.ErrBackendUnavailable)
}

func TestStoreInvalidKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)

	_, err := h.store.Get(ctx, "")
	assert.ErrorIs(t, err, securekv.ErrInvalidKey)
	assert.ErrorIs(t, h.store.Put(ctx, "", securekv.String("v")), securekv.ErrInvalidKey)
	assert.ErrorIs(t, h.store.Delete(ctx, ""), securekv.ErrInvalidKey)
	_, err = h.store.Exists(ctx, "")
	assert.ErrorIs(t, err, securekv.ErrInvalidKey)

	kind, ok := securekv.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, securekv.InvalidKey, kind)
	assert.Equal(t, 0, h.vault.CallCount("IsAvailable"), "no backend is selected for an invalid key")
}

func TestStoreReservedKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true, func(o *securekv.Options) {
		o.ReservedKeys = []string{"securekv-master"}
	})
	h.vault.WithItem("securekv-master", "key-material")

	err := h.store.Put(ctx, "securekv-master", securekv.String("oops"))
	assert.ErrorIs(t, err, securekv.ErrInvalidKey)
	assert.ErrorIs(t, err, securekv.ErrReservedKey)
	assert.ErrorIs(t, h.store.Delete(ctx, "securekv-master"), securekv.ErrReservedKey)
	_, err = h.store.Get(ctx, "securekv-master")
	assert.ErrorIs(t, err, securekv.ErrReservedKey)
	_, err = h.store.Exists(ctx, "securekv-master")
	assert.ErrorIs(t, err, securekv.ErrReservedKey)

	assert.Equal(t, "key-material", h.vault.Items()["securekv-master"])
	require.NoError(t, h.store.Put(ctx, "other", securekv.String("ok")))
}

func TestStoreSerializationError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)

	err := h.store.Put(ctx, "nan", securekv.Number(math.NaN()))
	assert.ErrorIs(t, err, securekv.ErrSerialization)

	err = h.store.PutAny(ctx, "chan", make(chan int))
	assert.ErrorIs(t, err, securekv.ErrSerialization)

	assert.Empty(t, h.vault.Items())
}

func TestStoreBackendErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cause := errors.New("connection reset by peer")

	t.Run("vault", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)
		h.vault.WithError("k", cause)

		err := h.store.Put(ctx, "k", securekv.String("very-secret-value"))
		require.Error(t, err)
		assert.ErrorIs(t, err, securekv.ErrBackendUnavailable)
		assert.ErrorIs(t, err, cause)
		assert.NotContains(t, err.Error(), "very-secret-value")
		assert.Contains(t, err.Error(), "via vault")

		_, err = h.store.Get(ctx, "k")
		assert.ErrorIs(t, err, securekv.ErrBackendUnavailable)
		assert.Equal(t, securekv.ResultError, h.obs.lastResult("get"))
	})

	t.Run("fallback", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, false)
		h.fallback.WithError("k", cause)

		err := h.store.Put(ctx, "k", securekv.String("very-secret-value"))
		assert.ErrorIs(t, err, securekv.ErrBackendUnavailable)
		assert.NotContains(t, err.Error(), "very-secret-value")

		_, err = h.store.Exists(ctx, "k")
		assert.ErrorIs(t, err, securekv.ErrBackendUnavailable)
		assert.ErrorIs(t, h.store.Delete(ctx, "k"), securekv.ErrBackendUnavailable)
	})
}

type failingCipher struct{}

func (failingCipher) Seal([]byte, []byte) (string, error) { return "", errors.New("entropy exhausted") }
func (failingCipher) Open(string, []byte) ([]byte, error) { return nil, errors.New("entropy exhausted") }

func TestStoreSealFailureIsHard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fallback := fakes.NewFakePersistentMap()

	store, err := securekv.New(securekv.Options{Fallback: fallback, Cipher: failingCipher{}})
	require.NoError(t, err)

	err = store.Put(ctx, "k", securekv.String("v"))
	assert.ErrorIs(t, err, securekv.ErrCrypto)
	assert.Equal(t, 0, fallback.Len(), "nothing is written unencrypted")
}

func TestStoreUndecodableVaultPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, true)
	h.vault.WithItem("broken", "kv1:j:{not json")

	got, err := h.store.Get(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, securekv.String("{not json"), got)
	assert.Equal(t, 1, h.obs.softFailures[securekv.ReasonDecodeValue])
	assert.Equal(t, securekv.ResultSoftFailure, h.obs.lastResult("get"))
}

func TestStoreLegacyEncoding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes untagged payloads", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true, func(o *securekv.Options) { o.Encoding = securekv.EncodingLegacy })

		require.NoError(t, h.store.Put(ctx, "s", securekv.String("plain")))
		require.NoError(t, h.store.Put(ctx, "n", securekv.Number(3)))
		assert.Equal(t, map[string]string{"s": "plain", "n": "3"}, h.vault.Items())
	})

	t.Run("reads guess the encoding", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true)
		h.vault.WithItem("plain", "hello").
			WithItem("number", "42").
			WithItem("record", `{"b":1,"a":2}`)

		got, err := h.store.Get(ctx, "plain")
		require.NoError(t, err)
		assert.Equal(t, securekv.String("hello"), got)

		got, err = h.store.Get(ctx, "number")
		require.NoError(t, err)
		assert.Equal(t, securekv.Number(42), got)

		got, err = h.store.Get(ctx, "record")
		require.NoError(t, err)
		assert.Equal(t, mustRecord(t, map[string]int{"a": 2, "b": 1}), got)
	})

	t.Run("legacy read disabled", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, true, func(o *securekv.Options) { o.DisableLegacyRead = true })
		h.vault.WithItem("number", "42")

		got, err := h.store.Get(ctx, "number")
		require.NoError(t, err)
		assert.Equal(t, securekv.String("42"), got)
	})
}

func TestStoreExists(t *testing.T) {
	t.Parallel()

	for _, vaultAvailable := range []bool{true, false} {
		ctx := context.Background()
		h := newHarness(t, vaultAvailable)

		found, err := h.store.Exists(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, h.store.Put(ctx, "k", securekv.Bool(false)))
		found, err = h.store.Exists(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
	}
}

func TestStoreConcurrentUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			assert.NoError(t, h.store.Put(ctx, key, securekv.Number(float64(i))))
			got, err := h.store.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, securekv.Number(float64(i)), got)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, h.fallback.Len())
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	_, err := securekv.New(securekv.Options{})
	assert.Error(t, err)

	_, err = securekv.New(securekv.Options{Fallback: fakes.NewFakePersistentMap()})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cipher"))
}

func TestStoreLogsNeverCarryValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := testutil.NewTestLogger(t)
	h := newHarness(t, false, func(o *securekv.Options) { o.Logger = log })

	require.NoError(t, h.store.Put(ctx, "k", securekv.String("offline-secret-value")))
	h.fallback.Tamper("k", "garbage")
	_, err := h.store.Get(ctx, "k")
	require.NoError(t, err)

	h.fallback.WithError("broken", errors.New("disk full"))
	_ = h.store.Put(ctx, "broken", securekv.String("offline-secret-value"))

	log.AssertLogCount(t, "warn", 1)
	log.AssertContains(t, `"k"`)
	log.AssertNotContains(t, "offline-secret-value")
}

type recordingObserver struct {
	mu           sync.Mutex
	results      map[string]string
	softFailures map[string]int
	selected     map[securekv.BackendKind]int
}

func (r *recordingObserver) ObserveOperation(op string, _ securekv.BackendKind, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]string{}
	}
	r.results[op] = result
}

func (r *recordingObserver) ObserveSoftFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.softFailures == nil {
		r.softFailures = map[string]int{}
	}
	r.softFailures[reason]++
}

func (r *recordingObserver) ObserveBackendSelected(backend securekv.BackendKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		r.selected = map[securekv.BackendKind]int{}
	}
	r.selected[backend]++
}

func (r *recordingObserver) lastResult(op string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[op]
}
