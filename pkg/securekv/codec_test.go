package securekv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	record, err := NewRecord(map[string]any{"b": []int{1}, "a": "x"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		value  Value
		tagged string
		legacy string
	}{
		{"string", String("hello"), "kv1:s:hello", "hello"},
		{"empty string", String(""), "kv1:s:", ""},
		{"string that looks tagged", String("kv1:j:1"), "kv1:s:kv1:j:1", "kv1:j:1"},
		{"number", Number(1.5), "kv1:j:1.5", "1.5"},
		{"bool", Bool(true), "kv1:j:true", "true"},
		{"null", Null(), "kv1:j:null", "null"},
		{"record", record, `kv1:j:{"a":"x","b":[1]}`, `{"a":"x","b":[1]}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := encodeValue(tt.value, EncodingTagged)
			require.NoError(t, err)
			assert.Equal(t, tt.tagged, got)

			got, err = encodeValue(tt.value, EncodingLegacy)
			require.NoError(t, err)
			assert.Equal(t, tt.legacy, got)
		})
	}
}

func TestEncodeValueRejectsNonFinite(t *testing.T) {
	t.Parallel()

	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := encodeValue(Number(f), EncodingTagged)
		assert.Error(t, err)
	}
}

func TestDecodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		payload    string
		legacyRead bool
		want       Value
		wantErr    bool
	}{
		{"tagged string", "kv1:s:42", false, String("42"), false},
		{"tagged string keeps JSON text", `kv1:s:{"a":1}`, true, String(`{"a":1}`), false},
		{"tagged number", "kv1:j:42", false, Number(42), false},
		{"tagged bool", "kv1:j:false", false, Bool(false), false},
		{"tagged null", "kv1:j:null", false, Null(), false},
		{"broken tagged JSON", "kv1:j:{", true, String("{"), true},
		{"trailing data", "kv1:j:1 2", false, String("1 2"), true},
		{"legacy number", "42", true, Number(42), false},
		{"legacy plain string", "hello world", true, String("hello world"), false},
		{"legacy quoted string", `"quoted"`, true, String("quoted"), false},
		{"legacy disabled", "42", false, String("42"), false},
		{"empty payload", "", true, String(""), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := decodeValue(tt.payload, tt.legacyRead)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	record, err := NewRecord([]any{map[string]any{"z": nil, "a": 1e21}, "s"})
	require.NoError(t, err)

	for _, v := range []Value{String(""), String("kv1:s:x"), String("null"), Number(-3), Bool(true), Null(), record} {
		payload, err := encodeValue(v, EncodingTagged)
		require.NoError(t, err)

		for _, legacyRead := range []bool{true, false} {
			got, err := decodeValue(payload, legacyRead)
			require.NoError(t, err)
			assert.Equal(t, v, got, "payload %q", payload)
		}
	}
}
