package securekv_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/securekv/pkg/securekv"
)

func TestValueAccessors(t *testing.T) {
	t.Parallel()

	s, ok := securekv.String("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = securekv.Number(1).AsString()
	assert.False(t, ok)

	n, ok := securekv.Number(2.5).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 2.5, n)

	b, ok := securekv.Bool(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = securekv.String("true").AsBool()
	assert.False(t, ok)

	var zero securekv.Value
	assert.True(t, zero.IsNull())
	assert.Equal(t, securekv.KindNull, zero.Kind())
	assert.True(t, zero.Equal(securekv.Null()))
}

func TestRecordsAreCanonical(t *testing.T) {
	t.Parallel()

	a, err := securekv.NewRecord(map[string]any{"userId": 42, "active": true})
	require.NoError(t, err)

	var b securekv.Value
	require.NoError(t, json.Unmarshal([]byte(`{ "active": true, "userId": 42.0 }`), &b))

	type session struct {
		Active bool `json:"active"`
		UserID int  `json:"userId"`
	}
	c, err := securekv.NewRecord(session{Active: true, UserID: 42})
	require.NoError(t, err)

	assert.Equal(t, securekv.KindRecord, a.Kind())
	assert.True(t, a.Equal(c))
	assert.False(t, a.Equal(securekv.String(`{"active":true,"userId":42}`)))

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":true,"userId":42}`, string(data))
	assert.Equal(t, securekv.KindRecord, b.Kind())
}

func TestNewRecordRejectsScalars(t *testing.T) {
	t.Parallel()

	for _, v := range []any{"s", 1, true, nil} {
		_, err := securekv.NewRecord(v)
		assert.Error(t, err, "%v", v)
	}
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want securekv.Value
	}{
		{nil, securekv.Null()},
		{"s", securekv.String("s")},
		{true, securekv.Bool(true)},
		{7, securekv.Number(7)},
		{int64(-7), securekv.Number(-7)},
		{uint8(255), securekv.Number(255)},
		{float32(0.5), securekv.Number(0.5)},
		{json.Number("12.25"), securekv.Number(12.25)},
		{securekv.Bool(false), securekv.Bool(false)},
	}

	for _, tt := range tests {
		got, err := securekv.FromAny(tt.in)
		require.NoError(t, err, "%T", tt.in)
		assert.Equal(t, tt.want, got, "%T", tt.in)
	}

	got, err := securekv.FromAny(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, securekv.KindRecord, got.Kind())

	_, err = securekv.FromAny(func() {})
	assert.Error(t, err)
}

func TestValueInterface(t *testing.T) {
	t.Parallel()

	r, err := securekv.NewRecord(map[string]any{"list": []any{"a", 1}})
	require.NoError(t, err)

	assert.Nil(t, securekv.Null().Interface())
	assert.Equal(t, "s", securekv.String("s").Interface())
	assert.Equal(t, 3.0, securekv.Number(3).Interface())
	assert.Equal(t, false, securekv.Bool(false).Interface())
	assert.Equal(t, map[string]any{"list": []any{"a", 1.0}}, r.Interface())
}

func TestValueDecode(t *testing.T) {
	t.Parallel()

	var n int
	require.NoError(t, securekv.Number(9).Decode(&n))
	assert.Equal(t, 9, n)

	var s string
	require.NoError(t, securekv.String("hi").Decode(&s))
	assert.Equal(t, "hi", s)

	var wrong int
	assert.Error(t, securekv.String("hi").Decode(&wrong))
}

func TestValueUnmarshalJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	var v securekv.Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":`), &v))
	assert.Error(t, v.UnmarshalJSON([]byte(`1 2`)))
}

func TestValueFormattingHidesPayload(t *testing.T) {
	t.Parallel()

	v := securekv.String("hunter2")
	for _, verb := range []string{"%v", "%s", "%+v", "%#v"} {
		out := fmt.Sprintf(verb, v)
		assert.NotContains(t, out, "hunter2", verb)
		assert.Contains(t, out, "string", verb)
	}

	r, err := securekv.NewRecord(map[string]string{"password": "hunter2"})
	require.NoError(t, err)
	assert.NotContains(t, fmt.Sprint(r), "hunter2")
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "record", securekv.KindRecord.String())
	assert.Equal(t, "null", securekv.KindNull.String())
	assert.Equal(t, "vault", securekv.BackendVault.String())
	assert.Equal(t, "encrypted-fallback", securekv.BackendEncryptedFallback.String())
	assert.Equal(t, "none", securekv.BackendNone.String())
}
