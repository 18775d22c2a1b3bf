package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{name: "string", in: " a1 ", want: "a1", ok: true},
		{name: "decomposed string", in: "cafe\u0301", want: "caf\u00e9", ok: true},
		{name: "int", in: 1, want: "1", ok: true},
		{name: "int64", in: int64(42), want: "42", ok: true},
		{name: "integral float", in: float64(3), want: "3", ok: true},
		{name: "fractional float", in: 1.5, want: "1.5", ok: true},
		{name: "json number", in: json.Number("7"), want: "7", ok: true},
		{name: "nil", in: nil},
		{name: "blank", in: "  "},
		{name: "undefined", in: "undefined"},
		{name: "null", in: "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Key(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSameKey(t *testing.T) {
	require.True(t, SameKey(1, "1"))
	require.True(t, SameKey("caf\u00e9", "cafe\u0301"), "canonically equivalent strings share a key")
	require.True(t, SameKey(float64(2), int64(2)))
	require.False(t, SameKey(nil, nil))
	require.False(t, SameKey("a", "b"))
}

func TestIsIdentity(t *testing.T) {
	require.True(t, IsIdentity("x"))
	require.True(t, IsIdentity(uint8(1)))
	require.False(t, IsIdentity(map[string]any{}))
	require.False(t, IsIdentity(nil))
	require.False(t, IsIdentity(true))
}

func TestClone_IsDeep(t *testing.T) {
	src := map[string]any{"tags": []any{"a", map[string]any{"k": "v"}}}
	dst := CloneDocument(src)

	dst["tags"].([]any)[1].(map[string]any)["k"] = "changed"
	require.Equal(t, "v", src["tags"].([]any)[1].(map[string]any)["k"])
	require.Nil(t, CloneDocument(nil))
}

func TestPluckAndDocument(t *testing.T) {
	payload := map[string]any{"data": map[string]any{"item": map[string]any{"id": "p1"}}}

	require.Equal(t, map[string]any{"id": "p1"}, Document(Pluck(payload, "data.item")))
	require.Nil(t, Pluck(payload, "data.missing.deeper"))
	require.Equal(t, payload, Pluck(payload, ""))

	require.Equal(t, map[string]any{"id": 1}, Document([]any{map[string]any{"id": 1}}))
	require.Nil(t, Document([]any{map[string]any{}, map[string]any{}}))
	require.Nil(t, Document("scalar"))

	require.Len(t, Documents([]any{map[string]any{}, "skip", map[string]any{}}), 2)
	require.Nil(t, Documents(nil))
}

func TestIdentityParams(t *testing.T) {
	ids, all, err := identityParams(nil, "id")
	require.NoError(t, err)
	require.True(t, all)
	require.Empty(t, ids)

	ids, _, err = identityParams(map[string]any{"id": 5}, "id")
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, ids)

	_, _, err = identityParams(map[string]any{"name": "x"}, "id")
	require.ErrorIs(t, err, ErrMissingIdentity)

	ids, _, err = identityParams([]any{"a", nil, 2}, "id")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "2"}, ids)

	ids, _, err = identityParams("solo", "id")
	require.NoError(t, err)
	require.Equal(t, []string{"solo"}, ids)

	_, _, err = identityParams(struct{}{}, "id")
	require.ErrorIs(t, err, ErrUnsupportedParams)
}
