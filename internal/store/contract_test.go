package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// backends returns every Store implementation that keeps its own data.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(""),
		"sqlite": sqlite,
	}
}

func titles(t *testing.T, payload any) []string {
	t.Helper()
	var out []string
	for _, doc := range Documents(payload) {
		out = append(out, doc["title"].(string))
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := st.Post(ctx, "/post", map[string]any{"title": "A"}, nil)
			require.NoError(t, err)
			id, ok := Key(Document(created)["id"])
			require.True(t, ok, "post assigns an identity")

			_, err = st.Post(ctx, "/post", map[string]any{"id": "b", "title": "B"}, nil)
			require.NoError(t, err)
			_, err = st.Put(ctx, "/post", map[string]any{"id": "c", "title": "C"}, nil)
			require.NoError(t, err)

			_, err = st.Put(ctx, "/post", map[string]any{"title": "no id"}, nil)
			require.ErrorIs(t, err, ErrMissingIdentity)

			all, err := st.Get(ctx, "/post", nil, nil)
			require.NoError(t, err)
			require.Equal(t, []string{"A", "B", "C"}, titles(t, all))

			some, err := st.Get(ctx, "/post", []any{"c", "missing", id}, nil)
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"A", "C"}, titles(t, some))

			one, err := st.Get(ctx, "/post", map[string]any{"id": "b"}, nil)
			require.NoError(t, err)
			require.Equal(t, "B", Document(one)["title"])

			none, err := st.Get(ctx, "/post", map[string]any{"id": "zzz"}, nil)
			require.NoError(t, err)
			require.Nil(t, none)

			_, err = st.Put(ctx, "/post", map[string]any{"id": "b", "title": "B2"}, nil)
			require.NoError(t, err)
			all, err = st.Get(ctx, "/post", nil, nil)
			require.NoError(t, err)
			require.Equal(t, []string{"A", "B2", "C"}, titles(t, all), "updates keep position")

			require.NoError(t, st.Destroy(ctx, "/post", map[string]any{"id": "b"}, nil))
			require.ErrorIs(t, st.Destroy(ctx, "/post", map[string]any{"id": "b"}, nil), ErrNotFound)
			require.True(t, IsNotFound(st.Destroy(ctx, "/nothing", []any{"x"}, nil)))

			empty, err := st.Get(ctx, "/nothing", nil, nil)
			require.NoError(t, err)
			require.Empty(t, Documents(empty))

			_, err = st.Get(ctx, "/post", struct{}{}, nil)
			require.ErrorIs(t, err, ErrUnsupportedParams)

			require.NoError(t, st.Destroy(ctx, "/post", nil, nil))
			all, err = st.Get(ctx, "/post", nil, nil)
			require.NoError(t, err)
			require.Empty(t, Documents(all))
		})
	}
}

func TestStoreContract_ReturnsCopies(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			body := map[string]any{"id": "p1", "tags": []any{"go"}}
			_, err := st.Put(ctx, "/post", body, nil)
			require.NoError(t, err)

			body["tags"].([]any)[0] = "mutated"
			got, err := st.Get(ctx, "/post", map[string]any{"id": "p1"}, nil)
			require.NoError(t, err)
			doc := Document(got)
			require.Equal(t, []any{"go"}, doc["tags"])

			doc["tags"] = nil
			again, err := st.Get(ctx, "/post", map[string]any{"id": "p1"}, nil)
			require.NoError(t, err)
			require.Equal(t, []any{"go"}, Document(again)["tags"])
		})
	}
}
