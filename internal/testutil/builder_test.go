package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_WithDocument(t *testing.T) {
	st := NewTestStore(t)

	NewBuilder(t, st).
		WithDocument("/author", "a1", Name("Ada"), Field("age", 36)).
		Build()

	got, err := st.Get(context.Background(), "/author", map[string]any{"id": "a1"}, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "a1", "name": "Ada", "age": float64(36)}, got)
}

func TestBuilder_WithBlogData(t *testing.T) {
	st := NewTestStore(t)
	NewBuilder(t, st).WithBlogData().Build()

	posts, err := st.Get(context.Background(), "/post", nil, nil)
	require.NoError(t, err)
	require.Len(t, posts, 2)
}

func TestNewBlog_RegistersTypes(t *testing.T) {
	blog := NewBlog(t, NewTestStore(t))

	require.Equal(t, []string{"Comment", "Post", "Author"}, blog.Registry.Names())
	require.Equal(t, "/post", blog.Post.URL())
}
