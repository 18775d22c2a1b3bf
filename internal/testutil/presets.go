package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/store"
)

// AuthorSchema is Author{name}, cached.
func AuthorSchema() model.Schema {
	return model.Schema{Name: "Author", Fields: []string{"name"}, Cache: true}
}

// PostSchema is Post{title, author: ref Author}.
func PostSchema() model.Schema {
	return model.Schema{
		Name:   "Post",
		Fields: []string{"title", "author"},
		Refs:   map[string]string{"author": "Author"},
		Cache:  true,
	}
}

// CommentSchema is Comment{body, post: ref Post, author: ref Author, votes=0}.
func CommentSchema() model.Schema {
	return model.Schema{
		Name:     "Comment",
		Fields:   []string{"body", "post", "author"},
		Defaults: map[string]any{"votes": 0},
		Refs:     map[string]string{"post": "Post", "author": "Author"},
	}
}

// Blog bundles the blog fixture controllers.
type Blog struct {
	Registry *model.Registry
	Author   *model.Controller
	Post     *model.Controller
	Comment  *model.Controller
}

// NewBlog registers the blog schemas on a fresh registry using st.
func NewBlog(t *testing.T, st store.Store, configure ...func(*model.Config)) *Blog {
	t.Helper()
	cfg := model.Config{Store: st}
	for _, fn := range configure {
		fn(&cfg)
	}
	reg := model.NewRegistry(cfg)
	t.Cleanup(reg.Close)

	b := &Blog{Registry: reg}
	var err error
	b.Comment, err = reg.Define(CommentSchema())
	require.NoError(t, err)
	b.Post, err = reg.Define(PostSchema())
	require.NoError(t, err)
	b.Author, err = reg.Define(AuthorSchema())
	require.NoError(t, err)
	require.NoError(t, reg.Validate())
	return b
}

// WithBlogData queues two authors, two posts and a comment.
func (b *Builder) WithBlogData() *Builder {
	return b.
		WithDocument("/author", "a1", Name("Ada")).
		WithDocument("/author", "a2", Name("Grace")).
		WithDocument("/post", "p1", Title("Engines"), Ref("author", "a1")).
		WithDocument("/post", "p2", Title("Compilers"), Ref("author", "a2")).
		WithDocument("/comment", "c1", Field("body", "Nice"), Ref("post", "p1"), Ref("author", "a2"))
}
